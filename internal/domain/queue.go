package domain

type QueueInfo struct {
	UserId string `json:"userId,omitempty"`
	Ip     string `json:"ip,omitempty"`
	Banger bool   `json:"banger,omitempty"`
}

type QueueItem struct {
	ItemId int       `json:"itemId"`
	Media  Media     `json:"media"`
	Info   QueueInfo `json:"info"`
}
