package service

import (
	"github.com/sharetube/zone/internal/domain"
)

type Media struct {
	Source   domain.Source `json:"source"`
	Title    string        `json:"title"`
	Duration float64       `json:"duration"`
	Src      string        `json:"src"`
}

type QueueItem struct {
	ItemId int              `json:"itemId"`
	Media  Media            `json:"media"`
	Info   domain.QueueInfo `json:"info"`
}

type Play struct {
	Item *QueueItem `json:"item,omitempty"`
	Time *float64   `json:"time,omitempty"`
}

type Echoes struct {
	Added   []domain.Echo     `json:"added,omitempty"`
	Removed []domain.Position `json:"removed,omitempty"`
}

func mapQueueItem(item domain.QueueItem) QueueItem {
	return QueueItem{
		ItemId: item.ItemId,
		Media: Media{
			Source:   item.Media.Source,
			Title:    item.Media.Title,
			Duration: item.Media.Duration.Seconds(),
			Src:      item.Media.Src,
		},
		// the requester address stays server side
		Info: domain.QueueInfo{UserId: item.Info.UserId, Banger: item.Info.Banger},
	}
}

func mapQueueItems(items []domain.QueueItem) []QueueItem {
	result := make([]QueueItem, 0, len(items))
	for _, item := range items {
		result = append(result, mapQueueItem(item))
	}

	return result
}
