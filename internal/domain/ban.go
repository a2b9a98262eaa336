package domain

import "time"

type Ban struct {
	Ip     string    `json:"ip"`
	Bannee string    `json:"bannee"`
	Banner string    `json:"banner"`
	Reason string    `json:"reason,omitempty"`
	Date   time.Time `json:"date"`
}
