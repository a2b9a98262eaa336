package domain

import (
	"fmt"
	"time"
)

// Source identifies where a media comes from; two media with equal sources are the same media.
type Source struct {
	Provider string `json:"type"`
	Id       string `json:"id"`
}

func (s Source) String() string {
	return fmt.Sprintf("%s/%s", s.Provider, s.Id)
}

type Media struct {
	Source   Source        `json:"source"`
	Title    string        `json:"title"`
	Duration time.Duration `json:"duration"`
	Src      string        `json:"src"`
}

type Availability int

const (
	Available Availability = iota
	Pending
	Failed
)

func (a Availability) String() string {
	switch a {
	case Available:
		return "available"
	case Pending:
		return "pending"
	case Failed:
		return "failed"
	}
	return "unknown"
}
