package domain

import (
	"math"
	"strconv"
	"strings"
)

const EchoTextLimit = 512

// Author is a snapshot of a user taken when an echo is written.
type Author struct {
	Name   string   `json:"name"`
	Avatar string   `json:"avatar,omitempty"`
	Tags   []string `json:"tags"`
}

type Echo struct {
	Position Position `json:"position"`
	Author
	Text string `json:"text"`
}

func (e *Echo) AuthoredByAdmin() bool {
	for _, tag := range e.Tags {
		if tag == TagAdmin {
			return true
		}
	}
	return false
}

// PositionKey discretizes a position so that nearby submissions land on the same echo.
func PositionKey(p Position) string {
	parts := make([]string, len(p))
	for i, v := range p {
		parts[i] = strconv.Itoa(int(math.Round(v)))
	}
	return strings.Join(parts, ",")
}
