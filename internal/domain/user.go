package domain

import (
	"slices"

	"github.com/sharetube/zone/pkg/timeline"
)

const (
	TagDJ    = "dj"
	TagAdmin = "admin"
)

// Position is a 2D or 3D point in the zone. A nil Position means the user is not spawned.
type Position []float64

type User struct {
	Id       string
	Name     string
	Avatar   string
	Position Position
	Emotes   []string
	Tags     []string
	Address  string

	// grace holds the pending removal task while the user has no live channels.
	grace timeline.Task
}

func NewUser(id string) *User {
	return &User{
		Id:     id,
		Emotes: []string{},
		Tags:   []string{},
	}
}

func (u *User) HasTag(tag string) bool {
	return slices.Contains(u.Tags, tag)
}

func (u *User) AddTag(tag string) bool {
	if u.HasTag(tag) {
		return false
	}
	u.Tags = append(u.Tags, tag)
	return true
}

func (u *User) RemoveTag(tag string) bool {
	i := slices.Index(u.Tags, tag)
	if i < 0 {
		return false
	}
	u.Tags = slices.Delete(u.Tags, i, i+1)
	return true
}

func (u *User) IsAdmin() bool {
	return u.HasTag(TagAdmin)
}

func (u *User) IsDJ() bool {
	return u.HasTag(TagDJ)
}

// SetGrace replaces the pending removal task, stopping the previous one.
func (u *User) SetGrace(task timeline.Task) {
	u.CancelGrace()
	u.grace = task
}

// CancelGrace stops the pending removal task if there is one.
func (u *User) CancelGrace() {
	if u.grace != nil {
		u.grace.Stop()
		u.grace = nil
	}
}

func (u *User) GracePending() bool {
	return u.grace != nil
}

// UserState is the wire form of a user.
type UserState struct {
	UserId   string   `json:"userId"`
	Name     string   `json:"name"`
	Avatar   string   `json:"avatar,omitempty"`
	Position Position `json:"position,omitempty"`
	Emotes   []string `json:"emotes"`
	Tags     []string `json:"tags"`
}

func (u *User) State() UserState {
	return UserState{
		UserId:   u.Id,
		Name:     u.Name,
		Avatar:   u.Avatar,
		Position: slices.Clone(u.Position),
		Emotes:   slices.Clone(u.Emotes),
		Tags:     slices.Clone(u.Tags),
	}
}
