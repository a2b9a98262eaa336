package service

import (
	"github.com/sharetube/zone/internal/domain"
	o "github.com/sharetube/zone/pkg/omit-nil-pointers"
)

func (s *service) sendAll(messageType string, payload any) {
	for _, conn := range s.conns.All() {
		conn.Send(messageType, payload)
	}
}

func (s *service) sendAllExcept(userId, messageType string, payload any) {
	for _, conn := range s.conns.All() {
		if id, err := s.conns.GetUserId(conn); err == nil && id == userId {
			continue
		}
		conn.Send(messageType, payload)
	}
}

func (s *service) sendOnly(userId, messageType string, payload any) {
	for _, conn := range s.conns.GetConns(userId) {
		conn.Send(messageType, payload)
	}
}

func (s *service) sendStatus(text string) {
	s.sendAll("status", map[string]any{"text": text})
}

// sendUserPatch broadcasts the changed fields of a user. Keys listed in explicit are sent even when nil.
func (s *service) sendUserPatch(userId string, fields map[string]any, explicit ...string) {
	patch := o.OmitNilPointers(fields, explicit...)
	patch["userId"] = userId
	s.sendAll("user", patch)
}

// sendState sends everything a freshly bound channel needs to render the zone.
func (s *service) sendState(conn Conn, user *domain.User, token string) {
	conn.Send("assign", map[string]any{"userId": user.Id, "token": token})

	users := s.registry.Users()
	states := make([]domain.UserState, 0, len(users))
	for _, u := range users {
		states = append(states, u.State())
	}
	conn.Send("users", map[string]any{"users": states})

	echoes := s.registry.Echoes()
	added := make([]domain.Echo, 0, len(echoes))
	for _, e := range echoes {
		added = append(added, *e)
	}
	conn.Send("echoes", map[string]any{"added": added})

	conn.Send("queue", map[string]any{"items": mapQueueItems(s.engine.Queue())})
	conn.Send("play", s.playState())
}

func (s *service) playState() Play {
	current, ok := s.engine.Current()
	if !ok {
		return Play{}
	}

	item := mapQueueItem(current)
	elapsed := s.engine.Elapsed().Seconds()
	return Play{Item: &item, Time: &elapsed}
}
