package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/sharetube/zone/internal/domain"
)

// ban must be called with s.mu held.
func (s *service) ban(ctx context.Context, admin *domain.User, cmd *BanCommand) error {
	target, err := s.userByName(cmd.Name)
	if err != nil {
		return err
	}

	record := domain.Ban{
		Ip:     target.Address,
		Bannee: target.Name,
		Banner: admin.Name,
		Reason: cmd.Reason,
		Date:   s.sched.Now().UTC(),
	}
	s.bans[record.Ip] = record
	s.logger.InfoContext(ctx, "user banned", "user_id", target.Id, "ip", record.Ip, "reason", record.Reason)

	for _, conn := range s.conns.GetConns(target.Id) {
		s.reject(conn, CloseBanned, ErrBanned)
	}
	s.removeUser(ctx, target.Id)

	s.sendStatus(fmt.Sprintf("%s was banned by %s", target.Name, admin.Name))
	return nil
}

// Bans returns every ban ordered by address.
func (s *service) Bans() []domain.Ban {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.banList()
}

func (s *service) banList() []domain.Ban {
	bans := make([]domain.Ban, 0, len(s.bans))
	for _, b := range s.bans {
		bans = append(bans, b)
	}
	sort.Slice(bans, func(i, j int) bool { return bans[i].Ip < bans[j].Ip })

	return bans
}
