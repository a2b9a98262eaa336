package inmemory

import (
	"log/slog"
	"sync"

	"github.com/sharetube/zone/internal/repository/connection"
)

// Repo maps live channels to the user they are bound to. A user may hold several channels.
type Repo[C comparable] struct {
	connList map[C]string
	idList   map[string][]C
	mu       sync.RWMutex
}

func NewRepo[C comparable]() *Repo[C] {
	return &Repo[C]{
		connList: make(map[C]string),
		idList:   make(map[string][]C),
	}
}

func (r *Repo[C]) Add(conn C, userId string) error {
	funcName := "connection.inmemory.Add"
	r.mu.Lock()
	defer r.mu.Unlock()

	slog.Debug(funcName, "user_id", userId)
	if _, ok := r.connList[conn]; ok {
		slog.Info(funcName, "error", connection.ErrAlreadyExists)
		return connection.ErrAlreadyExists
	}

	r.connList[conn] = userId
	r.idList[userId] = append(r.idList[userId], conn)

	slog.Debug(funcName, "result", "OK")
	return nil
}

// RemoveByConn unbinds conn and returns the user it belonged to.
func (r *Repo[C]) RemoveByConn(conn C) (string, error) {
	funcName := "connection.inmemory.RemoveByConn"
	r.mu.Lock()
	defer r.mu.Unlock()

	userId, ok := r.connList[conn]
	if !ok {
		slog.Debug(funcName, "error", connection.ErrNotFound)
		return "", connection.ErrNotFound
	}

	delete(r.connList, conn)
	conns := r.idList[userId]
	for i, c := range conns {
		if c == conn {
			conns = append(conns[:i], conns[i+1:]...)
			break
		}
	}
	if len(conns) == 0 {
		delete(r.idList, userId)
	} else {
		r.idList[userId] = conns
	}

	slog.Debug(funcName, "result", userId)
	return userId, nil
}

// RemoveByUserId unbinds every channel of userId and returns them.
func (r *Repo[C]) RemoveByUserId(userId string) []C {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns := r.idList[userId]
	for _, conn := range conns {
		delete(r.connList, conn)
	}
	delete(r.idList, userId)

	return conns
}

func (r *Repo[C]) GetUserId(conn C) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	userId, ok := r.connList[conn]
	if !ok {
		return "", connection.ErrNotFound
	}

	return userId, nil
}

// GetConns returns a copy of the channels bound to userId.
func (r *Repo[C]) GetConns(userId string) []C {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]C(nil), r.idList[userId]...)
}

func (r *Repo[C]) ConnCount(userId string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.idList[userId])
}

// All returns every bound channel.
func (r *Repo[C]) All() []C {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]C, 0, len(r.connList))
	for conn := range r.connList {
		conns = append(conns, conn)
	}

	return conns
}
