package registry

import (
	"sort"
	"sync"

	"github.com/sharetube/zone/internal/domain"
)

// Registry stores users by id and echoes by position key. It has no rules of its own.
type Registry struct {
	mu     sync.RWMutex
	users  map[string]*domain.User
	order  []string
	echoes map[string]*domain.Echo
}

func New() *Registry {
	return &Registry{
		users:  make(map[string]*domain.User),
		echoes: make(map[string]*domain.Echo),
	}
}

// GetUser returns the user with id, creating a default one if it does not exist yet.
func (r *Registry) GetUser(id string) *domain.User {
	r.mu.Lock()
	defer r.mu.Unlock()

	if user, ok := r.users[id]; ok {
		return user
	}

	user := domain.NewUser(id)
	r.users[id] = user
	r.order = append(r.order, id)
	return user
}

func (r *Registry) LookupUser(id string) (*domain.User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	return user, ok
}

// FindUserByName returns the first user, in join order, whose name is name.
func (r *Registry) FindUserByName(name string) (*domain.User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, id := range r.order {
		if user := r.users[id]; user.Name == name {
			return user, true
		}
	}

	return nil, false
}

func (r *Registry) RemoveUser(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[id]; !ok {
		return false
	}

	delete(r.users, id)
	for i, orderedId := range r.order {
		if orderedId == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	return true
}

// Users returns all users in join order.
func (r *Registry) Users() []*domain.User {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]*domain.User, 0, len(r.order))
	for _, id := range r.order {
		users = append(users, r.users[id])
	}

	return users
}

func (r *Registry) SetEcho(echo *domain.Echo) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.echoes[domain.PositionKey(echo.Position)] = echo
}

func (r *Registry) Echo(position domain.Position) (*domain.Echo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	echo, ok := r.echoes[domain.PositionKey(position)]
	return echo, ok
}

func (r *Registry) RemoveEcho(position domain.Position) (*domain.Echo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := domain.PositionKey(position)
	echo, ok := r.echoes[key]
	if ok {
		delete(r.echoes, key)
	}

	return echo, ok
}

// Echoes returns all echoes sorted by position key.
func (r *Registry) Echoes() []*domain.Echo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.echoes))
	for key := range r.echoes {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	echoes := make([]*domain.Echo, 0, len(keys))
	for _, key := range keys {
		echoes = append(echoes, r.echoes[key])
	}

	return echoes
}

func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.users = make(map[string]*domain.User)
	r.order = nil
	r.echoes = make(map[string]*domain.Echo)
}
