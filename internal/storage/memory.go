package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process Store. It backs the "memory" driver and the
// domain tests; all data is lost on restart.
type Memory struct {
	mu     sync.Mutex
	groups map[string]*Group
	movies []*Movie // insertion order
	users  map[int64]string
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		groups: map[string]*Group{},
		users:  map[int64]string{},
	}
}

func (s *Memory) Close() error { return nil }

func (s *Memory) CreateGroup(ctx context.Context, g *Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[g.ID]; ok {
		return ErrDuplicate
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now()
	}
	s.groups[g.ID] = cloneGroup(g)
	return nil
}

func (s *Memory) GroupByID(ctx context.Context, id string) (*Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneGroup(g), nil
}

func (s *Memory) GroupsForUser(ctx context.Context, userID int64) ([]*Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Group
	for _, g := range s.groups {
		for _, uid := range g.Members {
			if uid == userID {
				out = append(out, cloneGroup(g))
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Memory) AllGroups(ctx context.Context) ([]*Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Group, 0, len(s.groups))
	for _, g := range s.groups {
		out = append(out, cloneGroup(g))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Memory) AppendMember(ctx context.Context, groupID string, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[groupID]
	if !ok {
		return ErrNotFound
	}
	for _, uid := range g.Members {
		if uid == userID {
			return ErrAlreadyMember
		}
	}
	g.Members = append(g.Members, userID)
	return nil
}

func (s *Memory) AddMovie(ctx context.Context, m *Movie) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, have := range s.movies {
		if have.GroupID == m.GroupID && have.Link == m.Link {
			return ErrDuplicate
		}
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.AddedAt.IsZero() {
		m.AddedAt = time.Now()
	}
	cp := *m
	s.movies = append(s.movies, &cp)
	return nil
}

func (s *Memory) MoviesByGroup(ctx context.Context, groupID string) ([]*Movie, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Movie
	for _, m := range s.movies {
		if m.GroupID == groupID {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Memory) MovieByLink(ctx context.Context, groupID, link string) (*Movie, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.movies {
		if m.GroupID == groupID && m.Link == link {
			cp := *m
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *Memory) DeleteMovie(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, m := range s.movies {
		if m.ID == id {
			s.movies = append(s.movies[:i], s.movies[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *Memory) TouchUser(ctx context.Context, userID int64, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[userID] = username
	return nil
}

func cloneGroup(g *Group) *Group {
	cp := *g
	cp.Members = append([]int64(nil), g.Members...)
	return &cp
}
