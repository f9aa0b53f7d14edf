package roles

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// RepositoryPort defines data access methods for roles.
type RepositoryPort interface {
	ListRoles(ctx context.Context) ([]Role, error)
	GetRole(ctx context.Context, id int64) (Role, error)
}

// Service loads and caches the role forest. The forest is small and
// changes rarely, so it is held in memory and refreshed on a TTL;
// concurrent refreshes are collapsed through singleflight.
type Service struct {
	repo RepositoryPort
	ttl  time.Duration

	group singleflight.Group

	mu       sync.RWMutex
	graph    *Graph
	loadedAt time.Time
}

// NewService builds a Service with the given cache TTL.
func NewService(repo RepositoryPort, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Service{repo: repo, ttl: ttl}
}

// Graph returns the current role forest, reloading it when stale.
func (s *Service) Graph(ctx context.Context) (*Graph, error) {
	s.mu.RLock()
	g, fresh := s.graph, time.Since(s.loadedAt) < s.ttl
	s.mu.RUnlock()
	if g != nil && fresh {
		return g, nil
	}

	v, err, _ := s.group.Do("forest", func() (any, error) {
		records, err := s.repo.ListRoles(ctx)
		if err != nil {
			return nil, err
		}
		g := NewGraph(records)
		s.mu.Lock()
		s.graph = g
		s.loadedAt = time.Now()
		s.mu.Unlock()
		return g, nil
	})
	if err != nil {
		// Serve the stale forest if one exists; role edits are rare and a
		// slightly old view is better than failing every gate.
		if g != nil {
			return g, nil
		}
		return nil, err
	}
	return v.(*Graph), nil
}

// Invalidate drops the cached forest so the next read reloads it.
func (s *Service) Invalidate() {
	s.mu.Lock()
	s.graph = nil
	s.loadedAt = time.Time{}
	s.mu.Unlock()
}

// AvailableRoleIDs returns the ids a holder of roleID may see and assign.
func (s *Service) AvailableRoleIDs(ctx context.Context, roleID int64) ([]int64, error) {
	g, err := s.Graph(ctx)
	if err != nil {
		return nil, err
	}
	return g.AvailableRoleIDs(roleID)
}

// FindRoleByID resolves a role from the cached forest, falling back to the
// repository when the forest has not seen the id yet.
func (s *Service) FindRoleByID(ctx context.Context, id int64) (*Role, error) {
	g, err := s.Graph(ctx)
	if err != nil {
		return nil, err
	}
	if r, ok := g.Role(id); ok {
		return &r, nil
	}
	r, err := s.repo.GetRole(ctx, id)
	if err != nil {
		return nil, err
	}
	return &r, nil
}
