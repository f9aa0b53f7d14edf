package roles

import (
	"errors"
	"fmt"
	"sort"
)

// ErrHierarchyCycle indicates the role forest is corrupted into a cycle.
// Traversals stop and deny rather than loop.
var ErrHierarchyCycle = errors.New("roles: hierarchy cycle detected")

// ErrUnknownRole indicates a role id that is not present in the forest.
var ErrUnknownRole = errors.New("roles: unknown role")

// Graph is an immutable in-memory view of the role forest. Children are
// computed by index from parent pointers, never via live references.
type Graph struct {
	byID     map[int64]Role
	byName   map[string]int64
	children map[int64][]int64
}

// NewGraph builds a Graph from a snapshot of role records.
func NewGraph(records []Role) *Graph {
	g := &Graph{
		byID:     make(map[int64]Role, len(records)),
		byName:   make(map[string]int64, len(records)),
		children: make(map[int64][]int64),
	}
	for _, r := range records {
		g.byID[r.ID] = r
		g.byName[r.Name] = r.ID
		if r.ParentID != nil {
			g.children[*r.ParentID] = append(g.children[*r.ParentID], r.ID)
		}
	}
	for _, ids := range g.children {
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	}
	return g
}

// Role looks up a role by id.
func (g *Graph) Role(id int64) (Role, bool) {
	r, ok := g.byID[id]
	return r, ok
}

// RoleByName looks up a role by name.
func (g *Graph) RoleByName(name string) (Role, bool) {
	id, ok := g.byName[name]
	if !ok {
		return Role{}, false
	}
	return g.byID[id], true
}

// Len returns the number of roles in the forest.
func (g *Graph) Len() int {
	return len(g.byID)
}

// Roles returns every role in the forest, ordered by id.
func (g *Graph) Roles() []Role {
	out := make([]Role, 0, len(g.byID))
	for _, r := range g.byID {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AvailableRoleIDs returns the id of the given role plus the ids of every
// role below it in the forest: the roles its holder may see, search and
// assign. The traversal is breadth-first over the children index with a
// visited set; reaching an already-visited role means the forest has been
// corrupted into a cycle and ErrHierarchyCycle is returned.
func (g *Graph) AvailableRoleIDs(roleID int64) ([]int64, error) {
	if _, ok := g.byID[roleID]; !ok {
		return nil, fmt.Errorf("%w: id %d", ErrUnknownRole, roleID)
	}

	visited := map[int64]struct{}{roleID: {}}
	queue := []int64{roleID}
	out := []int64{roleID}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, child := range g.children[cur] {
			if _, seen := visited[child]; seen {
				// Single-parent records can only revisit a node when the
				// chain loops back on itself.
				return nil, fmt.Errorf("%w: role %d reachable twice from %d", ErrHierarchyCycle, child, roleID)
			}
			visited[child] = struct{}{}
			out = append(out, child)
			queue = append(queue, child)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// Validate walks every role's parent chain and reports the first cycle or
// dangling parent reference found. Used by the integrity job and at
// startup.
func (g *Graph) Validate() error {
	for id := range g.byID {
		visited := map[int64]struct{}{}
		cur := id
		for {
			if _, seen := visited[cur]; seen {
				return fmt.Errorf("%w: role %d is its own ancestor", ErrHierarchyCycle, id)
			}
			visited[cur] = struct{}{}
			r := g.byID[cur]
			if r.ParentID == nil {
				break
			}
			next, ok := g.byID[*r.ParentID]
			if !ok {
				return fmt.Errorf("%w: role %d has missing parent %d", ErrUnknownRole, cur, *r.ParentID)
			}
			cur = next.ID
		}
	}
	return nil
}
