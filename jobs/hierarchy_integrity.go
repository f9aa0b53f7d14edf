package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/peergrade-io/peergrade/internal/jobs"
	"github.com/peergrade-io/peergrade/internal/roles"
	"github.com/peergrade-io/peergrade/internal/shared"
	"github.com/peergrade-io/peergrade/internal/users"
)

const (
	// TaskHierarchyIntegrity triggers the nightly hierarchy scan.
	TaskHierarchyIntegrity = "hierarchy:integrity"

	maxChainDepth = 64
)

// HierarchyIntegrityPayload carries scheduling metadata.
type HierarchyIntegrityPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewHierarchyIntegrityTask constructs an Asynq task for the hierarchy scan.
func NewHierarchyIntegrityTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(HierarchyIntegrityPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskHierarchyIntegrity, body, asynq.Queue(QueueDefault)), nil
}

// UserScanner lists the users whose parent chains the integrity scan walks.
type UserScanner interface {
	ListUsersByRoles(ctx context.Context, roleIDs []int64) ([]users.User, error)
	FindUserByID(ctx context.Context, id int64) (*users.User, error)
}

// HierarchyIntegrityChecker scans the role forest and the user ownership
// chains for cycles and dangling references. Findings are logged, not
// repaired: the authorization paths already refuse to decide on corrupted
// chains, so the scan exists to surface the corruption before users hit it.
type HierarchyIntegrityChecker struct {
	logger  *slog.Logger
	roles   *roles.Service
	users   UserScanner
	metrics *jobmetrics.Metrics
}

// NewHierarchyIntegrityChecker builds the checker.
func NewHierarchyIntegrityChecker(logger *slog.Logger, roleSvc *roles.Service, userRepo UserScanner) *HierarchyIntegrityChecker {
	return &HierarchyIntegrityChecker{logger: logger, roles: roleSvc, users: userRepo, metrics: jobmetrics.NewMetrics(nil)}
}

// Handle processes TaskHierarchyIntegrity tasks.
func (c *HierarchyIntegrityChecker) Handle(ctx context.Context, t *asynq.Task) error {
	var payload HierarchyIntegrityPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	tracker := c.metrics.Track("hierarchy_integrity")
	return tracker.End(c.Run(ctx))
}

// Run performs one full scan.
func (c *HierarchyIntegrityChecker) Run(ctx context.Context) error {
	graph, err := c.roles.Graph(ctx)
	if err != nil {
		return err
	}
	if err := graph.Validate(); err != nil {
		c.logger.Error("role forest is corrupted", slog.Any("error", err))
	}

	roleIDs := make([]int64, 0, graph.Len())
	for _, r := range graph.Roles() {
		roleIDs = append(roleIDs, r.ID)
	}
	all, err := c.users.ListUsersByRoles(ctx, roleIDs)
	if err != nil {
		return err
	}

	bad := 0
	for i := range all {
		if err := c.checkChain(ctx, &all[i]); err != nil {
			bad++
			c.logger.Error("broken ownership chain",
				slog.Int64("user_id", all[i].ID),
				slog.Any("error", err))
		}
	}
	c.logger.Info("hierarchy integrity scan finished",
		slog.Int("users", len(all)),
		slog.Int("broken_chains", bad))
	return nil
}

var errChainCycle = errors.New("ownership chain cycle")
var errDanglingParent = errors.New("parent reference points at a missing user")

func (c *HierarchyIntegrityChecker) checkChain(ctx context.Context, u *users.User) error {
	visited := map[int64]struct{}{u.ID: {}}
	cur := u
	for depth := 0; cur.ParentID != nil; depth++ {
		if depth >= maxChainDepth {
			return errChainCycle
		}
		parent, err := c.users.FindUserByID(ctx, *cur.ParentID)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return errDanglingParent
			}
			return err
		}
		if _, seen := visited[parent.ID]; seen {
			return errChainCycle
		}
		visited[parent.ID] = struct{}{}
		cur = parent
	}
	return nil
}
