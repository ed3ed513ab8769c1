// Package coordinator implements the stateless admission and routing
// service: it assigns vnodes to presence-node instances, retires them on
// unregister, and answers "which instance owns this user" queries for
// clients.
package coordinator

import (
	"context"
	"time"

	"github.com/streamspace/presence/internal/apierrors"
	"github.com/streamspace/presence/internal/directory"
	"github.com/streamspace/presence/internal/logger"
	"github.com/streamspace/presence/internal/ring"
)

// Default TTLs. T_own must be at least twice the heartbeat interval so a
// live node's lease never lapses between two heartbeats; C_user is the
// routing-cache entry lifetime.
const (
	DefaultOwnershipTTL = 60 * time.Second
	DefaultUserCacheTTL = 60 * time.Second
)

// Service implements the register/unregister/route algorithms against a
// directory-backed hash ring.
type Service struct {
	ring *ring.Ring
	dir  *directory.Directory

	ownershipTTL time.Duration
	userCacheTTL time.Duration
}

// New creates a Service with a ring of size vnodeCount, backed by dir.
func New(dir *directory.Directory, vnodeCount int) *Service {
	return &Service{
		ring:         ring.New(vnodeCount),
		dir:          dir,
		ownershipTTL: DefaultOwnershipTTL,
		userCacheTTL: DefaultUserCacheTTL,
	}
}

// Warm loads the current ownership snapshot from the directory into the
// local ring. Call once at startup before serving requests.
func (s *Service) Warm(ctx context.Context) error {
	owners, err := s.dir.GetOwners(ctx)
	if err != nil {
		return err
	}
	s.ring.UpdateOwners(owners)
	return nil
}

// RegisterResult is the outcome of admitting an instance into the ring.
type RegisterResult struct {
	InstanceID     string
	AssignedVnodes []int
}

// Register assigns floor(V*weight/100) free vnodes (at least 1) to
// instanceID, in ascending vnode-id order, and persists the assignment.
func (s *Service) Register(ctx context.Context, instanceID string, weight int) (RegisterResult, error) {
	if instanceID == "" {
		return RegisterResult{}, apierrors.BadRequest("instanceId is required")
	}
	if weight <= 0 {
		weight = 1
	}

	occupied, err := s.dir.GetOwners(ctx)
	if err != nil {
		return RegisterResult{}, apierrors.DirectoryError(err)
	}
	s.ring.UpdateOwners(occupied)

	v := s.ring.V()
	desired := (v * weight) / 100
	if desired < 1 {
		desired = 1
	}

	assigned := make([]int, 0, desired)
	for id := 0; id < v && len(assigned) < desired; id++ {
		if _, taken := occupied[id]; !taken {
			assigned = append(assigned, id)
		}
	}

	if len(assigned) == 0 {
		free := v - len(occupied)
		return RegisterResult{}, apierrors.RingExhausted(instanceID, desired, free)
	}

	partial := make(map[int]string, len(assigned))
	for _, id := range assigned {
		partial[id] = instanceID
	}

	if err := s.dir.PutOwners(ctx, partial, s.ownershipTTL); err != nil {
		return RegisterResult{}, apierrors.DirectoryError(err)
	}
	s.ring.UpdateOwners(partial)

	logger.Ring().Info().
		Str("instance_id", instanceID).
		Int("weight", weight).
		Int("assigned", len(assigned)).
		Int("desired", desired).
		Msg("instance registered")

	return RegisterResult{InstanceID: instanceID, AssignedVnodes: assigned}, nil
}

// UnregisterResult is the outcome of retiring an instance from the ring.
type UnregisterResult struct {
	InstanceID     string
	RemovedVnodes  []int
}

// Unregister removes every vnode instanceID currently owns.
func (s *Service) Unregister(ctx context.Context, instanceID string) (UnregisterResult, error) {
	if instanceID == "" {
		return UnregisterResult{}, apierrors.BadRequest("instanceId is required")
	}

	owners, err := s.dir.GetOwners(ctx)
	if err != nil {
		return UnregisterResult{}, apierrors.DirectoryError(err)
	}
	s.ring.UpdateOwners(owners)

	removed := s.ring.VnodesOwnedBy(instanceID)
	if len(removed) == 0 {
		return UnregisterResult{}, apierrors.NodeUnknown(instanceID)
	}

	if err := s.dir.DeleteOwners(ctx, removed); err != nil {
		return UnregisterResult{}, apierrors.DirectoryError(err)
	}
	s.ring.RemoveOwners(removed)

	logger.Ring().Info().
		Str("instance_id", instanceID).
		Int("removed", len(removed)).
		Msg("instance unregistered")

	return UnregisterResult{InstanceID: instanceID, RemovedVnodes: removed}, nil
}

// RouteResult is the answer to "which instance owns this user".
type RouteResult struct {
	UserID   string
	Vnode    int
	Instance string
	Source   string // "cache" or "hash"
}

// Route resolves the owning instance for userID, preferring the
// user->instance routing cache and falling back to a fresh hash-ring
// lookup (refreshing the ring from the directory when the ring has no
// owner for the user's vnode).
func (s *Service) Route(ctx context.Context, userID string) (RouteResult, error) {
	if userID == "" {
		return RouteResult{}, apierrors.BadRequest("userId is required")
	}

	if cached, err := s.dir.GetUserInstance(ctx, userID); err != nil {
		logger.Ring().Warn().Err(err).Msg("user-instance cache read failed, falling back to ring")
	} else if cached != "" {
		return RouteResult{UserID: userID, Instance: cached, Source: "cache"}, nil
	}

	vnode := s.ring.UserVnode(userID)
	owner := s.ring.OwnerOfVnode(vnode)

	if owner == ring.Empty {
		if err := s.Warm(ctx); err != nil {
			return RouteResult{}, apierrors.DirectoryError(err)
		}
		owner = s.ring.OwnerOfVnode(vnode)
	}

	if owner == ring.Empty {
		return RouteResult{}, apierrors.UserUnrouted(userID)
	}

	if err := s.dir.PutUserInstance(ctx, userID, owner, s.userCacheTTL); err != nil {
		logger.Ring().Warn().Err(err).Msg("failed to write user-instance cache entry")
	}

	return RouteResult{UserID: userID, Vnode: vnode, Instance: owner, Source: "hash"}, nil
}
