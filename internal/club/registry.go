package club

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"

	"moviebot/internal/storage"
	logx "moviebot/pkg/logx"
)

// maxIDAttempts bounds the retry loop when generated group ids collide.
// The id space is 900k values, so hitting this means something is wrong.
const maxIDAttempts = 50

// Registry owns group creation, membership and lookup.
type Registry struct {
	store storage.Store
	log   logx.Logger

	// newID is swappable in tests to force id collisions.
	newID func() string
}

func NewRegistry(store storage.Store, log logx.Logger) *Registry {
	return &Registry{store: store, log: log, newID: randomGroupID}
}

// randomGroupID returns a 6-digit id from the 100000..999999 space.
func randomGroupID() string {
	return strconv.Itoa(100000 + rand.Intn(900000))
}

// CreateGroup stores a new group with the creator as its only member. Ids
// are regenerated until an unused one is found.
func (r *Registry) CreateGroup(ctx context.Context, name string, ownerChatID, creatorID int64) (*storage.Group, error) {
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		g := &storage.Group{
			ID:          r.newID(),
			Name:        name,
			OwnerChatID: ownerChatID,
			Members:     []int64{creatorID},
		}
		err := r.store.CreateGroup(ctx, g)
		if err == nil {
			r.log.Info("group created", logx.String("group_id", g.ID), logx.Int64("creator", creatorID))
			return g, nil
		}
		if errors.Is(err, storage.ErrDuplicate) {
			r.log.Debug("group id collision, retrying", logx.String("group_id", g.ID))
			continue
		}
		return nil, err
	}
	return nil, fmt.Errorf("no unused group id after %d attempts", maxIDAttempts)
}

// JoinGroup appends userID to the group and returns the group's name.
// Returns ErrNotFound or ErrAlreadyMember.
func (r *Registry) JoinGroup(ctx context.Context, groupID string, userID int64) (string, error) {
	g, err := r.store.GroupByID(ctx, groupID)
	if err != nil {
		return "", err
	}
	if err := r.store.AppendMember(ctx, groupID, userID); err != nil {
		return "", err
	}
	return g.Name, nil
}

// ListGroupsForUser returns the user's groups, ascending by group id.
func (r *Registry) ListGroupsForUser(ctx context.Context, userID int64) ([]*storage.Group, error) {
	return r.store.GroupsForUser(ctx, userID)
}

// FindGroup returns the group or ErrNotFound.
func (r *Registry) FindGroup(ctx context.Context, groupID string) (*storage.Group, error) {
	return r.store.GroupByID(ctx, groupID)
}
