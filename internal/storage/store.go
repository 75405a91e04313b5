package storage

import (
	"context"
	"errors"
	"strings"

	logx "moviebot/pkg/logx"
)

// Store is the persistence API used by the domain layer.
//
// Membership mutation (AppendMember) is required to be atomic against
// concurrent appends for the same group; callers never do read-then-write
// membership updates themselves.
type Store interface {
	// CreateGroup inserts a new group together with its initial member list.
	// It sets CreatedAt and fails with ErrDuplicate when the group id is taken.
	CreateGroup(ctx context.Context, g *Group) error
	// GroupByID fails with ErrNotFound when no group has that id.
	GroupByID(ctx context.Context, id string) (*Group, error)
	// GroupsForUser returns the groups containing userID, ascending by group id.
	GroupsForUser(ctx context.Context, userID int64) ([]*Group, error)
	AllGroups(ctx context.Context) ([]*Group, error)
	// AppendMember atomically appends userID to the group's member list.
	// Fails with ErrNotFound (no such group) or ErrAlreadyMember.
	AppendMember(ctx context.Context, groupID string, userID int64) error

	// AddMovie inserts a movie, assigning ID and AddedAt. Fails with
	// ErrDuplicate when the group already holds the same link.
	AddMovie(ctx context.Context, m *Movie) error
	// MoviesByGroup returns the group's movies in insertion order.
	MoviesByGroup(ctx context.Context, groupID string) ([]*Movie, error)
	// MovieByLink fails with ErrNotFound when the group has no such link.
	MovieByLink(ctx context.Context, groupID, link string) (*Movie, error)
	// DeleteMovie removes a movie by id. Deleting an absent id is a no-op.
	DeleteMovie(ctx context.Context, id string) error

	// TouchUser records a user sighting in the users table. Best-effort
	// bookkeeping; core logic never reads it back.
	TouchUser(ctx context.Context, userID int64, username string) error

	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, errors.New("unknown storage driver: " + cfg.Driver)
	}
}
