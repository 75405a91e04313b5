package storage

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a group or movie does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyMember is returned by AppendMember when the user is already
	// in the group's member list.
	ErrAlreadyMember = errors.New("already a member")
	// ErrDuplicate is returned on unique-key conflicts: a taken group id on
	// CreateGroup, or a link already present in the group on AddMovie.
	ErrDuplicate = errors.New("duplicate")
)

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file (default)
//   - "memory": in-process store, lost on restart
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Group is a movie club. Members holds user ids in join order and never
// contains duplicates.
type Group struct {
	ID          string
	Name        string
	OwnerChatID int64
	Members     []int64
	CreatedAt   time.Time
}

// Movie is one shared link in a group's pool. ID is assigned by the store
// at insert and is the handle for precise deletion.
type Movie struct {
	ID      string
	GroupID string
	Link    string
	AddedBy int64
	AddedAt time.Time
}
