package club

import (
	"errors"

	"moviebot/internal/storage"
)

// Domain error taxonomy. Storage-detected conditions keep the storage
// sentinel identity so errors.Is works across layers.
var (
	ErrNotFound      = storage.ErrNotFound
	ErrAlreadyMember = storage.ErrAlreadyMember
	ErrDuplicate     = storage.ErrDuplicate

	ErrNotMember = errors.New("not a member of this group")
	ErrNoGroups  = errors.New("not a member of any group")
)
