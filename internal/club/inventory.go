package club

import (
	"context"
	"errors"
	"math/rand"
	"sync"

	"moviebot/internal/storage"
	logx "moviebot/pkg/logx"
)

// Inventory owns the per-group movie pool.
type Inventory struct {
	store storage.Store
	log   logx.Logger

	// rng guards uniform random picks; swappable in tests.
	mu  sync.Mutex
	rng *rand.Rand
}

func NewInventory(store storage.Store, log logx.Logger) *Inventory {
	return &Inventory{
		store: store,
		log:   log,
		rng:   rand.New(rand.NewSource(rand.Int63())),
	}
}

// AddMovie validates membership and per-group link uniqueness, then inserts.
// Returns the group's display name on success.
func (v *Inventory) AddMovie(ctx context.Context, groupID string, userID int64, link string) (string, error) {
	g, err := v.store.GroupByID(ctx, groupID)
	if err != nil {
		return "", err
	}
	if !isMember(g, userID) {
		return "", ErrNotMember
	}
	m := &storage.Movie{GroupID: groupID, Link: link, AddedBy: userID}
	if err := v.store.AddMovie(ctx, m); err != nil {
		return "", err
	}
	v.log.Debug("movie added", logx.String("group_id", groupID), logx.String("movie_id", m.ID))
	return g.Name, nil
}

// ListMovies returns the group's movies in insertion order, or ErrNotFound
// when the group does not exist.
func (v *Inventory) ListMovies(ctx context.Context, groupID string) ([]*storage.Movie, error) {
	if _, err := v.store.GroupByID(ctx, groupID); err != nil {
		return nil, err
	}
	return v.store.MoviesByGroup(ctx, groupID)
}

// DeleteMovieForUser scans the user's groups in ascending group-id order and
// deletes the first movie matching link. At most one movie is removed even
// when several of the user's groups hold the same link.
func (v *Inventory) DeleteMovieForUser(ctx context.Context, userID int64, link string) (string, error) {
	groups, err := v.store.GroupsForUser(ctx, userID)
	if err != nil {
		return "", err
	}
	if len(groups) == 0 {
		return "", ErrNoGroups
	}
	for _, g := range groups {
		m, err := v.store.MovieByLink(ctx, g.ID, link)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return "", err
		}
		if err := v.store.DeleteMovie(ctx, m.ID); err != nil {
			return "", err
		}
		v.log.Debug("movie deleted", logx.String("group_id", g.ID), logx.String("movie_id", m.ID))
		return g.Name, nil
	}
	return "", ErrNotFound
}

// PickRandom returns a uniformly random movie from the group's pool, or nil
// when the pool is empty.
func (v *Inventory) PickRandom(ctx context.Context, groupID string) (*storage.Movie, error) {
	movies, err := v.store.MoviesByGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if len(movies) == 0 {
		return nil, nil
	}
	v.mu.Lock()
	i := v.rng.Intn(len(movies))
	v.mu.Unlock()
	return movies[i], nil
}

// Remove deletes a movie by identity. Removing an already-removed movie is
// a no-op.
func (v *Inventory) Remove(ctx context.Context, movieID string) error {
	return v.store.DeleteMovie(ctx, movieID)
}

func isMember(g *storage.Group, userID int64) bool {
	for _, uid := range g.Members {
		if uid == userID {
			return true
		}
	}
	return false
}
