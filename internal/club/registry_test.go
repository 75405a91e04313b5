package club

import (
	"context"
	"errors"
	"testing"

	"moviebot/internal/storage"
	logx "moviebot/pkg/logx"
)

func newTestRegistry() (*Registry, *storage.Memory) {
	store := storage.NewMemory()
	return NewRegistry(store, logx.Nop()), store
}

func TestCreateGroup(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	reg, _ := newTestRegistry()

	g, err := reg.CreateGroup(ctx, "friday movies", 42, 42)
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	if len(g.ID) != 6 {
		t.Errorf("group id = %q, want 6 digits", g.ID)
	}
	if g.Name != "friday movies" {
		t.Errorf("name = %q", g.Name)
	}
	if len(g.Members) != 1 || g.Members[0] != 42 {
		t.Errorf("creator must be sole member, got %v", g.Members)
	}
}

func TestCreateGroupRetriesOnIDCollision(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	reg, store := newTestRegistry()

	if err := store.CreateGroup(ctx, &storage.Group{ID: "100001", Name: "taken", Members: []int64{1}}); err != nil {
		t.Fatal(err)
	}

	// first two generated ids collide with the existing group
	ids := []string{"100001", "100001", "100002"}
	reg.newID = func() string {
		id := ids[0]
		if len(ids) > 1 {
			ids = ids[1:]
		}
		return id
	}

	g, err := reg.CreateGroup(ctx, "fresh", 2, 2)
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	if g.ID != "100002" {
		t.Errorf("got id %s, want 100002", g.ID)
	}
}

func TestCreateGroupGivesUpAfterMaxAttempts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	reg, store := newTestRegistry()

	if err := store.CreateGroup(ctx, &storage.Group{ID: "100001", Name: "taken", Members: []int64{1}}); err != nil {
		t.Fatal(err)
	}
	reg.newID = func() string { return "100001" }

	if _, err := reg.CreateGroup(ctx, "doomed", 2, 2); err == nil {
		t.Fatal("expected error when every id collides")
	}
}

func TestJoinGroup(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	reg, _ := newTestRegistry()

	g, err := reg.CreateGroup(ctx, "club", 1, 1)
	if err != nil {
		t.Fatal(err)
	}

	name, err := reg.JoinGroup(ctx, g.ID, 2)
	if err != nil {
		t.Fatalf("JoinGroup: %v", err)
	}
	if name != "club" {
		t.Errorf("name = %q, want club", name)
	}

	if _, err := reg.JoinGroup(ctx, g.ID, 2); !errors.Is(err, ErrAlreadyMember) {
		t.Fatalf("repeat join: got %v, want ErrAlreadyMember", err)
	}
	if _, err := reg.JoinGroup(ctx, g.ID, 1); !errors.Is(err, ErrAlreadyMember) {
		t.Fatalf("creator join: got %v, want ErrAlreadyMember", err)
	}
	if _, err := reg.JoinGroup(ctx, "000000", 3); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing group: got %v, want ErrNotFound", err)
	}

	got, err := reg.FindGroup(ctx, g.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Members) != 2 {
		t.Errorf("members = %v, want 2 entries", got.Members)
	}
}

func TestListGroupsForUser(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	reg, _ := newTestRegistry()

	ids := []string{"300000", "100000"}
	reg.newID = func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}
	if _, err := reg.CreateGroup(ctx, "b", 5, 5); err != nil {
		t.Fatal(err)
	}
	if _, err := reg.CreateGroup(ctx, "a", 5, 5); err != nil {
		t.Fatal(err)
	}

	groups, err := reg.ListGroupsForUser(ctx, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(groups) != 2 || groups[0].ID != "100000" || groups[1].ID != "300000" {
		t.Fatalf("groups not in ascending id order: %+v", groups)
	}

	none, err := reg.ListGroupsForUser(ctx, 99)
	if err != nil {
		t.Fatal(err)
	}
	if len(none) != 0 {
		t.Errorf("expected no groups, got %+v", none)
	}
}

func TestRandomGroupIDRange(t *testing.T) {
	t.Parallel()
	for i := 0; i < 1000; i++ {
		id := randomGroupID()
		if len(id) != 6 || id[0] == '0' {
			t.Fatalf("bad group id %q", id)
		}
	}
}
