package storage

import (
	"context"
	"errors"
	"testing"

	logx "moviebot/pkg/logx"
)

func TestMemoryCreateGroup(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemory()

	g := &Group{ID: "123456", Name: "friday", OwnerChatID: 10, Members: []int64{10}}
	if err := s.CreateGroup(ctx, g); err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	if g.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}

	dup := &Group{ID: "123456", Name: "other", OwnerChatID: 11, Members: []int64{11}}
	if err := s.CreateGroup(ctx, dup); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("duplicate id: got %v, want ErrDuplicate", err)
	}

	got, err := s.GroupByID(ctx, "123456")
	if err != nil {
		t.Fatalf("GroupByID: %v", err)
	}
	if got.Name != "friday" || len(got.Members) != 1 || got.Members[0] != 10 {
		t.Errorf("unexpected group: %+v", got)
	}

	if _, err := s.GroupByID(ctx, "999999"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing group: got %v, want ErrNotFound", err)
	}
}

func TestMemoryAppendMember(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemory()

	if err := s.CreateGroup(ctx, &Group{ID: "111111", Name: "g", Members: []int64{1}}); err != nil {
		t.Fatal(err)
	}

	if err := s.AppendMember(ctx, "111111", 2); err != nil {
		t.Fatalf("AppendMember: %v", err)
	}
	if err := s.AppendMember(ctx, "111111", 2); !errors.Is(err, ErrAlreadyMember) {
		t.Fatalf("repeat join: got %v, want ErrAlreadyMember", err)
	}
	if err := s.AppendMember(ctx, "111111", 1); !errors.Is(err, ErrAlreadyMember) {
		t.Fatalf("creator rejoin: got %v, want ErrAlreadyMember", err)
	}
	if err := s.AppendMember(ctx, "000000", 3); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing group: got %v, want ErrNotFound", err)
	}

	g, err := s.GroupByID(ctx, "111111")
	if err != nil {
		t.Fatal(err)
	}
	want := []int64{1, 2}
	if len(g.Members) != len(want) {
		t.Fatalf("members = %v, want %v", g.Members, want)
	}
	for i := range want {
		if g.Members[i] != want[i] {
			t.Fatalf("members = %v, want %v", g.Members, want)
		}
	}
}

func TestMemoryGroupsForUserOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemory()

	for _, id := range []string{"300000", "100000", "200000"} {
		if err := s.CreateGroup(ctx, &Group{ID: id, Name: "g" + id, Members: []int64{7}}); err != nil {
			t.Fatal(err)
		}
	}
	// one group the user is not in
	if err := s.CreateGroup(ctx, &Group{ID: "400000", Name: "other", Members: []int64{8}}); err != nil {
		t.Fatal(err)
	}

	got, err := s.GroupsForUser(ctx, 7)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"100000", "200000", "300000"}
	if len(got) != len(want) {
		t.Fatalf("got %d groups, want %d", len(got), len(want))
	}
	for i, g := range got {
		if g.ID != want[i] {
			t.Errorf("groups[%d].ID = %s, want %s", i, g.ID, want[i])
		}
	}
}

func TestMemoryMovies(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemory()

	if err := s.CreateGroup(ctx, &Group{ID: "111111", Name: "g", Members: []int64{1}}); err != nil {
		t.Fatal(err)
	}

	m1 := &Movie{GroupID: "111111", Link: "https://example.com/a", AddedBy: 1}
	if err := s.AddMovie(ctx, m1); err != nil {
		t.Fatalf("AddMovie: %v", err)
	}
	if m1.ID == "" || m1.AddedAt.IsZero() {
		t.Errorf("AddMovie did not assign identity: %+v", m1)
	}

	dup := &Movie{GroupID: "111111", Link: "https://example.com/a", AddedBy: 2}
	if err := s.AddMovie(ctx, dup); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("duplicate link: got %v, want ErrDuplicate", err)
	}

	// same link in a different group is fine
	other := &Movie{GroupID: "222222", Link: "https://example.com/a", AddedBy: 1}
	if err := s.AddMovie(ctx, other); err != nil {
		t.Fatalf("same link, other group: %v", err)
	}

	m2 := &Movie{GroupID: "111111", Link: "https://example.com/b", AddedBy: 1}
	if err := s.AddMovie(ctx, m2); err != nil {
		t.Fatal(err)
	}

	movies, err := s.MoviesByGroup(ctx, "111111")
	if err != nil {
		t.Fatal(err)
	}
	if len(movies) != 2 || movies[0].Link != m1.Link || movies[1].Link != m2.Link {
		t.Fatalf("unexpected insertion order: %+v", movies)
	}

	got, err := s.MovieByLink(ctx, "111111", m1.Link)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != m1.ID {
		t.Errorf("MovieByLink returned %s, want %s", got.ID, m1.ID)
	}
	if _, err := s.MovieByLink(ctx, "111111", "https://nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing link: got %v, want ErrNotFound", err)
	}
}

func TestMemoryDeleteMovieIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemory()

	m := &Movie{GroupID: "111111", Link: "https://example.com/a", AddedBy: 1}
	if err := s.AddMovie(ctx, m); err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteMovie(ctx, m.ID); err != nil {
		t.Fatalf("DeleteMovie: %v", err)
	}
	if err := s.DeleteMovie(ctx, m.ID); err != nil {
		t.Fatalf("repeat delete must be a no-op, got %v", err)
	}
	movies, err := s.MoviesByGroup(ctx, "111111")
	if err != nil {
		t.Fatal(err)
	}
	if len(movies) != 0 {
		t.Fatalf("movies left after delete: %+v", movies)
	}
}

func TestMemoryReturnsCopies(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemory()

	if err := s.CreateGroup(ctx, &Group{ID: "111111", Name: "g", Members: []int64{1}}); err != nil {
		t.Fatal(err)
	}
	g, err := s.GroupByID(ctx, "111111")
	if err != nil {
		t.Fatal(err)
	}
	g.Members[0] = 999
	g.Name = "mutated"

	again, err := s.GroupByID(ctx, "111111")
	if err != nil {
		t.Fatal(err)
	}
	if again.Members[0] != 1 || again.Name != "g" {
		t.Errorf("store state mutated through returned value: %+v", again)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "postgres"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
