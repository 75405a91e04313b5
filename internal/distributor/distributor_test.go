package distributor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"moviebot/internal/club"
	"moviebot/internal/storage"
	kit "moviebot/internal/transport"
	logx "moviebot/pkg/logx"
)

// scriptClock replays a fixed sequence of instants. Every After() call
// advances to the next instant and fires immediately; once the script is
// exhausted, After() blocks forever so the loop parks until ctx cancel.
type scriptClock struct {
	mu    sync.Mutex
	now   time.Time
	steps []time.Time
}

func newScriptClock(start time.Time, steps ...time.Time) *scriptClock {
	return &scriptClock{now: start, steps: steps}
}

func (c *scriptClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *scriptClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.steps) == 0 {
		return make(chan time.Time) // park
	}
	c.now = c.steps[0]
	c.steps = c.steps[1:]
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

type sentMsg struct {
	ChatID int64
	Text   string
}

// recordAdapter records SendText calls and can fail specific chat ids.
type recordAdapter struct {
	mu      sync.Mutex
	sent    []sentMsg
	failFor map[int64]error
	notify  chan struct{}
}

func newRecordAdapter() *recordAdapter {
	return &recordAdapter{failFor: map[int64]error{}, notify: make(chan struct{}, 64)}
}

func (a *recordAdapter) Start(ctx context.Context, out chan<- kit.Update) error { return nil }
func (a *recordAdapter) Stop(ctx context.Context) error                         { return nil }

func (a *recordAdapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	a.mu.Lock()
	err := a.failFor[to.ChatID]
	if err == nil {
		a.sent = append(a.sent, sentMsg{ChatID: to.ChatID, Text: text})
	}
	a.mu.Unlock()
	select {
	case a.notify <- struct{}{}:
	default:
	}
	if err != nil {
		return kit.MessageRef{}, err
	}
	return kit.MessageRef{ChatID: to.ChatID, MessageID: 1}, nil
}

func (a *recordAdapter) snapshot() []sentMsg {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]sentMsg(nil), a.sent...)
}

func testConfig() Config {
	return Config{
		Enabled:      true,
		Weekday:      1, // Monday
		Hour:         3,
		Minute:       0,
		PollInterval: 30 * time.Second,
		Debounce:     time.Minute,
		SendTimeout:  time.Second,
		RatePerSec:   1000,
	}
}

// mondayBase is shortly before a Monday 03:00 in local time.
func mondayBase(t *testing.T) time.Time {
	t.Helper()
	base := time.Date(2026, time.March, 2, 2, 59, 40, 0, time.Local)
	if base.Weekday() != time.Monday {
		t.Fatalf("base is %s, want Monday", base.Weekday())
	}
	return base
}

func setup(t *testing.T, cfg Config, clock Clock) (*Distributor, *storage.Memory, *club.Inventory, *recordAdapter) {
	t.Helper()
	store := storage.NewMemory()
	inv := club.NewInventory(store, logx.Nop())
	adapter := newRecordAdapter()
	d, err := New(cfg, store, inv, adapter, logx.Nop(), clock)
	if err != nil {
		t.Fatal(err)
	}
	return d, store, inv, adapter
}

func TestRunFiresOncePerWindow(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	base := mondayBase(t)
	clock := newScriptClock(base,
		base.Add(10*time.Second),          // 02:59:50 - before window
		base.Add(30*time.Second),          // 03:00:10 - fire
		base.Add(90*time.Second),          // debounce wakes at 03:01:10
		base.Add(120*time.Second),         // 03:01:40 - before next week's window
	)

	d, store, _, adapter := setup(t, testConfig(), clock)
	if err := store.CreateGroup(ctx, &storage.Group{ID: "111111", Name: "club", Members: []int64{10, 20}}); err != nil {
		t.Fatal(err)
	}
	if err := store.AddMovie(ctx, &storage.Movie{GroupID: "111111", Link: "https://pick-me", AddedBy: 10}); err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = d.Run(ctx)
	}()

	// wait for both member deliveries
	for i := 0; i < 2; i++ {
		select {
		case <-adapter.notify:
		case <-ctx.Done():
			t.Fatal("timed out waiting for deliveries")
		}
	}
	cancel()
	<-done

	sent := adapter.snapshot()
	if len(sent) != 2 {
		t.Fatalf("sent %d messages, want 2: %+v", len(sent), sent)
	}
	got := map[int64]bool{}
	for _, m := range sent {
		got[m.ChatID] = true
		if !strings.Contains(m.Text, "https://pick-me") || !strings.Contains(m.Text, "club") {
			t.Errorf("message missing link or group name: %q", m.Text)
		}
	}
	if !got[10] || !got[20] {
		t.Errorf("not every member messaged: %+v", sent)
	}

	movies, err := store.MoviesByGroup(context.Background(), "111111")
	if err != nil {
		t.Fatal(err)
	}
	if len(movies) != 0 {
		t.Fatalf("movie not removed after distribution: %+v", movies)
	}
}

func TestRunSkipsMissedWindow(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	base := mondayBase(t)
	clock := newScriptClock(base,
		base.Add(10*time.Minute), // 03:09:40 - well past the window
	)

	d, store, _, adapter := setup(t, testConfig(), clock)
	if err := store.CreateGroup(ctx, &storage.Group{ID: "111111", Name: "club", Members: []int64{10}}); err != nil {
		t.Fatal(err)
	}
	if err := store.AddMovie(ctx, &storage.Movie{GroupID: "111111", Link: "https://a", AddedBy: 10}); err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = d.Run(ctx)
	}()
	<-ctx.Done()
	<-done

	if sent := adapter.snapshot(); len(sent) != 0 {
		t.Fatalf("missed window must not distribute, sent: %+v", sent)
	}
	movies, err := store.MoviesByGroup(context.Background(), "111111")
	if err != nil {
		t.Fatal(err)
	}
	if len(movies) != 1 {
		t.Fatalf("pool changed on a skipped window: %+v", movies)
	}
}

func TestDistributeOncePerMemberFailureTolerated(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	d, store, _, adapter := setup(t, testConfig(), newScriptClock(mondayBase(t)))
	if err := store.CreateGroup(ctx, &storage.Group{ID: "111111", Name: "club", Members: []int64{10, 20, 30}}); err != nil {
		t.Fatal(err)
	}
	if err := store.AddMovie(ctx, &storage.Movie{GroupID: "111111", Link: "https://a", AddedBy: 10}); err != nil {
		t.Fatal(err)
	}
	adapter.failFor[20] = errors.New("blocked the bot")

	d.DistributeOnce(ctx)

	sent := adapter.snapshot()
	if len(sent) != 2 {
		t.Fatalf("sent %d, want 2 (failed member skipped): %+v", len(sent), sent)
	}
	movies, err := store.MoviesByGroup(ctx, "111111")
	if err != nil {
		t.Fatal(err)
	}
	if len(movies) != 0 {
		t.Fatal("movie must be removed even when a member delivery fails")
	}
}

func TestDistributeOnceSkipsEmptyGroups(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	d, store, _, adapter := setup(t, testConfig(), newScriptClock(mondayBase(t)))
	if err := store.CreateGroup(ctx, &storage.Group{ID: "111111", Name: "empty", Members: []int64{10}}); err != nil {
		t.Fatal(err)
	}
	if err := store.CreateGroup(ctx, &storage.Group{ID: "222222", Name: "stocked", Members: []int64{20}}); err != nil {
		t.Fatal(err)
	}
	if err := store.AddMovie(ctx, &storage.Movie{GroupID: "222222", Link: "https://b", AddedBy: 20}); err != nil {
		t.Fatal(err)
	}

	d.DistributeOnce(ctx)

	sent := adapter.snapshot()
	if len(sent) != 1 || sent[0].ChatID != 20 {
		t.Fatalf("only the stocked group distributes: %+v", sent)
	}
}

func TestDistributeOnceDrainsPoolOverRounds(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	d, store, _, adapter := setup(t, testConfig(), newScriptClock(mondayBase(t)))
	if err := store.CreateGroup(ctx, &storage.Group{ID: "111111", Name: "club", Members: []int64{10}}); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		link := fmt.Sprintf("https://movie-%d", i)
		if err := store.AddMovie(ctx, &storage.Movie{GroupID: "111111", Link: link, AddedBy: 10}); err != nil {
			t.Fatal(err)
		}
	}

	for round := 0; round < 4; round++ {
		d.DistributeOnce(ctx)
	}

	// 3 movies, 4 rounds: the last round finds the pool empty
	if sent := adapter.snapshot(); len(sent) != 3 {
		t.Fatalf("sent %d messages, want 3: %+v", len(sent), sent)
	}
	movies, err := store.MoviesByGroup(ctx, "111111")
	if err != nil {
		t.Fatal(err)
	}
	if len(movies) != 0 {
		t.Fatalf("pool not drained: %+v", movies)
	}
}

func TestNewRejectsBadSchedule(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Weekday = 9
	if _, err := New(cfg, storage.NewMemory(), nil, nil, logx.Nop(), nil); err == nil {
		t.Fatal("expected error for weekday 9")
	}
}
