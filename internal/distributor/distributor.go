// Package distributor implements the weekly movie send-out: once per
// configured window, each group gets one randomly picked movie delivered to
// every member's private chat, and the picked movie is removed from the pool.
package distributor

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"moviebot/internal/club"
	"moviebot/internal/storage"
	kit "moviebot/internal/transport"
	logx "moviebot/pkg/logx"
)

// fireWindow is how long after the scheduled minute a tick still counts as
// "on time". Combined with the poll interval this makes the trigger robust to
// scheduling jitter without double-firing.
const fireWindow = time.Minute

type Config struct {
	Enabled bool

	// Weekday 0 = Sunday .. 6 = Saturday; Hour/Minute are local time.
	Weekday int
	Hour    int
	Minute  int

	PollInterval time.Duration // default 30s
	Debounce     time.Duration // default 60s
	SendTimeout  time.Duration // per-member send budget, default 10s
	RatePerSec   int           // outbound send rate, default 10
}

func (c *Config) normalize() {
	if c.PollInterval <= 0 {
		c.PollInterval = 30 * time.Second
	}
	if c.Debounce <= 0 {
		c.Debounce = time.Minute
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 10 * time.Second
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 10
	}
}

// Distributor runs the weekly distribution loop.
type Distributor struct {
	cfg     Config
	store   storage.Store
	inv     *club.Inventory
	adapter kit.Adapter
	log     logx.Logger
	clock   Clock

	sched   cron.Schedule
	limiter *rate.Limiter
}

func New(cfg Config, store storage.Store, inv *club.Inventory, adapter kit.Adapter, log logx.Logger, clock Clock) (*Distributor, error) {
	cfg.normalize()
	if clock == nil {
		clock = SystemClock()
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	spec := fmt.Sprintf("%d %d * * %d", cfg.Minute, cfg.Hour, cfg.Weekday)
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("distributor schedule %q: %w", spec, err)
	}

	return &Distributor{
		cfg:     cfg,
		store:   store,
		inv:     inv,
		adapter: adapter,
		log:     log,
		clock:   clock,
		sched:   sched,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
	}, nil
}

// Run polls the clock until ctx is canceled. When the scheduled weekly minute
// arrives it runs one distribution round, then debounces past the window so a
// single occurrence never fires twice.
func (d *Distributor) Run(ctx context.Context) error {
	if !d.cfg.Enabled {
		d.log.Info("distributor disabled")
		<-ctx.Done()
		return nil
	}

	next := d.sched.Next(d.clock.Now())
	d.log.Info("distributor started",
		logx.Time("next_run", next),
		logx.Duration("poll", d.cfg.PollInterval),
	)

	for {
		select {
		case <-ctx.Done():
			d.log.Info("distributor stopped")
			return nil
		case <-d.clock.After(d.cfg.PollInterval):
		}

		now := d.clock.Now()
		if now.Before(next) {
			continue
		}
		if now.Sub(next) >= fireWindow {
			// Missed the window entirely (sleep, clock jump); skip this
			// occurrence rather than distributing at a random time.
			d.log.Warn("distribution window missed",
				logx.Time("scheduled", next),
				logx.Time("now", now),
			)
			next = d.sched.Next(now)
			continue
		}

		d.DistributeOnce(ctx)

		// Debounce: sit out the rest of the window before rearming.
		select {
		case <-ctx.Done():
			d.log.Info("distributor stopped")
			return nil
		case <-d.clock.After(d.cfg.Debounce):
		}
		next = d.sched.Next(d.clock.Now())
		d.log.Debug("distributor rearmed", logx.Time("next_run", next))
	}
}

// DistributeOnce runs a single distribution round over all groups. Failures
// are contained per group and per member; the round always runs to the end.
func (d *Distributor) DistributeOnce(ctx context.Context) {
	started := d.clock.Now()
	groups, err := d.store.AllGroups(ctx)
	if err != nil {
		d.log.Error("distribution aborted: listing groups failed", logx.Err(err))
		return
	}
	d.log.Info("distribution round started", logx.Int("groups", len(groups)))

	var sentGroups, skipped int
	for _, g := range groups {
		if ctx.Err() != nil {
			d.log.Warn("distribution round interrupted", logx.Err(ctx.Err()))
			return
		}
		ok, err := d.distributeGroup(ctx, g)
		if err != nil {
			d.log.Error("group distribution failed",
				logx.String("group_id", g.ID),
				logx.Err(err),
			)
			continue
		}
		if ok {
			sentGroups++
		} else {
			skipped++
		}
	}

	d.log.Info("distribution round finished",
		logx.Int("sent", sentGroups),
		logx.Int("skipped", skipped),
		logx.Duration("dur", d.clock.Now().Sub(started)),
	)
}

// distributeGroup picks one movie for the group, messages every member, and
// removes the movie exactly once. Returns false when the group has no movies.
func (d *Distributor) distributeGroup(ctx context.Context, g *storage.Group) (bool, error) {
	movie, err := d.inv.PickRandom(ctx, g.ID)
	if err != nil {
		return false, fmt.Errorf("pick movie: %w", err)
	}
	if movie == nil {
		d.log.Debug("group has no movies, skipping", logx.String("group_id", g.ID))
		return false, nil
	}

	text := fmt.Sprintf("This week's movie for group '%s':\n%s", g.Name, movie.Link)

	var delivered, failed int
	for _, userID := range g.Members {
		if ctx.Err() != nil {
			break
		}
		if err := d.sendToMember(ctx, userID, text); err != nil {
			failed++
			d.log.Warn("member delivery failed",
				logx.String("group_id", g.ID),
				logx.Int64("user_id", userID),
				logx.Err(err),
			)
			continue
		}
		delivered++
	}

	// The movie leaves the pool once per round regardless of delivery
	// failures; members who missed it can ask with /remaining_movies next
	// time, same as a missed DM.
	if err := d.inv.Remove(ctx, movie.ID); err != nil {
		return false, fmt.Errorf("remove movie %s: %w", movie.ID, err)
	}

	d.log.Info("movie distributed",
		logx.String("group_id", g.ID),
		logx.String("movie_id", movie.ID),
		logx.Int("delivered", delivered),
		logx.Int("failed", failed),
	)
	return true, nil
}

func (d *Distributor) sendToMember(ctx context.Context, userID int64, text string) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return err
	}
	sctx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	defer cancel()
	_, err := d.adapter.SendText(sctx, kit.ChatTarget{ChatID: userID}, text, &kit.SendOptions{DisablePreview: true})
	return err
}
