package bot

import (
	"context"
	"runtime"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"moviebot/internal/storage"
	kit "moviebot/internal/transport"
	logx "moviebot/pkg/logx"
)

// Command is one recognized slash command.
type Command struct {
	Name        string // without the leading slash
	ArgsUsage   string // e.g. "group_id movie_link"; empty for no-arg commands
	Description string
	Timeout     time.Duration // optional per-command override
	Handle      HandlerFunc
}

// Usage renders the "/name args" line used in usage replies and /help.
func (c Command) Usage() string {
	if c.ArgsUsage == "" {
		return "/" + c.Name
	}
	return "/" + c.Name + " " + c.ArgsUsage
}

// Request carries one inbound command through the middleware chain.
type Request struct {
	Chat         kit.ChatTarget
	FromID       int64
	FromUsername string
	Command      string
	Args         []string

	Adapter kit.Adapter
	Log     logx.Logger
}

// Reply sends a plain-text reply to the chat the command came from.
func (r *Request) Reply(ctx context.Context, text string) error {
	_, err := r.Adapter.SendText(ctx, r.Chat, text, &kit.SendOptions{DisablePreview: true})
	return err
}

// Router maps inbound text updates to command handlers. Handlers run on a
// bounded worker pool; domain errors are translated to user-facing replies
// inside the handlers and never escape the dispatch loop.
type Router struct {
	mu    sync.RWMutex
	cmds  map[string]Command
	order []string // registration order, for /help

	log     logx.Logger
	adapter kit.Adapter
	store   storage.Store

	defaultTimeout time.Duration
	jobs           chan func()
}

func NewRouter(log logx.Logger, adapter kit.Adapter, store storage.Store) *Router {
	return &Router{
		cmds:           map[string]Command{},
		log:            log,
		adapter:        adapter,
		store:          store,
		defaultTimeout: 15 * time.Second,
		jobs:           make(chan func(), 256),
	}
}

// Register installs commands, replacing any previous registration. A /help
// command listing everything registered is always added.
func (r *Router) Register(cmds ...Command) {
	all := append([]Command(nil), cmds...)
	all = append(all, Command{
		Name:        "help",
		Description: "show this list",
		Handle: func(ctx context.Context, req *Request) error {
			return req.Reply(ctx, r.helpText())
		},
	})

	m := map[string]Command{}
	order := make([]string, 0, len(all))
	for _, c := range all {
		name := strings.TrimPrefix(strings.TrimSpace(c.Name), "/")
		if name == "" || c.Handle == nil {
			continue
		}
		if _, dup := m[name]; dup {
			continue
		}
		c.Name = name
		m[name] = c
		order = append(order, name)
	}

	r.mu.Lock()
	r.cmds = m
	r.order = order
	r.mu.Unlock()
}

func (r *Router) helpText() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var b strings.Builder
	b.WriteString("Commands:\n")
	for _, name := range r.order {
		c := r.cmds[name]
		b.WriteString(c.Usage())
		if c.Description != "" {
			b.WriteString(" - ")
			b.WriteString(c.Description)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// DispatchLoop consumes updates until ctx is canceled or the channel closes.
func (r *Router) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	workers := runtime.NumCPU()
	if workers < 2 {
		workers = 2
	}
	r.log.Info("command dispatcher started", logx.Int("workers", workers))

	var (
		wg        sync.WaitGroup
		closeOnce sync.Once
	)
	closeJobs := func() { closeOnce.Do(func() { close(r.jobs) }) }

	wg.Add(workers)
	for i := 0; i < workers; i++ {
		idx := i
		go func() {
			defer wg.Done()
			defer func() {
				if p := recover(); p != nil {
					r.log.Error("panic in command worker", logx.Int("worker", idx), logx.Any("panic", p), logx.String("stack", string(debug.Stack())))
				}
			}()
			for {
				select {
				case <-ctx.Done():
					return
				case job, ok := <-r.jobs:
					if !ok {
						return
					}
					if job != nil {
						job()
					}
				}
			}
		}()
	}

	defer func() {
		closeJobs()
		wg.Wait()
		r.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			r.routeMessage(ctx, up)
		}
	}
}

func (r *Router) routeMessage(root context.Context, up kit.Update) {
	msg := up.Message
	if msg == nil {
		return
	}
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		return
	}

	parts := strings.Fields(text)
	word := strings.TrimPrefix(parts[0], "/")
	// strip the @botname suffix Telegram appends in groups
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	args := parts[1:]

	chat := kit.ChatTarget{ChatID: msg.ChatID}

	// Opportunistic bookkeeping for the users table; never blocks routing.
	if r.store != nil {
		tctx, cancel := context.WithTimeout(root, 2*time.Second)
		if err := r.store.TouchUser(tctx, msg.FromID, msg.FromUsername); err != nil {
			r.log.Debug("touch user failed", logx.Int64("user_id", msg.FromID), logx.Err(err))
		}
		cancel()
	}

	r.mu.RLock()
	cmd, ok := r.cmds[word]
	r.mu.RUnlock()
	if !ok {
		_, _ = r.adapter.SendText(root, chat, "unknown command. try /help", nil)
		return
	}

	reqLog := r.log.With(
		logx.Int64("chat_id", msg.ChatID),
		logx.Int64("from_id", msg.FromID),
		logx.String("cmd", cmd.Name),
	)
	req := &Request{
		Chat:         chat,
		FromID:       msg.FromID,
		FromUsername: msg.FromUsername,
		Command:      cmd.Name,
		Args:         args,
		Adapter:      r.adapter,
		Log:          reqLog,
	}

	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = r.defaultTimeout
	}
	final := Chain(
		cmd.Handle,
		MWPanicRecover(reqLog),
		MWRequestLog(reqLog),
		MWTimeout(timeout),
	)

	select {
	case r.jobs <- func() { _ = final(root, req) }:
	default:
		_, _ = r.adapter.SendText(root, chat, "busy, try again", nil)
	}
}
