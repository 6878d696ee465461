package router

import (
	"context"
	"math/rand/v2"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	rtsup "remindbot/internal/runtime/supervisor"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

const (
	defaultWorkers  = 4
	defaultQueueCap = 256
	defaultTimeout  = 30 * time.Second
)

type Command struct {
	Name        string
	Aliases     []string
	Description string
	Timeout     time.Duration // optional per-command override
	Handle      HandlerFunc
}

type Request struct {
	Message *kit.Message
	Chat    kit.ChatTarget
	FromID  int64
	Command string   // canonical name
	Args    []string // whitespace-separated tokens after the command
	ReqID   string

	Sender kit.Sender
	Logger logx.Logger
}

// Sub returns the first argument lowercased, or "".
func (r *Request) Sub() string {
	if r == nil || len(r.Args) == 0 {
		return ""
	}
	return strings.ToLower(r.Args[0])
}

// Reply sends text back to the originating chat (and topic).
func (r *Request) Reply(ctx context.Context, text string) error {
	_, err := r.Sender.SendText(ctx, r.Chat, text, &kit.SendOptions{DisablePreview: true})
	return err
}

// Router parses slash commands from updates and runs their handlers on a
// bounded worker pool.
type Router struct {
	mu    sync.RWMutex
	cmds  map[string]Command // name or alias -> command
	menu  []kit.BotCommand
	botID string // @username suffix accepted on commands, lowercased

	log     logx.Logger
	adapter kit.Adapter
	workers int

	jobs chan func()
}

type Option func(*Router)

func WithWorkers(n int) Option { return func(r *Router) { r.workers = n } }

func WithQueueCap(n int) Option {
	return func(r *Router) {
		if n > 0 {
			r.jobs = make(chan func(), n)
		}
	}
}

// WithBotUsername restricts "/cmd@name" forms to this bot.
func WithBotUsername(name string) Option {
	return func(r *Router) { r.botID = strings.ToLower(strings.TrimPrefix(name, "@")) }
}

func New(log logx.Logger, adapter kit.Adapter, opts ...Option) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Router{
		cmds:    map[string]Command{},
		log:     log,
		adapter: adapter,
		workers: defaultWorkers,
		jobs:    make(chan func(), defaultQueueCap),
	}
	for _, o := range opts {
		if o != nil {
			o(r)
		}
	}
	if r.workers <= 0 {
		r.workers = defaultWorkers
	}
	return r
}

// Register replaces the command set.
func (r *Router) Register(cmds ...Command) {
	m := map[string]Command{}
	valid := make([]Command, 0, len(cmds))
	for _, c := range cmds {
		name := strings.ToLower(strings.TrimSpace(c.Name))
		if name == "" || c.Handle == nil {
			continue
		}
		c.Name = name
		valid = append(valid, c)
		m[name] = c
		for _, a := range c.Aliases {
			a = strings.ToLower(strings.TrimSpace(a))
			if a == "" || strings.ContainsAny(a, " \t") {
				continue
			}
			if _, taken := m[a]; !taken {
				m[a] = c
			}
		}
	}
	r.mu.Lock()
	r.cmds = m
	r.menu = buildMenu(valid)
	r.mu.Unlock()
}

// Run consumes updates until ctx is done or updates is closed.
func (r *Router) Run(ctx context.Context, updates <-chan kit.Update) error {
	sup := rtsup.New(ctx,
		rtsup.WithLogger(r.log.With(logx.String("comp", "telegram.router"))),
		rtsup.WithCancelOnError(false),
	)
	r.log.Info("command dispatcher started", logx.Int("workers", r.workers), logx.Int("job_queue_cap", cap(r.jobs)))

	if up, ok := r.adapter.(kit.CommandMenuUpdater); ok {
		r.mu.RLock()
		menu := r.menu
		r.mu.RUnlock()
		sup.Go0("telegram.menu.update", func(c context.Context) {
			cctx, cancel := context.WithTimeout(c, 10*time.Second)
			defer cancel()
			if err := up.UpdateMenuCommands(cctx, menu); err != nil {
				r.log.Warn("menu update failed", logx.Err(err))
			}
		})
	}

	for i := 0; i < r.workers; i++ {
		idx := i
		sup.GoRestart("command.worker."+strconv.Itoa(idx), func(c context.Context) error {
			r.worker(c, idx)
			return nil
		},
			rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			rtsup.WithStopOnCleanExit(true),
		)
	}

	defer func() {
		sup.Cancel()
		// Wait briefly for workers to drain.
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
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
			r.route(sup.Context(), up)
		}
	}
}

func (r *Router) worker(ctx context.Context, idx int) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-r.jobs:
			func() {
				defer func() {
					if p := recover(); p != nil {
						r.log.Error("panic in command job", logx.Int("worker", idx), logx.Any("panic", p), logx.Stack(string(debug.Stack())))
					}
				}()
				job()
			}()
		}
	}
}

func (r *Router) route(ctx context.Context, up kit.Update) {
	if up.Kind != kit.UpdateMessage || up.Message == nil {
		return
	}
	req, cmd, ok := r.match(up.Message)
	if !ok {
		return
	}

	req.Logger = r.log.With(
		logx.String("rid", req.ReqID),
		logx.Int64("chat_id", req.Chat.ChatID),
		logx.Int("thread_id", req.Chat.ThreadID),
		logx.Int64("from_id", req.FromID),
		logx.String("cmd", cmd.Name),
	)
	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	final := Chain(cmd.Handle,
		MWPanicRecover(r.log),
		MWRequestLog(r.log),
		MWTimeout(timeout),
	)

	select {
	case r.jobs <- func() { _ = final(ctx, req) }:
	default:
		_ = req.Reply(ctx, "⏳ Busy, try again in a moment.")
	}
}

// match resolves "/name[@bot] args..." to a registered command.
func (r *Router) match(msg *kit.Message) (*Request, Command, bool) {
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		return nil, Command{}, false
	}
	parts := strings.Fields(text)
	word := strings.ToLower(strings.TrimPrefix(parts[0], "/"))
	if i := strings.IndexByte(word, '@'); i >= 0 {
		if r.botID != "" && word[i+1:] != r.botID {
			return nil, Command{}, false
		}
		word = word[:i]
	}

	r.mu.RLock()
	cmd, ok := r.cmds[word]
	r.mu.RUnlock()
	if !ok {
		return nil, Command{}, false
	}

	return &Request{
		Message: msg,
		Chat:    kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID},
		FromID:  msg.FromID,
		Command: cmd.Name,
		Args:    parts[1:],
		ReqID:   newReqID(),
		Sender:  r.adapter,
	}, cmd, true
}

var ridSeq atomic.Uint64

// newReqID is short-ish: base36 timestamp + seq + 2 random chars.
func newReqID() string {
	const alpha = "abcdefghijklmnopqrstuvwxyz0123456789"
	n := ridSeq.Add(1)
	suffix := []byte{alpha[rand.IntN(len(alpha))], alpha[rand.IntN(len(alpha))]}
	return strconv.FormatInt(time.Now().UnixNano(), 36) + "-" + strconv.FormatUint(n, 36) + string(suffix)
}
