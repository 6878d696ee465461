package notifier

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"remindbot/internal/reminder"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

const (
	defaultSendTimeout = 10 * time.Second
	defaultRatePerSec  = 20

	header = "🔔 REMINDER\n━━━━━━━━━━━━\n"
)

var ErrSendTimeout = errors.New("send timed out")

var spaceRe = regexp.MustCompile(`\s+`)

// Dispatcher delivers reminders through a kit.Sender.
type Dispatcher struct {
	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter

	sender kit.Sender
	log    logx.Logger
}

func New(cfg Config, sender kit.Sender, log logx.Logger) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	d := &Dispatcher{sender: sender, log: log}
	d.Apply(cfg)
	return d
}

// Apply swaps timeout and rate at runtime.
func (d *Dispatcher) Apply(cfg Config) {
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = defaultSendTimeout
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = defaultRatePerSec
	}
	d.mu.Lock()
	d.cfg = cfg
	d.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	d.mu.Unlock()
}

// Deliver sends rec to its shared destination (if any) and privately to its
// owner. Failures are logged and summarized in the Result only.
func (d *Dispatcher) Deliver(ctx context.Context, id reminder.ID, rec reminder.Record) Result {
	log := d.log.With(logx.String("id", string(id)), logx.Int64("owner", rec.OwnerID))
	var res Result

	name := displayName(rec)
	if dst := rec.Destination; dst != nil && dst.ChatID != 0 {
		res.Shared = true
		to := kit.ChatTarget{ChatID: dst.ChatID, ThreadID: dst.ThreadID}

		text, mention := TaggedText(rec.OwnerID, name, rec.Text)
		res.SharedErr = d.send(ctx, to, text, &kit.SendOptions{DisablePreview: true, Mentions: []kit.Mention{mention}})
		if res.SharedErr != nil {
			log.Debug("tagged send failed; falling back to plain text", logx.Int64("chat", dst.ChatID), logx.Err(res.SharedErr))
			res.FallbackSent = true
			res.FallbackErr = d.send(ctx, to, PlainText(name, rec.Text), &kit.SendOptions{DisablePreview: true})
			if res.FallbackErr != nil {
				log.Warn("reminder not delivered to chat", logx.Int64("chat", dst.ChatID), logx.Err(res.FallbackErr))
			}
		}
	}

	// owners who never opened a private chat with the bot cannot be reached; that is expected
	pctx, stop := privateContext(ctx)
	res.PrivateErr = d.send(pctx, kit.UserTarget(rec.OwnerID), PlainText(name, rec.Text), &kit.SendOptions{DisablePreview: true})
	stop()
	if res.PrivateErr != nil {
		log.Debug("private reminder send failed", logx.Err(res.PrivateErr))
	}
	return res
}

// privateContext drops ctx's deadline so slow shared sends cannot use up the
// private send's time. Cancellation of ctx (shutdown) still applies.
func privateContext(ctx context.Context) (context.Context, func()) {
	pctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if errors.Is(ctx.Err(), context.Canceled) {
		cancel()
		return pctx, cancel
	}
	stop := context.AfterFunc(ctx, func() {
		if errors.Is(ctx.Err(), context.Canceled) {
			cancel()
		}
	})
	return pctx, func() {
		stop()
		cancel()
	}
}

// send waits for the limiter, then runs the transport call on its own
// goroutine and gives up when the timeout elapses.
func (d *Dispatcher) send(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) error {
	d.mu.Lock()
	timeout := d.cfg.SendTimeout
	lim := d.limiter
	d.mu.Unlock()

	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := lim.Wait(sctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("send panicked: %v", r)
			}
		}()
		_, err := d.sender.SendText(sctx, to, text, opt)
		done <- err
	}()

	select {
	case err := <-done:
		return err
	case <-sctx.Done():
		if errors.Is(sctx.Err(), context.DeadlineExceeded) {
			return ErrSendTimeout
		}
		return sctx.Err()
	}
}

func displayName(rec reminder.Record) string {
	if n := strings.TrimSpace(rec.DisplayName); n != "" {
		return n
	}
	return "user" + strconv.FormatInt(rec.OwnerID, 10)
}

// TaggedText is the shared-chat body with an @mention of the owner.
func TaggedText(ownerID int64, name, text string) (string, kit.Mention) {
	tag := "@" + spaceRe.ReplaceAllString(name, "")
	return header + tag + " " + text, kit.Mention{UserID: ownerID, Tag: tag}
}

// PlainText is the body used for fallbacks and private delivery.
func PlainText(name, text string) string {
	return header + name + " " + text
}
