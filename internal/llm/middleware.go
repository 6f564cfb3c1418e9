package llm

import (
	"context"
	"log/slog"
	"time"

	"cityalert/internal/failure"
	"cityalert/internal/logger"
)

// Middleware decorates a ChatClient. Nothing here retries; a failed turn
// goes back to the user.
type Middleware func(ChatClient) ChatClient

// Wrap applies middlewares in left-to-right order: Wrap(c, A, B) is A(B(c)).
func Wrap(inner ChatClient, mws ...Middleware) ChatClient {
	out := inner
	for i := len(mws) - 1; i >= 0; i-- {
		out = mws[i](out)
	}
	return out
}

// RateLimit throttles Reply calls. rps <= 0 disables it.
func RateLimit(rps float64, burst int) Middleware {
	return func(next ChatClient) ChatClient {
		return &rateLimited{next: next, rl: newRPSLimiter(rps, burst)}
	}
}

type rateLimited struct {
	next ChatClient
	rl   *rpsLimiter
}

func (c *rateLimited) Name() string { return c.next.Name() }

func (c *rateLimited) Close() error {
	c.rl.Stop()
	return c.next.Close()
}

func (c *rateLimited) Reply(ctx context.Context, history []Turn) (string, error) {
	if err := c.rl.Acquire(ctx); err != nil {
		return "", classify("llm.rate_limit", err)
	}
	return c.next.Reply(ctx, history)
}

// WithLogging logs each call's size, latency and failure kind. nil uses
// slog.Default().
func WithLogging(log *slog.Logger) Middleware {
	return func(next ChatClient) ChatClient {
		return &logging{next: next, log: log}
	}
}

type logging struct {
	next ChatClient
	log  *slog.Logger
}

func (l *logging) Name() string { return l.next.Name() }
func (l *logging) Close() error { return l.next.Close() }

func (l *logging) Reply(ctx context.Context, history []Turn) (string, error) {
	log := l.log
	if log == nil {
		log = slog.Default()
	}
	start := time.Now()
	out, err := l.next.Reply(ctx, history)
	if err != nil {
		log.WarnContext(ctx, "chat reply failed",
			"client", l.next.Name(),
			"turns", len(history),
			"kind", failure.KindOf(err).String(),
			"error", err)
		return out, err
	}
	log.DebugContext(ctx, "chat reply",
		"client", l.next.Name(),
		"turns", len(history),
		"reply_chars", len(out),
		"duration_ms", time.Since(start).Milliseconds())
	return out, nil
}

// Traced opens a span around each call.
func Traced() Middleware {
	return func(next ChatClient) ChatClient {
		return &traced{next: next}
	}
}

type traced struct {
	next ChatClient
}

func (t *traced) Name() string { return t.next.Name() }
func (t *traced) Close() error { return t.next.Close() }

func (t *traced) Reply(ctx context.Context, history []Turn) (string, error) {
	sc := logger.StartSpan(ctx, "llm.reply")
	defer sc.End()
	out, err := t.next.Reply(sc.Context(), history)
	sc.RecordError(err)
	return out, err
}
