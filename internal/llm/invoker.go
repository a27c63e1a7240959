package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/askdb/askdb/internal/observability"
)

// InvokerConfig bounds the invoker. Zero values fall back to conservative
// defaults in NewInvoker.
type InvokerConfig struct {
	MaxConcurrentCalls int
	MaxRetries         int
	BaseDelay          time.Duration
	MaxBackoff         time.Duration
	Jitter             time.Duration
	PermitTimeout      time.Duration
}

// Invoker serializes model access through a weighted semaphore and retries
// transient failures with exponential backoff. The permit covers only the
// network call itself, never the backoff sleep.
type Invoker struct {
	client    Client
	permits   *semaphore.Weighted
	cfg       InvokerConfig
	logger    *slog.Logger
	sleep     func(ctx context.Context, d time.Duration) error
	randFloat func() float64
}

func NewInvoker(client Client, cfg InvokerConfig, logger *slog.Logger) *Invoker {
	if cfg.MaxConcurrentCalls <= 0 {
		cfg.MaxConcurrentCalls = 3
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 20 * time.Second
	}
	if cfg.PermitTimeout <= 0 {
		cfg.PermitTimeout = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Invoker{
		client:    client,
		permits:   semaphore.NewWeighted(int64(cfg.MaxConcurrentCalls)),
		cfg:       cfg,
		logger:    logger,
		sleep:     sleepContext,
		randFloat: rand.Float64,
	}
}

// Invoke performs one model operation, retrying transient provider errors up
// to MaxRetries attempts. SQL-generating operations have Markdown fences
// stripped from the returned text.
func (inv *Invoker) Invoke(ctx context.Context, req Request) (string, error) {
	var lastErr error
	for attempt := 0; attempt < inv.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := inv.backoffDelay(attempt - 1)
			observability.ObserveLLMRetry(string(req.Operation))
			inv.logger.Warn("retrying model call",
				slog.String("operation", string(req.Operation)),
				slog.Int("attempt", attempt+1),
				slog.Duration("delay", delay),
				slog.String("error", lastErr.Error()))
			if err := inv.sleep(ctx, delay); err != nil {
				return "", err
			}
		}
		completion, err := inv.attempt(ctx, req)
		if err == nil {
			observability.ObserveLLMCall(string(req.Operation), "ok")
			text := completion.Text
			if req.Operation == OpGenerateSQL {
				text = StripCodeFence(text)
			}
			return text, nil
		}
		if errors.Is(err, ErrResourceExhausted) {
			observability.ObserveLLMCall(string(req.Operation), "permit_timeout")
			return "", err
		}
		if !Retryable(err) {
			observability.ObserveLLMCall(string(req.Operation), "terminal")
			return "", err
		}
		lastErr = err
	}
	observability.ObserveLLMCall(string(req.Operation), "exhausted")
	return "", fmt.Errorf("model call %s failed after %d attempts: %w", req.Operation, inv.cfg.MaxRetries, lastErr)
}

func (inv *Invoker) attempt(ctx context.Context, req Request) (Completion, error) {
	waitStart := time.Now()
	acquireCtx, cancel := context.WithTimeout(ctx, inv.cfg.PermitTimeout)
	defer cancel()
	if err := inv.permits.Acquire(acquireCtx, 1); err != nil {
		observability.IncrementPermitTimeout()
		return Completion{}, fmt.Errorf("%w after %s: %v", ErrResourceExhausted, inv.cfg.PermitTimeout, err)
	}
	observability.ObservePermitWait(time.Since(waitStart))
	defer inv.permits.Release(1)

	completion, err := inv.client.Complete(ctx, req)
	if err != nil {
		return Completion{}, err
	}
	if strings.TrimSpace(completion.Text) == "" {
		return Completion{}, fmt.Errorf("model call %s: %w", req.Operation, ErrEmptyCompletion)
	}
	return completion, nil
}

func (inv *Invoker) backoffDelay(failures int) time.Duration {
	delay := inv.cfg.BaseDelay
	for i := 0; i < failures && delay < inv.cfg.MaxBackoff; i++ {
		delay *= 2
	}
	if delay > inv.cfg.MaxBackoff {
		delay = inv.cfg.MaxBackoff
	}
	if inv.cfg.Jitter > 0 {
		delay += time.Duration(inv.randFloat() * float64(inv.cfg.Jitter))
	}
	return delay
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
