package llm

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"Meridiano/internal/ports"
)

// Call kinds reported to a CallObserver.
const (
	KindChat      = "chat"
	KindEmbedding = "embedding"
)

// CallObserver receives the latency and result of every model call.
type CallObserver interface {
	ObserveModelCall(kind string, elapsed time.Duration, err error)
}

// NewLimiter spaces calls by delay with burst 1. A non-positive delay disables spacing.
func NewLimiter(delay time.Duration) *rate.Limiter {
	if delay <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(delay), 1)
}

// GuardedChat waits for the shared limiter before each call and reports it to the observer.
type GuardedChat struct {
	next     ports.ChatClient
	limiter  *rate.Limiter
	observer CallObserver
}

var _ ports.ChatClient = (*GuardedChat)(nil)

// NewGuardedChat wraps next. limiter and observer may be nil.
func NewGuardedChat(next ports.ChatClient, limiter *rate.Limiter, observer CallObserver) *GuardedChat {
	return &GuardedChat{next: next, limiter: limiter, observer: observer}
}

// Complete implements ports.ChatClient.
func (g *GuardedChat) Complete(ctx context.Context, prompt, systemPrompt string) (string, error) {
	if err := wait(ctx, g.limiter); err != nil {
		return "", err
	}
	start := time.Now()
	out, err := g.next.Complete(ctx, prompt, systemPrompt)
	if g.observer != nil {
		g.observer.ObserveModelCall(KindChat, time.Since(start), err)
	}
	return out, err
}

// GuardedEmbedder is the embedding counterpart of GuardedChat.
type GuardedEmbedder struct {
	next     ports.Embedder
	limiter  *rate.Limiter
	observer CallObserver
}

var _ ports.Embedder = (*GuardedEmbedder)(nil)

// NewGuardedEmbedder wraps next. limiter and observer may be nil.
func NewGuardedEmbedder(next ports.Embedder, limiter *rate.Limiter, observer CallObserver) *GuardedEmbedder {
	return &GuardedEmbedder{next: next, limiter: limiter, observer: observer}
}

// Embed implements ports.Embedder.
func (g *GuardedEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if err := wait(ctx, g.limiter); err != nil {
		return nil, err
	}
	start := time.Now()
	out, err := g.next.Embed(ctx, text)
	if g.observer != nil {
		g.observer.ObserveModelCall(KindEmbedding, time.Since(start), err)
	}
	return out, err
}

func wait(ctx context.Context, limiter *rate.Limiter) error {
	if limiter == nil {
		return nil
	}
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait for model slot: %w", err)
	}
	return nil
}
