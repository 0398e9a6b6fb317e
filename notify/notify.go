// Package notify defines the outbound notification boundary. Delivery is
// best-effort and never part of the engine's correctness contract.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Notifier delivers a templated notification to a platform user.
type Notifier interface {
	Notify(ctx context.Context, recipientID, templateSlug string, payload map[string]any) error
}

// LogNotifier records notifications in the service log. It stands in
// wherever no real delivery channel (email/SMS gateway) is wired.
type LogNotifier struct {
	log zerolog.Logger
}

func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(ctx context.Context, recipientID, templateSlug string, payload map[string]any) error {
	n.log.Info().
		Str("recipient_id", recipientID).
		Str("template", templateSlug).
		Interface("payload", payload).
		Msg("notification dispatched")
	return nil
}

// Async decouples delivery from the request path: callers return immediately
// and failures are logged, not propagated.
type Async struct {
	inner   Notifier
	log     zerolog.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewAsync(inner Notifier, log zerolog.Logger) *Async {
	return &Async{inner: inner, log: log, timeout: 15 * time.Second}
}

func (a *Async) Notify(_ context.Context, recipientID, templateSlug string, payload map[string]any) error {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()
		if err := a.inner.Notify(ctx, recipientID, templateSlug, payload); err != nil {
			a.log.Warn().Err(err).
				Str("recipient_id", recipientID).
				Str("template", templateSlug).
				Msg("notification delivery failed")
		}
	}()
	return nil
}

// Wait blocks until in-flight deliveries finish. Used on shutdown and in tests.
func (a *Async) Wait() {
	a.wg.Wait()
}
