package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/math15/visagate/internal/model"
)

// Credentials are the portal account credentials handed to a browser
// session. Never logged; the redacting log handler masks them if they leak
// into attributes.
type Credentials struct {
	Username string
	Password string
}

// BrowserSession drives an interactive login in an external browser
// context. Implementations live outside this module; the orchestrator only
// consumes the resulting cookies. The session must route through the given
// identity so the login and the subsequent exchanges share one egress path.
type BrowserSession interface {
	Login(ctx context.Context, loginURL string, creds Credentials, cookieSeed map[string]string, identity *model.EgressIdentity, headless bool) (bool, map[string]string, error)
}

// OTPSource delivers one-time codes from an out-of-band channel. A fetch
// that finds no code yet returns ErrOTPNotReady; the poller keeps asking
// until its deadline.
type OTPSource interface {
	Fetch(ctx context.Context) (string, error)
}

// ErrOTPNotReady signals that the out-of-band channel has no code yet.
var ErrOTPNotReady = errors.New("one-time code not available yet")

// PollOTP polls source every interval until a code arrives or deadline
// elapses. A retrieved code is cached under the correlation key (class
// "otp") before it is returned, so a crash between retrieval and use does
// not lose it.
func (o *Orchestrator) PollOTP(ctx context.Context, source OTPSource, correlationKey string, interval, deadline time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		code, err := source.Fetch(ctx)
		switch {
		case err == nil && code != "":
			o.storeOTP(ctx, correlationKey, code)
			return code, nil
		case err != nil && !errors.Is(err, ErrOTPNotReady):
			return "", fmt.Errorf("one-time code fetch failed: %w", err)
		}

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("one-time code did not arrive: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// storeOTP caches a retrieved code. Cache loss is logged, not fatal: the
// code is already in hand.
func (o *Orchestrator) storeOTP(ctx context.Context, correlationKey, code string) {
	if o.cache == nil {
		return
	}
	err := o.cache.Store(&model.CachedArtifact{
		Class:          model.ArtifactOTP,
		CorrelationKey: correlationKey,
		Success:        true,
		Payload:        code,
	})
	if err != nil {
		o.logger.WarnContext(ctx, "failed to cache one-time code",
			slog.String("correlation_key", correlationKey),
			slog.String("error", err.Error()))
	}
}
