package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/math15/visagate/internal/model"
)

// stubOTPSource returns not-ready a fixed number of times before yielding a
// code.
type stubOTPSource struct {
	notReady int
	code     string
	err      error

	calls int
}

func (s *stubOTPSource) Fetch(context.Context) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	if s.calls <= s.notReady {
		return "", ErrOTPNotReady
	}
	return s.code, nil
}

func TestPollOTP(t *testing.T) {
	t.Parallel()

	t.Run("code arrives after polling", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, acceptedFactory())
		source := &stubOTPSource{notReady: 2, code: "482913"}

		code, err := env.orch.PollOTP(context.Background(), source, "visitor-9", 10*time.Millisecond, 2*time.Second)
		if err != nil {
			t.Fatalf("PollOTP() error = %v", err)
		}
		if code != "482913" {
			t.Errorf("code = %q, want %q", code, "482913")
		}
		if source.calls != 3 {
			t.Errorf("Fetch() called %d times, want 3", source.calls)
		}

		// The code is cached under the correlation key before being
		// returned.
		artifact, err := env.cache.LatestFor(model.ArtifactOTP, "visitor-9")
		if err != nil {
			t.Fatalf("LatestFor() error = %v", err)
		}
		if artifact.Payload != "482913" {
			t.Errorf("cached payload = %q, want the code", artifact.Payload)
		}
	})

	t.Run("deadline elapses", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, acceptedFactory())
		source := &stubOTPSource{notReady: 1 << 30}

		_, err := env.orch.PollOTP(context.Background(), source, "visitor-9", 10*time.Millisecond, 80*time.Millisecond)
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("PollOTP() error = %v, want deadline exceeded", err)
		}
	})

	t.Run("source failure is fatal", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, acceptedFactory())
		fetchErr := errors.New("imap: connection closed")
		source := &stubOTPSource{err: fetchErr}

		_, err := env.orch.PollOTP(context.Background(), source, "visitor-9", 10*time.Millisecond, time.Second)
		if !errors.Is(err, fetchErr) {
			t.Errorf("PollOTP() error = %v, want source error surfaced", err)
		}
	})
}
