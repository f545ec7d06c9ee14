package directory

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// maxBackoffShift caps the exponent so large attempt counts cannot overflow.
const maxBackoffShift = 20

// ConnectionSupervisor opens directory connections with bounded retries and
// exponential backoff.
type ConnectionSupervisor struct {
	cfg    Config
	dialer Dialer
	sleep  SleepFunc
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// NewConnectionSupervisor creates a supervisor for cfg. A nil sleep uses a
// context-aware timer.
func NewConnectionSupervisor(cfg Config, dialer Dialer, sleep SleepFunc) *ConnectionSupervisor {
	if sleep == nil {
		sleep = sleepContext
	}

	return &ConnectionSupervisor{
		cfg:    cfg.WithDefaults(),
		dialer: dialer,
		sleep:  sleep,
	}
}

// Connect tries to open a connection up to RetryAttempts times. Between
// attempts k and k+1 it waits RetryBaseDelay * 2^(k-1); it never waits after
// the last attempt. A handle returned together with an error is released
// before the next attempt. When every attempt fails the returned *Failure
// matches ErrConnectionFailure and wraps the last error seen.
func (s *ConnectionSupervisor) Connect(ctx context.Context) (Conn, error) {
	var lastErr error

	for attempt := 1; attempt <= s.cfg.RetryAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}

		conn, err := s.dialer.Dial(ctx, s.cfg)
		if err == nil {
			connectAttempts.WithLabelValues("success").Inc()

			if attempt > 1 {
				log.Info().Int("attempt", attempt).Msg("LDAP connection established after retries")
			}

			return conn, nil
		}

		connectAttempts.WithLabelValues("failure").Inc()

		lastErr = err

		if conn != nil {
			release(conn, "partial")
		}

		log.Warn().Err(err).
			Int("attempt", attempt).
			Int("max_attempts", s.cfg.RetryAttempts).
			Msg("LDAP connection attempt failed")

		if attempt == s.cfg.RetryAttempts {
			break
		}

		delay := s.Backoff(attempt)
		log.Debug().Dur("delay", delay).Msg("retrying LDAP connection")

		if errSleep := s.sleep(ctx, delay); errSleep != nil {
			lastErr = errSleep
			break
		}
	}

	return nil, &Failure{Kind: KindConnectionFailure, Stage: StageConnect, Err: lastErr}
}

// Backoff returns the delay after the failed attempt number attempt (1-based).
func (s *ConnectionSupervisor) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}

	shift := min(attempt-1, maxBackoffShift)

	return s.cfg.RetryBaseDelay * time.Duration(1<<shift)
}

// WithConn opens a connection, passes it to fn and releases it when fn
// returns, whatever fn returned.
func (s *ConnectionSupervisor) WithConn(ctx context.Context, role string, fn func(Conn) error) error {
	conn, err := s.Connect(ctx)
	if err != nil {
		return err
	}

	defer release(conn, role)

	return fn(conn)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
