package mailer

import "time"

// Config controls the email delivery loops.
type Config struct {
	PopTimeout time.Duration
	// SyncAttempts caps send attempts within one delivery cycle; failures
	// beyond it reschedule the task via the retry queue instead of
	// sleeping in place.
	SyncAttempts int
	// MaxAttempts caps cumulative attempts across all cycles. The counter
	// lives in the task payload, so moving a task between queues never
	// resets it.
	MaxAttempts int
	// Backoff is the sleep table indexed by attempt number; the last
	// entry repeats for later attempts. The first entry also gates how
	// soon a rescheduled task may be re-attempted.
	Backoff        []time.Duration
	HealthInterval time.Duration
	// GateBackoff is the pause after pushing back a not-yet-due retry
	// task, so a retry queue holding only gated tasks does not spin.
	GateBackoff  time.Duration
	ErrorBackoff time.Duration
}

func DefaultConfig() Config {
	return Config{
		PopTimeout:     10 * time.Second,
		SyncAttempts:   3,
		MaxAttempts:    6,
		Backoff:        []time.Duration{time.Second, 5 * time.Second, 30 * time.Second},
		HealthInterval: time.Minute,
		GateBackoff:    200 * time.Millisecond,
		ErrorBackoff:   time.Second,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.PopTimeout <= 0 {
		c.PopTimeout = defaults.PopTimeout
	}
	if c.SyncAttempts <= 0 {
		c.SyncAttempts = defaults.SyncAttempts
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaults.MaxAttempts
	}
	if c.MaxAttempts < c.SyncAttempts {
		c.MaxAttempts = c.SyncAttempts
	}
	if len(c.Backoff) == 0 {
		c.Backoff = defaults.Backoff
	}
	if c.HealthInterval <= 0 {
		c.HealthInterval = defaults.HealthInterval
	}
	if c.GateBackoff <= 0 {
		c.GateBackoff = defaults.GateBackoff
	}
	if c.ErrorBackoff <= 0 {
		c.ErrorBackoff = defaults.ErrorBackoff
	}
	return c
}

// backoffDelay returns the sleep before the next attempt, indexed by the
// number of attempts already made.
func (c Config) backoffDelay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	if attempts > len(c.Backoff) {
		attempts = len(c.Backoff)
	}
	return c.Backoff[attempts-1]
}

// retryGate is the minimum age a rescheduled task must reach before the
// retry consumer re-attempts it.
func (c Config) retryGate() time.Duration {
	return c.Backoff[0]
}
