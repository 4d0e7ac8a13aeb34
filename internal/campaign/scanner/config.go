package scanner

import "time"

// Config controls the campaign scan schedule.
type Config struct {
	// Interval between scans. The scanner also runs once at service start.
	Interval time.Duration
	// CutoffHour is the hour of day (UTC) used as the expiry boundary: a
	// campaign expires once its end date is before today at this hour.
	CutoffHour int
	// ReconcileWindow bounds how far back the reconciliation sweep looks
	// for finished campaigns that never reached the refund queue.
	ReconcileWindow time.Duration
	// LockTTL caps how long a crashed scan holds the run lock.
	LockTTL    time.Duration
	JobTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Interval:        24 * time.Hour,
		CutoffHour:      7,
		ReconcileWindow: 7 * 24 * time.Hour,
		LockTTL:         10 * time.Minute,
		JobTimeout:      5 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.Interval <= 0 {
		c.Interval = defaults.Interval
	}
	if c.CutoffHour < 0 || c.CutoffHour > 23 {
		c.CutoffHour = defaults.CutoffHour
	}
	if c.ReconcileWindow <= 0 {
		c.ReconcileWindow = defaults.ReconcileWindow
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	return c
}
