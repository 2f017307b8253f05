package repository

import "time"

// Option applies a configuration option to a store.
type Option func(*options)

type options struct {
	now           func() time.Time
	busyTimeoutMS int
}

func newOptions(opts []Option) options {
	o := options{
		now:           func() time.Time { return time.Now().UTC() },
		busyTimeoutMS: 5000,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithClock overrides the timestamp source for created_at/updated_at.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithBusyTimeout sets how long a sqlite writer waits for the lock.
func WithBusyTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.busyTimeoutMS = int(d.Milliseconds())
		}
	}
}
