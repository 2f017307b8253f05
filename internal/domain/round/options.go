package round

import "github.com/okian/mixseek/pkg/logger"

// Option applies a configuration option to a Controller.
type Option func(*Controller)

// WithLogger sets the controller's logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}

// WithStateObserver registers fn to be called on every state transition.
func WithStateObserver(fn func(State)) Option {
	return func(c *Controller) {
		c.observe = fn
	}
}
