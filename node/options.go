package node

import "time"

type (
	configuration struct {
		blockTime        time.Duration
		enact            EnactFunc
		enactmentHistory int
	}

	Option func(c *configuration)
)

func defaultConfiguration() *configuration {
	return &configuration{
		blockTime:        time.Second,
		enactmentHistory: 100,
	}
}

func WithBlockTime(d time.Duration) Option {
	return func(c *configuration) {
		c.blockTime = d
	}
}

/*
WithEnactmentHandler sets the function called for proposals which reach
their enactment block. Without handler enactments are only recorded.
*/
func WithEnactmentHandler(fn EnactFunc) Option {
	return func(c *configuration) {
		c.enact = fn
	}
}

// WithEnactmentHistory sets how many recent enactments the node remembers.
func WithEnactmentHistory(n int) Option {
	return func(c *configuration) {
		c.enactmentHistory = max(n, 0)
	}
}
