package controller

// Clock is the monotonic reference counter derived from a free-running
// 32-bit hardware timer that counts down; reading it as -counter makes
// it strictly increasing.
type Clock struct {
	counter func() int32
}

// NewClock wraps a down-counting hardware timer read function.
func NewClock(counter func() int32) *Clock {
	return &Clock{counter: counter}
}

// Now returns the monotonically increasing reference time.
func (c *Clock) Now() int64 {
	return int64(-c.counter())
}
