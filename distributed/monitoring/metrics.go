package monitoring

import (
	"fmt"
	"sync"

	"github.com/dustin/go-humanize"
)

// Counter tracks a monotonically increasing value.
type Counter struct {
	mu    sync.Mutex
	value int64
}

// Inc increments the counter by one.
func (c *Counter) Inc() {
	c.Add(1)
}

// Add increments the counter by delta.
func (c *Counter) Add(delta int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value += delta
}

// Get returns the current value.
func (c *Counter) Get() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Metrics aggregates the scheduling and exchange counters one coordinator
// maintains across queries.
type Metrics struct {
	QueriesScheduled   Counter
	SchedulingFailures Counter
	TasksEmitted       Counter
	BytesExchanged     Counter
}

// NewMetrics creates a zeroed metrics set.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// Summary renders a one-line human-readable snapshot.
func (m *Metrics) Summary() string {
	return fmt.Sprintf("queries=%s failures=%s tasks=%s exchanged=%s",
		humanize.Comma(m.QueriesScheduled.Get()),
		humanize.Comma(m.SchedulingFailures.Get()),
		humanize.Comma(m.TasksEmitted.Get()),
		humanize.Bytes(uint64(m.BytesExchanged.Get())),
	)
}
