package communication

import (
	"context"
	"fmt"

	"github.com/puzpuzpuz/xsync/v3"

	"gridsql/core"
)

// streamBuffer bounds how many envelopes a single fetch stream can hold
// before publishers block.
const streamBuffer = 1024

// Inbox buffers the row batches other nodes publish for this node, keyed
// by fetch tag. Fetch blocks until every named producer has delivered its
// Last envelope, then hands the merged rows to the executor.
type Inbox struct {
	streams *xsync.MapOf[string, chan *BatchEnvelope]
}

// NewInbox creates an empty inbox.
func NewInbox() *Inbox {
	return &Inbox{streams: xsync.NewMapOf[string, chan *BatchEnvelope]()}
}

func (in *Inbox) stream(tag string) chan *BatchEnvelope {
	ch, _ := in.streams.LoadOrCompute(tag, func() chan *BatchEnvelope {
		return make(chan *BatchEnvelope, streamBuffer)
	})
	return ch
}

// Publish delivers one envelope into the inbox. Publishers and fetchers
// may arrive in either order; the stream is created on first touch.
func (in *Inbox) Publish(ctx context.Context, envelope *BatchEnvelope) error {
	select {
	case in.stream(envelope.Tag) <- envelope:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Fetch gathers all rows published under tag until every source has
// finished its stream. The stream is discarded afterwards: fetch tags are
// unique per (stage, consumer) and never reused.
func (in *Inbox) Fetch(ctx context.Context, tag string, sources []string) ([]core.Row, error) {
	ch := in.stream(tag)
	defer in.streams.Delete(tag)

	pending := make(map[string]bool, len(sources))
	for _, source := range sources {
		pending[source] = true
	}

	var rows []core.Row
	for len(pending) > 0 {
		select {
		case envelope := <-ch:
			if !pending[envelope.Producer] {
				return nil, fmt.Errorf("unexpected producer %s on stream %s", envelope.Producer, tag)
			}
			batch, err := envelope.Rows()
			if err != nil {
				return nil, err
			}
			rows = append(rows, batch...)
			if envelope.Last {
				delete(pending, envelope.Producer)
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return rows, nil
}
