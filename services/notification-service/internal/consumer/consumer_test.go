package consumer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/salonbook/libs/kafkax"
	"github.com/md-rashed-zaman/salonbook/services/notification-service/internal/inbox"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.msgs) > 0 {
		m := r.msgs[0]
		r.msgs = r.msgs[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func message(offset int64, eventID string) kafka.Message {
	return kafka.Message{
		Topic:   "appointment.booked.v1",
		Offset:  offset,
		Headers: kafkax.EventMeta{EventID: eventID, EventType: "appointment.booked.v1"}.Headers(),
	}
}

type recordingHandler struct {
	mu      sync.Mutex
	handled []string
	// failures is how many more times each event id fails.
	failures map[string]int
}

func (h *recordingHandler) handle(_ context.Context, msg kafka.Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := kafkax.HeaderValue(msg.Headers, "event_id")
	h.handled = append(h.handled, id)
	if h.failures[id] > 0 {
		h.failures[id]--
		return errors.New("smtp down")
	}
	return nil
}

func (h *recordingHandler) calls() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.handled...)
}

// runUntil runs c until done reports true, then stops it and waits for Run
// to return.
func runUntil(t *testing.T, c *Consumer, done func() bool) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() { c.Run(ctx); close(stopped) }()
	defer func() {
		cancel()
		<-stopped
	}()

	require.Eventually(t, done, 2*time.Second, 5*time.Millisecond)
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestRunDedupesAndCommits(t *testing.T) {
	reader := &fakeReader{msgs: []kafka.Message{
		message(1, "evt-1"),
		message(2, "evt-1"),
		message(3, "evt-2"),
		message(4, ""),
	}}
	h := &recordingHandler{}
	c := newWithReader(discard(), inbox.NewMemoryInbox(time.Hour), reader, h.handle)

	runUntil(t, c, func() bool { return len(reader.commits()) == 4 })

	assert.Equal(t, []string{"evt-1", "evt-2"}, h.calls(), "each event handled once")
	assert.Equal(t, []int64{1, 2, 3, 4}, reader.commits())
	assert.True(t, reader.closed, "reader must be closed on shutdown")
}

func TestRunRetriesFailedMessageBeforeMovingOn(t *testing.T) {
	reader := &fakeReader{msgs: []kafka.Message{
		message(1, "evt-1"),
		message(2, "evt-2"),
	}}
	h := &recordingHandler{failures: map[string]int{"evt-1": 2}}
	c := newWithReader(discard(), inbox.NewMemoryInbox(time.Hour), reader, h.handle)
	c.backoff = time.Millisecond
	c.maxBackoff = 2 * time.Millisecond

	runUntil(t, c, func() bool { return len(reader.commits()) == 2 })

	assert.Equal(t, []string{"evt-1", "evt-1", "evt-1", "evt-2"}, h.calls())
	assert.Equal(t, []int64{1, 2}, reader.commits(), "offsets committed in order")
}

func TestRunLeavesFailingMessageUncommittedOnShutdown(t *testing.T) {
	reader := &fakeReader{msgs: []kafka.Message{
		message(1, "evt-1"),
		message(2, "evt-2"),
	}}
	h := &recordingHandler{failures: map[string]int{"evt-1": 1 << 30}}
	in := inbox.NewMemoryInbox(time.Hour)
	c := newWithReader(discard(), in, reader, h.handle)
	c.backoff = time.Millisecond
	c.maxBackoff = time.Millisecond

	runUntil(t, c, func() bool { return len(h.calls()) >= 3 })

	assert.Empty(t, reader.commits(), "nothing may be committed past a failing message")
	assert.NotContains(t, h.calls(), "evt-2", "fetched past the failing message")

	ok, err := in.Record(context.Background(), "evt-1", "appointment.booked.v1")
	require.NoError(t, err)
	assert.True(t, ok, "failed event should not stay in the inbox")
}
