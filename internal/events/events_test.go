package events

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studio/internal/domain"
	"studio/internal/sqlinline"
)

func TestBusPubSub(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	ch, unsub := bus.Subscribe("user-1")
	defer unsub()

	ev := Event{Type: TypeProgress, RequestID: "req-1", UserID: "user-1", Progress: 40}
	require.NoError(t, bus.Publish(context.Background(), ev))

	select {
	case got := <-ch:
		assert.Equal(t, "req-1", got.RequestID)
		assert.Equal(t, 40, got.Progress)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBusIsolatesUsers(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	ch, unsub := bus.Subscribe("user-1")
	defer unsub()

	require.NoError(t, bus.Publish(context.Background(), Event{RequestID: "req-2", UserID: "user-2"}))

	select {
	case got := <-ch:
		t.Fatalf("received event for another user: %+v", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBusUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	ch, unsub := bus.Subscribe("user-1")
	unsub()
	unsub()

	_, ok := <-ch
	assert.False(t, ok, "channel should be closed")
	assert.Equal(t, 0, bus.Subscribers("user-1"))
	require.NoError(t, bus.Publish(context.Background(), Event{UserID: "user-1"}))
}

func TestBusDropsWhenFull(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	ch, unsub := bus.Subscribe("user-1")
	defer unsub()

	for i := 0; i < subscriberBuffer+10; i++ {
		require.NoError(t, bus.Publish(context.Background(), Event{UserID: "user-1", Progress: i}))
	}
	assert.Len(t, ch, subscriberBuffer)
}

type recorder struct {
	events []Event
	err    error
}

func (r *recorder) Publish(_ context.Context, ev Event) error {
	r.events = append(r.events, ev)
	return r.err
}

func TestMultiPublishesToAll(t *testing.T) {
	a := &recorder{err: errors.New("boom")}
	b := &recorder{}
	err := Multi{a, nil, b}.Publish(context.Background(), Event{UserID: "u"})
	assert.EqualError(t, err, "boom")
	assert.Len(t, a.events, 1)
	assert.Len(t, b.events, 1)
}

type notifyExec struct {
	query string
	args  []any
}

func (n *notifyExec) Exec(_ context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	n.query = query
	n.args = args
	return pgconn.CommandTag{}, nil
}

func (n *notifyExec) QueryRow(context.Context, string, ...any) pgx.Row { return nil }

func (n *notifyExec) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func TestNotifierStampsOrigin(t *testing.T) {
	exec := &notifyExec{}
	n := NewNotifier(exec, "worker-abc")
	require.NoError(t, n.Publish(context.Background(), Event{Type: TypeCompleted, RequestID: "req-1", UserID: "user-1"}))

	assert.Equal(t, sqlinline.QNotifyRequestEvent, exec.query)
	payload := exec.args[0].(string)
	ev, ok := decode(payload)
	require.True(t, ok)
	assert.Equal(t, "worker-abc", ev.Origin)
	assert.Equal(t, TypeCompleted, ev.Type)
}

func TestListenerRelaySkipsOwnOrigin(t *testing.T) {
	target := &recorder{}
	l := NewListener("", "api-1", target, zerolog.Nop())

	l.relay(context.Background(), `{"type":"request.progress","request_id":"r","user_id":"u","origin":"api-1"}`)
	l.relay(context.Background(), `{"type":"request.progress","request_id":"r","user_id":"u","origin":"worker-1","progress":80}`)
	l.relay(context.Background(), `not json`)
	l.relay(context.Background(), `{"type":"request.progress"}`)

	require.Len(t, target.events, 1)
	assert.Equal(t, 80, target.events[0].Progress)
}

func TestFromRequestAndSSE(t *testing.T) {
	req := &domain.Request{ID: "req-1", UserID: "user-1", Status: domain.RequestStatusCompleted, Progress: 100, ResultURL: "https://cdn/x.png"}
	ev := FromRequest(TypeForStatus(req.Status), req)
	assert.Equal(t, TypeCompleted, ev.Type)

	var buf bytes.Buffer
	require.NoError(t, WriteSSE(&buf, ev))
	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "event: request.completed\ndata: {"))
	assert.True(t, strings.HasSuffix(out, "}\n\n"))
	assert.Contains(t, out, `"result_url":"https://cdn/x.png"`)
}
