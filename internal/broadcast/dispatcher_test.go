package broadcast

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/wsync/internal/engine"
	"github.com/roach88/wsync/internal/lock"
	"github.com/roach88/wsync/internal/testutil"
	"github.com/roach88/wsync/internal/translog"
)

const testChannel = "broadcast_queue"

type countingReplayer struct {
	calls atomic.Int32
	err   error
}

func (r *countingReplayer) ProcessLog(ctx context.Context) (int, error) {
	r.calls.Add(1)
	return 0, r.err
}

// listen runs Listen in the background and waits until it has subscribed.
func listen(t *testing.T, d *Dispatcher, h *Hub) (cancel func() error) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- d.Listen(ctx, h, testChannel) }()

	require.Eventually(t, func() bool { return h.Subscribers(testChannel) == 1 }, time.Second, time.Millisecond)
	return func() error {
		stop()
		select {
		case err := <-errCh:
			return err
		case <-time.After(time.Second):
			t.Fatal("listener did not stop")
			return nil
		}
	}
}

func publish(t *testing.T, h *Hub, raw string) {
	t.Helper()
	require.NoError(t, h.Publish(context.Background(), testChannel, []byte(raw)))
}

func TestHandleMessage_ProcessUpdateLog(t *testing.T) {
	r := &countingReplayer{}
	d := NewDispatcher(NewRegistry(r, nil), r)

	err := d.HandleMessage(context.Background(), []byte(`{"kind":"process_update_log","arguments":{}}`))
	require.NoError(t, err)
	assert.Equal(t, int32(1), r.calls.Load())
}

func TestHandleMessage_DiscardsWithoutError(t *testing.T) {
	r := &countingReplayer{}
	d := NewDispatcher(NewRegistry(r, nil), r)

	for _, raw := range [][]byte{
		{0xff, 0x00, 0x13},
		[]byte("not json"),
		[]byte(`{"kind":"future_feature","arguments":{}}`),
		[]byte(`{"arguments":{}}`),
	} {
		assert.NoError(t, d.HandleMessage(context.Background(), raw))
	}
	assert.Equal(t, int32(0), r.calls.Load())
}

func TestHandleMessage_ReturnsHandlerError(t *testing.T) {
	r := &countingReplayer{err: engine.NewConsistencyError(4, 6, "echo")}
	d := NewDispatcher(NewRegistry(r, nil), r)

	err := d.HandleMessage(context.Background(), []byte(`{"kind":"process_update_log"}`))
	require.Error(t, err)
	assert.True(t, engine.IsConsistencyViolation(err))
}

func TestHandleMessage_Timeout(t *testing.T) {
	reg := NewRegistry(&countingReplayer{}, nil)
	reg.Register("slow", func(ctx context.Context, args map[string]any) error {
		<-ctx.Done()
		return ctx.Err()
	})
	d := NewDispatcher(reg, nil, WithHandlerTimeout(5*time.Millisecond))

	err := d.HandleMessage(context.Background(), []byte(`{"kind":"slow"}`))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHandleMessage_Msgpack(t *testing.T) {
	r := &countingReplayer{}
	d := NewDispatcher(NewRegistry(r, nil), r, WithCodec(MsgpackCodec{}))

	raw, err := Encode(MsgpackCodec{}, KindProcessUpdateLog, nil)
	require.NoError(t, err)
	require.NoError(t, d.HandleMessage(context.Background(), raw))
	assert.Equal(t, int32(1), r.calls.Load())

	// JSON on a msgpack channel is garbage, not an error.
	require.NoError(t, d.HandleMessage(context.Background(), []byte(`{"kind":"process_update_log"}`)))
	assert.Equal(t, int32(1), r.calls.Load())
}

func TestHandleMessage_ListTemplates(t *testing.T) {
	m := testutil.NewRecordingManager()
	d := NewDispatcher(NewRegistry(&countingReplayer{}, m), nil)

	require.NoError(t, d.HandleMessage(context.Background(), []byte(`{"kind":"list_templates"}`)))
	assert.Len(t, m.CallsTo("list_templates"), 1)
}

func TestListen_CatchUpBeforeSubscribe(t *testing.T) {
	h := NewHub()
	var subscribersAtReplay int
	r := replayFunc(func(ctx context.Context) (int, error) {
		subscribersAtReplay = h.Subscribers(testChannel)
		return 0, nil
	})
	d := NewDispatcher(NewRegistry(r, nil), r)

	stop := listen(t, d, h)
	require.NoError(t, stop())
	assert.Equal(t, 0, subscribersAtReplay)
}

func TestListen_OneReplayPerMessage(t *testing.T) {
	h := NewHub()
	r := &countingReplayer{}
	d := NewDispatcher(NewRegistry(r, nil), r)
	stop := listen(t, d, h)

	// Startup catch-up.
	require.Equal(t, int32(1), r.calls.Load())

	for i := 0; i < 3; i++ {
		publish(t, h, `{"kind":"process_update_log","arguments":{}}`)
	}
	require.Eventually(t, func() bool { return r.calls.Load() == 4 }, time.Second, time.Millisecond)

	require.NoError(t, stop())
	assert.Equal(t, int32(4), r.calls.Load())
}

func TestListen_SurvivesBadMessages(t *testing.T) {
	h := NewHub()
	r := &countingReplayer{}
	reg := NewRegistry(r, nil)
	reg.Register("explode", func(ctx context.Context, args map[string]any) error {
		panic("handler bug")
	})
	reg.Register("fail", func(ctx context.Context, args map[string]any) error {
		return errors.New("handler failed")
	})
	d := NewDispatcher(reg, r)
	stop := listen(t, d, h)

	publish(t, h, "\x01")
	publish(t, h, "garbage")
	publish(t, h, `{"kind":"future_feature","arguments":{}}`)
	publish(t, h, `{"kind":"explode"}`)
	publish(t, h, `{"kind":"fail"}`)
	publish(t, h, `{"kind":"process_update_log","arguments":{}}`)

	require.Eventually(t, func() bool { return r.calls.Load() == 2 }, time.Second, time.Millisecond)
	require.NoError(t, stop())
}

func TestListen_ReplayErrorsAreContained(t *testing.T) {
	h := NewHub()
	r := &countingReplayer{err: engine.NewUnhandledKindError("future_feature")}
	d := NewDispatcher(NewRegistry(r, nil), r)
	stop := listen(t, d, h)

	publish(t, h, `{"kind":"process_update_log"}`)
	publish(t, h, `{"kind":"process_update_log"}`)
	require.Eventually(t, func() bool { return r.calls.Load() == 3 }, time.Second, time.Millisecond)
	require.NoError(t, stop())
}

func TestListen_SubscribeFailureIsReturned(t *testing.T) {
	h := NewHub()
	h.FailSubscribe = errors.New("connection refused")
	r := &countingReplayer{}
	d := NewDispatcher(NewRegistry(r, nil), r)

	err := d.Listen(context.Background(), h, testChannel)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, int32(1), r.calls.Load())
}

func TestListen_EndsWhenStreamCloses(t *testing.T) {
	h := NewHub()
	r := &countingReplayer{}
	d := NewDispatcher(NewRegistry(r, nil), r)

	done := make(chan error, 1)
	go func() { done <- d.Listen(context.Background(), h, testChannel) }()
	require.Eventually(t, func() bool { return h.Subscribers(testChannel) == 1 }, time.Second, time.Millisecond)

	require.NoError(t, h.Close())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("listener did not stop")
	}
}

type failingSubscription struct{ err error }

func (s failingSubscription) Next(context.Context) ([]byte, error) { return nil, s.err }
func (s failingSubscription) Close() error                        { return nil }

type subscriberFunc func(ctx context.Context, channel string) (Subscription, error)

func (f subscriberFunc) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	return f(ctx, channel)
}

func TestListen_TransportFailureIsReturned(t *testing.T) {
	broken := errors.New("socket closed by peer")
	sub := subscriberFunc(func(context.Context, string) (Subscription, error) {
		return failingSubscription{err: broken}, nil
	})
	d := NewDispatcher(NewRegistry(&countingReplayer{}, nil), nil)

	err := d.Listen(context.Background(), sub, testChannel)
	assert.ErrorIs(t, err, broken)
}

type replayFunc func(ctx context.Context) (int, error)

func (f replayFunc) ProcessLog(ctx context.Context) (int, error) { return f(ctx) }

// Two listeners share one log and one lock backend; every trigger is
// applied once per process and no entry is applied twice in a process.
func TestListen_EndToEndWithProcessor(t *testing.T) {
	log := testutil.NewMemoryLog(
		translog.LogEntry{Seq: 0, Kind: translog.KindInit},
		translog.LogEntry{Seq: 1, Kind: translog.KindEcho, Payload: translog.Payload{"msg": "hi"}},
	)
	h := NewHub()

	var managers []*testutil.RecordingManager
	var stops []func() error
	for i := 0; i < 2; i++ {
		m := testutil.NewRecordingManager()
		p := engine.NewProcessor(log, lock.New(nil), engine.NewLogRegistry(m))
		d := NewDispatcher(NewRegistry(p, m), p)

		ctx, cancel := context.WithCancel(context.Background())
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, d.Listen(ctx, h, testChannel))
		}()
		managers = append(managers, m)
		stops = append(stops, func() error { cancel(); wg.Wait(); return nil })
	}
	require.Eventually(t, func() bool { return h.Subscribers(testChannel) == 2 }, time.Second, time.Millisecond)

	log.Append(translog.KindPull, translog.Payload{"key": "k", "driver": "d", "command": "show x"})
	publish(t, h, `{"kind":"process_update_log","arguments":{}}`)
	publish(t, h, `{"kind":"process_update_log","arguments":{}}`)

	for _, m := range managers {
		m := m
		require.Eventually(t, func() bool { return len(m.CallsTo("add_template")) == 1 }, time.Second, time.Millisecond)
	}
	for _, stop := range stops {
		require.NoError(t, stop())
	}
	for _, m := range managers {
		assert.Equal(t, []testutil.TemplateCall{{Op: "add_template", Args: []string{"k", "d", "show x", ""}}}, m.Calls())
	}
}
