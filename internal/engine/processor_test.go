package engine

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/wsync/internal/lock"
	"github.com/roach88/wsync/internal/store"
	"github.com/roach88/wsync/internal/testutil"
	"github.com/roach88/wsync/internal/translog"
)

func newTestProcessor(t *testing.T, log EntrySource, m *testutil.RecordingManager, opts ...ProcessorOption) *Processor {
	t.Helper()
	return NewProcessor(log, lock.New(nil), NewLogRegistry(m), opts...)
}

func scenarioLog() *testutil.MemoryLog {
	return testutil.NewMemoryLog(
		translog.LogEntry{Seq: 0, Kind: translog.KindInit},
		translog.LogEntry{Seq: 1, Kind: translog.KindEcho, Payload: translog.Payload{"msg": "hi"}},
		translog.LogEntry{Seq: 2, Kind: translog.KindPull, Payload: translog.Payload{"key": "k", "driver": "d", "command": "show x"}},
	)
}

func TestProcessLog_EndToEnd(t *testing.T) {
	m := testutil.NewRecordingManager()
	p := newTestProcessor(t, scenarioLog(), m)
	require.Equal(t, int64(-1), p.LastSeq())

	n, err := p.ProcessLog(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, n)
	assert.Equal(t, int64(2), p.LastSeq())
	assert.Equal(t, []testutil.TemplateCall{
		{Op: "add_template", Args: []string{"k", "d", "show x", ""}},
	}, m.Calls())
}

func TestProcessLog_IdempotentWindow(t *testing.T) {
	m := testutil.NewRecordingManager()
	p := newTestProcessor(t, scenarioLog(), m)
	ctx := context.Background()

	_, err := p.ProcessLog(ctx)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		n, err := p.ProcessLog(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
		assert.Equal(t, int64(2), p.LastSeq())
	}
	assert.Len(t, m.Calls(), 1)
}

func TestProcessLog_PicksUpNewEntries(t *testing.T) {
	m := testutil.NewRecordingManager()
	log := scenarioLog()
	p := newTestProcessor(t, log, m)
	ctx := context.Background()

	_, err := p.ProcessLog(ctx)
	require.NoError(t, err)

	log.Append(translog.KindDelete, translog.Payload{"fsm_template": "d_show_x.textfsm"})

	n, err := p.ProcessLog(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, int64(3), p.LastSeq())
	assert.Equal(t, []string{"d_show_x.textfsm"}, m.CallsTo("remove_template")[0].Args)
}

func TestProcessLog_GapIsConsistencyViolation(t *testing.T) {
	log := testutil.NewMemoryLog(
		translog.LogEntry{Seq: 5, Kind: translog.KindEcho},
		translog.LogEntry{Seq: 6, Kind: translog.KindEcho},
	)
	p := newTestProcessor(t, log, testutil.NewRecordingManager(), WithCursor(translog.NewCursorAt(3)))

	// cursor 3, first entry 5: gap.
	n, err := p.ProcessLog(context.Background())
	require.Error(t, err)
	assert.True(t, IsConsistencyViolation(err))
	assert.Equal(t, 0, n)
	assert.Equal(t, int64(3), p.LastSeq())
}

func TestProcessLog_GapMidBatchKeepsGoodPrefix(t *testing.T) {
	log := testutil.NewMemoryLog(
		translog.LogEntry{Seq: 0, Kind: translog.KindInit},
		translog.LogEntry{Seq: 1, Kind: translog.KindEcho},
		translog.LogEntry{Seq: 2, Kind: translog.KindEcho},
		translog.LogEntry{Seq: 3, Kind: translog.KindEcho},
		translog.LogEntry{Seq: 4, Kind: translog.KindEcho},
		translog.LogEntry{Seq: 6, Kind: translog.KindPull, Payload: translog.Payload{"key": "k", "driver": "d", "command": "c"}},
	)
	m := testutil.NewRecordingManager()
	p := newTestProcessor(t, log, m)
	ctx := context.Background()

	n, err := p.ProcessLog(ctx)
	require.Error(t, err)
	assert.True(t, IsConsistencyViolation(err))
	assert.Equal(t, 5, n)
	assert.Equal(t, int64(4), p.LastSeq())
	assert.Empty(t, m.Calls())

	// The same diagnostic is raised until the log is repaired.
	_, err = p.ProcessLog(ctx)
	assert.True(t, IsConsistencyViolation(err))
	assert.Equal(t, int64(4), p.LastSeq())
}

func TestProcessLog_DuplicateIsConsistencyViolation(t *testing.T) {
	log := testutil.NewMemoryLog(
		translog.LogEntry{Seq: 0, Kind: translog.KindInit},
		translog.LogEntry{Seq: 1, Kind: translog.KindEcho},
		translog.LogEntry{Seq: 1, Kind: translog.KindEcho},
	)
	p := newTestProcessor(t, log, testutil.NewRecordingManager())

	_, err := p.ProcessLog(context.Background())
	assert.True(t, IsConsistencyViolation(err))
	assert.Equal(t, int64(1), p.LastSeq())
}

func TestProcessLog_UnhandledKind(t *testing.T) {
	log := testutil.NewMemoryLog(
		translog.LogEntry{Seq: 0, Kind: translog.KindInit},
		translog.LogEntry{Seq: 1, Kind: translog.Kind("future_feature")},
	)
	p := newTestProcessor(t, log, testutil.NewRecordingManager())

	n, err := p.ProcessLog(context.Background())
	require.Error(t, err)
	assert.True(t, IsUnhandledKind(err))
	assert.Equal(t, 1, n)
	assert.Equal(t, int64(0), p.LastSeq())

	var re *ReplayError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, int64(1), re.Seq)
}

func TestProcessLog_InvalidPayload(t *testing.T) {
	log := testutil.NewMemoryLog(
		translog.LogEntry{Seq: 0, Kind: translog.KindPush, Payload: translog.Payload{"driver": "d"}},
	)
	m := testutil.NewRecordingManager()
	p := newTestProcessor(t, log, m)

	_, err := p.ProcessLog(context.Background())
	require.Error(t, err)
	assert.True(t, IsInvalidPayload(err))
	assert.Equal(t, int64(-1), p.LastSeq())
	assert.Empty(t, m.Calls())
}

func TestProcessLog_InvalidPayloadWithoutValidator(t *testing.T) {
	log := testutil.NewMemoryLog(
		translog.LogEntry{Seq: 0, Kind: translog.KindPull, Payload: translog.Payload{"key": "k", "bogus": "x"}},
	)
	p := newTestProcessor(t, log, testutil.NewRecordingManager(), WithValidator(nil))

	_, err := p.ProcessLog(context.Background())
	assert.True(t, IsInvalidPayload(err))
}

func TestProcessLog_UpstreamFailureAdvances(t *testing.T) {
	m := testutil.NewRecordingManager()
	m.Fail["add_template"] = "no such template"
	p := newTestProcessor(t, scenarioLog(), m)

	n, err := p.ProcessLog(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, int64(2), p.LastSeq())
}

func TestProcessLog_HandlerErrorStopsBatch(t *testing.T) {
	r := NewLogRegistry(testutil.NewRecordingManager())
	boom := errors.New("boom")
	custom := NewRegistry[translog.Kind, LogHandler]()
	for _, k := range r.Kinds() {
		h, _ := r.Lookup(k)
		if k == translog.KindEcho {
			h = func(context.Context, translog.Args) error { return boom }
		}
		custom.Register(k, h)
	}
	p := NewProcessor(scenarioLog(), lock.New(nil), custom)

	n, err := p.ProcessLog(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, n)
	assert.Equal(t, int64(0), p.LastSeq())
}

func TestProcessLog_CancelStopsBetweenEntries(t *testing.T) {
	log := testutil.NewMemoryLog(translog.LogEntry{Seq: 0, Kind: translog.KindInit})
	for i := 0; i < 3; i++ {
		log.Append(translog.KindEcho, translog.Payload{"msg": "hi"})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	echoes := 0
	r := NewLogRegistry(testutil.NewRecordingManager())
	custom := NewRegistry[translog.Kind, LogHandler]()
	for _, k := range r.Kinds() {
		h, _ := r.Lookup(k)
		if k == translog.KindEcho {
			h = func(context.Context, translog.Args) error {
				echoes++
				cancel()
				return nil
			}
		}
		custom.Register(k, h)
	}
	p := NewProcessor(log, lock.New(nil), custom)

	n, err := p.ProcessLog(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, echoes)
	assert.Equal(t, int64(1), p.LastSeq())

	n, err = p.ProcessLog(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, int64(3), p.LastSeq())
}

func TestProcessLog_ConcurrentCallersApplyEachEntryOnce(t *testing.T) {
	log := testutil.NewMemoryLog()
	for i := 0; i < 50; i++ {
		log.Append(translog.KindPush, translog.Payload{"driver": "d", "command": "c", "template_text": "t"})
	}
	m := testutil.NewRecordingManager()
	p := newTestProcessor(t, log, m)

	var wg sync.WaitGroup
	total := make(chan int, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := p.ProcessLog(context.Background())
			assert.NoError(t, err)
			total <- n
		}()
	}
	wg.Wait()
	close(total)

	sum := 0
	for n := range total {
		sum += n
	}
	assert.Equal(t, 50, sum)
	assert.Len(t, m.Calls(), 50)
	assert.Equal(t, int64(49), p.LastSeq())
}

func TestProcessLog_SkipModeReturnsWhenBusy(t *testing.T) {
	m := testutil.NewRecordingManager()
	m.Block = make(chan struct{})
	log := scenarioLog()
	l := lock.New(nil)
	p := NewProcessor(log, l, NewLogRegistry(m), WithLockMode(LockModeSkip))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = p.ProcessLog(context.Background())
	}()

	// Wait until the first replay holds the lock.
	require.Eventually(t, func() bool { return log.Fetches() == 1 }, time.Second, time.Millisecond)

	n, err := p.ProcessLog(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	close(m.Block)
	<-done
	assert.Equal(t, int64(2), p.LastSeq())
}

func TestProcessLog_LockContextCancelled(t *testing.T) {
	l := lock.New(nil)
	require.NoError(t, l.Lock(context.Background()))
	p := NewProcessor(scenarioLog(), l, NewLogRegistry(testutil.NewRecordingManager()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := p.ProcessLog(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int64(-1), p.LastSeq())
}

func TestParseLockMode(t *testing.T) {
	m, err := ParseLockMode("skip")
	require.NoError(t, err)
	assert.Equal(t, LockModeSkip, m)
	assert.Equal(t, "skip", m.String())

	m, err = ParseLockMode("")
	require.NoError(t, err)
	assert.Equal(t, LockModeBlock, m)

	_, err = ParseLockMode("spin")
	assert.Error(t, err)
}

// Two processors on one SQLite file stand in for two worker processes.
func TestProcessLog_TwoWorkersSharedStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.db")
	ctx := context.Background()

	producer, err := store.Open(path)
	require.NoError(t, err)
	defer producer.Close()
	_, err = producer.EnsureInitialized(ctx)
	require.NoError(t, err)
	_, err = producer.Append(ctx, translog.KindPull, translog.Payload{"key": "k", "driver": "d", "command": "show x"})
	require.NoError(t, err)

	type worker struct {
		p *Processor
		m *testutil.RecordingManager
	}
	var workers []worker
	for i := 0; i < 2; i++ {
		s, err := store.Open(path)
		require.NoError(t, err)
		defer s.Close()
		m := testutil.NewRecordingManager()
		workers = append(workers, worker{
			p: NewProcessor(s, lock.New(s, lock.WithPollInterval(time.Millisecond)), NewLogRegistry(m)),
			m: m,
		})
	}

	var wg sync.WaitGroup
	for _, w := range workers {
		wg.Add(1)
		go func(w worker) {
			defer wg.Done()
			n, err := w.p.ProcessLog(ctx)
			assert.NoError(t, err)
			assert.Equal(t, 2, n)
		}(w)
	}
	wg.Wait()

	for _, w := range workers {
		assert.Equal(t, int64(1), w.p.LastSeq())
		assert.Len(t, w.m.Calls(), 1)
	}
}
