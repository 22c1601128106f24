package aio_test

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	aio "github.com/ehrlich-b/go-aio"
	"github.com/ehrlich-b/go-aio/internal/data"
	"github.com/ehrlich-b/go-aio/internal/logging"
)

// mockOpener hands out MockChannels keyed by item name. Sources must be
// seeded with SetSource; destinations are created on first open.
type mockOpener struct {
	mu          sync.Mutex
	dst         map[string]*aio.MockChannel
	src         map[string]*aio.MockChannel
	failDst     map[string]error
	free        uint64
	maxTransfer int
	async       bool
	hold        bool
	dstOpens    int
}

func newMockOpener() *mockOpener {
	return &mockOpener{
		dst:     make(map[string]*aio.MockChannel),
		src:     make(map[string]*aio.MockChannel),
		failDst: make(map[string]error),
	}
}

func (o *mockOpener) SetSource(name string, content []byte) *aio.MockChannel {
	o.mu.Lock()
	defer o.mu.Unlock()
	ch := aio.NewMockChannel(content)
	o.configure(ch)
	o.src[name] = ch
	return ch
}

func (o *mockOpener) Destination(name string) *aio.MockChannel {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.dst[name]
}

func (o *mockOpener) configure(ch *aio.MockChannel) {
	ch.SetMaxTransfer(o.maxTransfer)
	ch.SetAsync(o.async)
	if o.hold {
		ch.Hold()
	}
}

func (o *mockOpener) freeSpace() (uint64, error) { return o.free, nil }

func (o *mockOpener) OpenDestination(ctx context.Context, op *aio.Operation) (aio.Channel, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dstOpens++
	name := op.Item().Name()
	if err, ok := o.failDst[name]; ok {
		status, ierr := aio.ClassifyError(err, o.freeSpace)
		if ierr != nil {
			return nil, ierr
		}
		op.Fail(status, aio.WrapError("OPEN_DST", err))
		return nil, nil
	}
	ch, ok := o.dst[name]
	if !ok || !ch.IsOpen() {
		ch = aio.NewMockChannel(nil)
		o.configure(ch)
		o.dst[name] = ch
	}
	return ch, nil
}

func (o *mockOpener) OpenSource(ctx context.Context, op *aio.Operation) (aio.Channel, error) {
	if op.SrcPath() == "" && (op.Type() == aio.OpCreate || op.Type() == aio.OpCopy) {
		return nil, nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	ch, ok := o.src[op.Item().Name()]
	if !ok {
		op.Fail(aio.StatusFailIO, aio.WrapError("OPEN_SRC",
			&fs.PathError{Op: "open", Path: op.Item().Name(), Err: syscall.ENOENT}))
		return nil, nil
	}
	return ch, nil
}

func newDriver(t testing.TB, opener aio.Opener, params aio.Params) (*aio.Driver, *aio.MockScheduler) {
	t.Helper()
	sched := aio.NewMockScheduler()
	d, err := aio.New(opener, sched, params, &aio.Options{Logger: logging.Nop()})
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d, sched
}

func chunked(chunk int) aio.Params {
	p := aio.DefaultParams()
	p.ChunkSize = chunk
	return p
}

func runOps(t *testing.T, sched *aio.MockScheduler, d *aio.Driver, ops ...*aio.Operation) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, sched.Run(ctx, d, ops))
}

func content(it *data.Item) []byte {
	buf := make([]byte, it.Size())
	it.Fill(buf, 0)
	return buf
}

func assertReleased(t *testing.T, d *aio.Driver) {
	t.Helper()
	assert.Equal(t, 0, d.OpenChannels(), "channel cache empty")
	assert.Equal(t, int64(0), d.Throttle().Held(), "permits released")
}

func TestNewValidation(t *testing.T) {
	sched := aio.NewMockScheduler()
	_, err := aio.New(nil, sched, aio.DefaultParams(), nil)
	assert.ErrorIs(t, err, aio.ErrInvalidParams)

	_, err = aio.New(newMockOpener(), nil, aio.DefaultParams(), nil)
	assert.ErrorIs(t, err, aio.ErrInvalidParams)

	p := aio.DefaultParams()
	p.ChunkSize = aio.MaxChunkSize + 1
	_, err = aio.New(newMockOpener(), sched, p, nil)
	assert.ErrorIs(t, err, aio.ErrInvalidParams)
}

func TestCreateContinuations(t *testing.T) {
	tests := []struct {
		name        string
		size        int64
		chunk       int
		maxTransfer int
		wantCalls   int
	}{
		{"single call", 1000, 4096, 0, 1},
		{"exact multiple", 9000, 3000, 0, 3},
		{"remainder", 10000, 3000, 0, 4},
		{"short transfers", 10000, 4096, 1000, 10},
		{"empty item", 0, 4096, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opener := newMockOpener()
			opener.maxTransfer = tt.maxTransfer
			d, sched := newDriver(t, opener, chunked(tt.chunk))

			it := data.NewInput(3, 8192).NewItem("obj", tt.size)
			op := aio.NewOperation(it, aio.OpCreate, "", "dst")
			runOps(t, sched, d, op)

			require.Equal(t, aio.StatusSucc, op.Status(), "err: %v", op.Err())
			assert.Equal(t, tt.size, op.BytesDone())
			assert.Equal(t, tt.size, it.Position())

			ch := opener.Destination("obj")
			_, writes, closes := ch.Calls()
			assert.Equal(t, tt.wantCalls, writes)
			assert.Equal(t, max(tt.wantCalls-1, 0), sched.Resubmits(), "one continuation per extra call")
			assert.Equal(t, 1, closes)
			assert.Equal(t, content(it), ch.Bytes())
			assertReleased(t, d)
		})
	}
}

func TestProgressIsMonotone(t *testing.T) {
	opener := newMockOpener()
	opener.hold = true
	d, sched := newDriver(t, opener, chunked(1000))
	ctx := context.Background()

	op := aio.NewOperation(data.NewInput(1, 0).NewItem("mono", 4500), aio.OpCreate, "", "")
	ok, err := d.Submit(ctx, op)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, aio.StatusActive, op.Status())

	ch := opener.Destination("mono")
	var seen []int64
	for !op.Status().IsTerminal() {
		assert.Equal(t, 1, ch.Flush())
		seen = append(seen, op.BytesDone())
		if op.Status().IsTerminal() {
			break
		}
		ch.Hold()
		_, err := d.Submit(ctx, op)
		require.NoError(t, err)
	}

	assert.Equal(t, []int64{1000, 2000, 3000, 4000, 4500}, seen)
	assert.Equal(t, aio.StatusSucc, op.Status())
	assert.Len(t, sched.Completed(), 1)
}

func TestSubmitWhileInFlight(t *testing.T) {
	opener := newMockOpener()
	opener.hold = true
	d, _ := newDriver(t, opener, chunked(100))
	ctx := context.Background()

	op := aio.NewOperation(data.NewInput(1, 0).NewItem("x", 300), aio.OpCreate, "", "")
	_, err := d.Submit(ctx, op)
	require.NoError(t, err)

	ok, err := d.Submit(ctx, op)
	require.NoError(t, err)
	assert.True(t, ok)
	_, writes, _ := opener.Destination("x").Calls()
	assert.Equal(t, 1, writes, "no second call while one is outstanding")
}

func TestCopyByteExact(t *testing.T) {
	for _, async := range []bool{false, true} {
		t.Run(map[bool]string{false: "inline", true: "async"}[async], func(t *testing.T) {
			opener := newMockOpener()
			opener.async = async
			d, sched := newDriver(t, opener, chunked(4096))

			it := data.NewInput(7, 0).NewItem("copied", 50_000)
			src := opener.SetSource("copied", content(it))
			op := aio.NewOperation(it, aio.OpCopy, "src", "dst")
			runOps(t, sched, d, op)

			require.Equal(t, aio.StatusSucc, op.Status(), "err: %v", op.Err())
			dst := opener.Destination("copied")
			assert.Equal(t, src.Bytes(), dst.Bytes())

			reads, _, srcCloses := src.Calls()
			_, writes, dstCloses := dst.Calls()
			assert.Equal(t, 13, reads)
			assert.Equal(t, 13, writes)
			assert.Equal(t, 1, srcCloses)
			assert.Equal(t, 1, dstCloses)
			assertReleased(t, d)
		})
	}
}

func TestCopyTruncatedSource(t *testing.T) {
	opener := newMockOpener()
	d, sched := newDriver(t, opener, chunked(256))

	it := data.NewInput(7, 0).NewItem("short", 1000)
	opener.SetSource("short", content(it)[:600])
	op := aio.NewOperation(it, aio.OpCopy, "src", "dst")
	runOps(t, sched, d, op)

	assert.Equal(t, aio.StatusFailIO, op.Status())
	var se *aio.SizeError
	require.ErrorAs(t, op.Err(), &se)
	assert.Equal(t, int64(600), se.Actual)
	assertReleased(t, d)
}

func TestReadTruncated(t *testing.T) {
	opener := newMockOpener()
	d, sched := newDriver(t, opener, chunked(256))

	it := data.NewInput(5, 0).NewItem("trunc", 1000)
	opener.SetSource("trunc", content(it)[:600])
	op := aio.NewOperation(it, aio.OpRead, "src", "")
	runOps(t, sched, d, op)

	assert.Equal(t, aio.StatusFailSize, op.Status())
	var se *aio.SizeError
	require.ErrorAs(t, op.Err(), &se)
	assert.Equal(t, int64(1000), se.Expected)
	assert.Equal(t, int64(600), se.Actual)
	assert.Equal(t, uint64(1), d.MetricsSnapshot().SizeMismatches)
	assertReleased(t, d)
}

func TestReadCorruption(t *testing.T) {
	tests := []struct {
		name    string
		updated []int
		chunk   int
		flip    int64
	}{
		{"base layer", nil, 4096, 700},
		{"updated ranges", []int{3, 9, 10}, 4096, 700},
		{"updated small chunks", []int{9}, 64, 1500},
		{"first byte", []int{0}, 4096, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opener := newMockOpener()
			d, sched := newDriver(t, opener, chunked(tt.chunk))

			it := data.NewInput(9, 0).NewItem("corrupt", 3000)
			it.MarkUpdated(tt.updated...)
			buf := content(it)
			buf[tt.flip] ^= 0xff
			opener.SetSource("corrupt", buf)

			op := aio.NewOperation(it, aio.OpRead, "src", "")
			runOps(t, sched, d, op)

			assert.Equal(t, aio.StatusFailCorrupt, op.Status())
			var ce *aio.CorruptionError
			require.ErrorAs(t, op.Err(), &ce)
			assert.Equal(t, tt.flip, ce.Offset)
			assert.Equal(t, aio.RangeIndex(tt.flip), op.RangeIndex())
			assert.LessOrEqual(t, op.BytesDone(), tt.flip)
			assertReleased(t, d)
		})
	}
}

func TestReadUpdatedVerifiesPerRange(t *testing.T) {
	opener := newMockOpener()
	d, sched := newDriver(t, opener, chunked(4096))

	it := data.NewInput(2, 0).NewItem("ranged", 5000)
	it.MarkUpdated(2, 11)
	src := opener.SetSource("ranged", content(it))

	op := aio.NewOperation(it, aio.OpUpdate, "src", "")
	runOps(t, sched, d, op)

	require.Equal(t, aio.StatusSucc, op.Status(), "err: %v", op.Err())
	reads, _, _ := src.Calls()
	assert.Equal(t, data.RangeCount(5000), reads, "one read per range")
}

func TestReadWithoutVerify(t *testing.T) {
	opener := newMockOpener()
	params := chunked(4096)
	params.Verify = false
	d, sched := newDriver(t, opener, params)

	it := data.NewInput(9, 0).NewItem("unchecked", 2000)
	buf := content(it)
	buf[10] ^= 1
	opener.SetSource("unchecked", buf)

	op := aio.NewOperation(it, aio.OpRead, "src", "")
	runOps(t, sched, d, op)
	assert.Equal(t, aio.StatusSucc, op.Status())
}

func TestReadMissingSource(t *testing.T) {
	opener := newMockOpener()
	d, sched := newDriver(t, opener, chunked(4096))

	op := aio.NewOperation(data.NewInput(1, 0).NewItem("ghost", 10), aio.OpRead, "src", "")
	runOps(t, sched, d, op)

	assert.Equal(t, aio.StatusFailIO, op.Status())
	assert.ErrorIs(t, op.Err(), fs.ErrNotExist)
	assertReleased(t, d)
}

func TestOpenDestinationFailures(t *testing.T) {
	tests := []struct {
		name string
		typ  aio.OpType
		err  error
		free uint64
		want aio.Status
	}{
		{"permission", aio.OpCreate, &fs.PathError{Op: "open", Path: "d", Err: syscall.EACCES}, 0, aio.StatusFailAuth},
		{"volume full", aio.OpCreate, &fs.PathError{Op: "write", Path: "d", Err: syscall.ENOSPC}, 0, aio.StatusFailNoSpace},
		{"enospc with room", aio.OpCreate, &fs.PathError{Op: "write", Path: "d", Err: syscall.ENOSPC}, 1 << 20, aio.StatusFailIO},
		{"missing parent", aio.OpCreate, &fs.PathError{Op: "open", Path: "d", Err: syscall.ENOENT}, 0, aio.StatusFailIO},
		{"opaque", aio.OpCreate, errors.New("backend exploded"), 0, aio.StatusFailUnknown},
		{"copy permission", aio.OpCopy, &fs.PathError{Op: "open", Path: "d", Err: syscall.EACCES}, 0, aio.StatusFailAuth},
		{"copy read-only", aio.OpCopy, &fs.PathError{Op: "open", Path: "d", Err: syscall.EROFS}, 0, aio.StatusFailAuth},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opener := newMockOpener()
			opener.free = tt.free
			opener.failDst["f"] = tt.err
			d, sched := newDriver(t, opener, chunked(4096))

			it := data.NewInput(1, 0).NewItem("f", 100)
			var src *aio.MockChannel
			srcPath := ""
			if tt.typ == aio.OpCopy {
				src = opener.SetSource("f", content(it))
				srcPath = "src"
			}
			op := aio.NewOperation(it, tt.typ, srcPath, "d")
			runOps(t, sched, d, op)

			assert.Equal(t, tt.want, op.Status())
			assert.ErrorIs(t, op.Err(), tt.err)
			assert.False(t, d.HasChannels(op), "no destination cached")
			assert.Nil(t, opener.Destination("f"))
			assert.Zero(t, op.BytesDone())
			assert.Zero(t, it.Position())
			if src != nil {
				reads, writes, closes := src.Calls()
				assert.Zero(t, reads, "source never read")
				assert.Zero(t, writes)
				assert.Zero(t, closes, "source never opened, so never closed")
			}
			assertReleased(t, d)
		})
	}
}

func TestCopyMissingSourceWritesNothing(t *testing.T) {
	opener := newMockOpener()
	d, sched := newDriver(t, opener, chunked(4096))

	it := data.NewInput(1, 0).NewItem("ghost", 5000)
	op := aio.NewOperation(it, aio.OpCopy, "src", "dst")
	runOps(t, sched, d, op)

	assert.Equal(t, aio.StatusFailIO, op.Status())
	assert.ErrorIs(t, op.Err(), fs.ErrNotExist)
	assert.Zero(t, op.BytesDone())
	assert.Zero(t, it.Position())

	dst := opener.Destination("ghost")
	require.NotNil(t, dst, "destination is opened before the source")
	_, writes, _ := dst.Calls()
	assert.Zero(t, writes)
	assert.Empty(t, dst.Bytes())
	assert.False(t, dst.IsOpen(), "destination closed on finalize")
	assertReleased(t, d)
}

func TestIOFailureMidTransfer(t *testing.T) {
	opener := newMockOpener()
	d, _ := newDriver(t, opener, chunked(100))
	ctx := context.Background()

	op := aio.NewOperation(data.NewInput(1, 0).NewItem("eio", 500), aio.OpCreate, "", "")
	_, err := d.Submit(ctx, op)
	require.NoError(t, err)
	assert.Equal(t, int64(100), op.BytesDone())

	opener.Destination("eio").FailNext(syscall.EIO)
	_, err = d.Submit(ctx, op)
	require.NoError(t, err)

	assert.Equal(t, aio.StatusFailIO, op.Status())
	assert.ErrorIs(t, op.Err(), syscall.EIO)
	assert.Equal(t, int64(100), op.BytesDone())
	assertReleased(t, d)
}

func TestBatchAdmission(t *testing.T) {
	opener := newMockOpener()
	opener.hold = true
	params := chunked(4096)
	params.Concurrency = 3
	d, sched := newDriver(t, opener, params)
	ctx := context.Background()

	in := data.NewInput(1, 0)
	ops := make([]*aio.Operation, 5)
	for i := range ops {
		ops[i] = aio.NewOperation(in.NewItem(string(rune('a'+i)), 100), aio.OpCreate, "", "")
	}

	n, err := d.SubmitBatch(ctx, ops, 0, len(ops))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	for i, op := range ops {
		want := aio.StatusActive
		if i >= n {
			want = aio.StatusPending
		}
		assert.Equal(t, want, op.Status(), "op %d", i)
	}
	assert.Equal(t, int64(3), d.Throttle().Held(), "permits equal ACTIVE count")
	assert.Equal(t, 3, d.OpenChannels())
	assert.Equal(t, uint64(1), d.MetricsSnapshot().Refused)

	for _, op := range ops[:n] {
		opener.Destination(op.Item().Name()).Flush()
	}
	assertReleased(t, d)

	n, err = d.SubmitBatch(ctx, ops, 3, 99)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	for _, op := range ops[3:] {
		opener.Destination(op.Item().Name()).Flush()
	}
	assert.Len(t, sched.Completed(), 5)
	assert.Equal(t, int64(3), d.MetricsSnapshot().MaxActive)
}

func TestPermitsTrackActiveOps(t *testing.T) {
	opener := newMockOpener()
	opener.async = true
	params := chunked(512)
	params.Concurrency = 4
	d, sched := newDriver(t, opener, params)

	in := data.NewInput(4, 0)
	ops := make([]*aio.Operation, 40)
	for i := range ops {
		ops[i] = aio.NewOperation(in.NewItem("p-"+string(rune('A'+i)), 3000), aio.OpCreate, "", "")
	}

	done := make(chan struct{})
	var violations int
	go func() {
		defer close(done)
		for {
			if d.Throttle().Held() > 4 {
				violations++
			}
			if len(sched.Completed()) == len(ops) {
				return
			}
			time.Sleep(50 * time.Microsecond)
		}
	}()

	runOps(t, sched, d, ops...)
	<-done
	assert.Zero(t, violations)
	for _, op := range ops {
		assert.Equal(t, aio.StatusSucc, op.Status())
	}
	assert.LessOrEqual(t, d.MetricsSnapshot().MaxActive, int64(4))
	assertReleased(t, d)
}

func TestLostContinuation(t *testing.T) {
	opener := newMockOpener()
	d, sched := newDriver(t, opener, chunked(100))
	sched.Refuse(true)

	op := aio.NewOperation(data.NewInput(1, 0).NewItem("lost", 1000), aio.OpCreate, "", "")
	ok, err := d.Submit(context.Background(), op)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, aio.StatusFailUnknown, op.Status())
	assert.ErrorIs(t, op.Err(), aio.ErrContinuationLost)
	assert.ErrorIs(t, d.LastError(), aio.ErrContinuationLost)
	assert.ErrorIs(t, op.Err(), aio.ErrQueueFull)
	assert.Equal(t, uint64(1), d.MetricsSnapshot().LostContinuations)
	assert.Len(t, sched.Completed(), 1)
	assertReleased(t, d)
}

type interruptingOpener struct {
	*mockOpener
	failFirst bool
}

func (o *interruptingOpener) OpenDestination(ctx context.Context, op *aio.Operation) (aio.Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if o.failFirst {
		o.failFirst = false
		return nil, context.DeadlineExceeded
	}
	return o.mockOpener.OpenDestination(ctx, op)
}

func TestInterruptedOpenRollsBack(t *testing.T) {
	opener := &interruptingOpener{mockOpener: newMockOpener(), failFirst: true}
	d, sched := newDriver(t, opener, chunked(4096))

	op := aio.NewOperation(data.NewInput(1, 0).NewItem("intr", 100), aio.OpCreate, "", "")
	ok, err := d.Submit(context.Background(), op)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, ok)
	assert.Equal(t, aio.StatusPending, op.Status())
	assert.Equal(t, int64(0), d.Throttle().Held())
	assert.Empty(t, sched.Completed())

	runOps(t, sched, d, op)
	assert.Equal(t, aio.StatusSucc, op.Status())
}

func TestSubmitCanceledContext(t *testing.T) {
	d, _ := newDriver(t, newMockOpener(), chunked(4096))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	op := aio.NewOperation(data.NewInput(1, 0).NewItem("c", 10), aio.OpCreate, "", "")
	ok, err := d.Submit(ctx, op)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, ok)
	assert.Equal(t, aio.StatusPending, op.Status())
}

func TestNoopAndUnsupportedTypes(t *testing.T) {
	d, sched := newDriver(t, newMockOpener(), chunked(4096))
	in := data.NewInput(1, 0)

	noop := aio.NewOperation(in.NewItem("n", 0), aio.OpNoop, "", "")
	del := aio.NewOperation(in.NewItem("d", 0), aio.OpDelete, "", "")
	list := aio.NewOperation(in.NewItem("l", 0), aio.OpList, "", "")
	runOps(t, sched, d, noop, del, list)

	assert.Equal(t, aio.StatusSucc, noop.Status())
	for _, op := range []*aio.Operation{del, list} {
		assert.Equal(t, aio.StatusFailUnknown, op.Status())
		assert.ErrorIs(t, op.Err(), aio.ErrNotSupported)
	}
	assertReleased(t, d)
}

func TestTerminalOpIsDone(t *testing.T) {
	d, sched := newDriver(t, newMockOpener(), chunked(4096))
	op := aio.NewOperation(data.NewInput(1, 0).NewItem("t", 10), aio.OpCreate, "", "")
	op.Fail(aio.StatusFailIO, errors.New("earlier"))

	ok, err := d.Submit(context.Background(), op)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, sched.Completed())
	assert.Equal(t, int64(0), d.Throttle().Held())
}

func TestCloseClosesCachedChannels(t *testing.T) {
	opener := newMockOpener()
	opener.hold = true
	d, _ := newDriver(t, opener, chunked(4096))
	ctx := context.Background()

	in := data.NewInput(1, 0)
	a := aio.NewOperation(in.NewItem("a", 100), aio.OpCreate, "", "")
	b := aio.NewOperation(in.NewItem("b", 100), aio.OpCreate, "", "")
	_, err := d.SubmitBatch(ctx, []*aio.Operation{a, b}, 0, 2)
	require.NoError(t, err)
	require.Equal(t, 2, d.OpenChannels())

	closeErr := errors.New("flush failed")
	opener.Destination("b").SetCloseError(closeErr)

	err = d.Close()
	assert.ErrorIs(t, err, closeErr)
	assert.Equal(t, 0, d.OpenChannels())
	assert.False(t, opener.Destination("a").IsOpen())
	assert.False(t, opener.Destination("b").IsOpen())
	assert.True(t, d.IsClosed())
	assert.NoError(t, d.Close(), "second close is a no-op")

	_, err = d.Submit(ctx, aio.NewOperation(in.NewItem("c", 1), aio.OpCreate, "", ""))
	assert.ErrorIs(t, err, aio.ErrDriverClosed)
}

func TestCloseFinalizesStrandedContinuation(t *testing.T) {
	opener := newMockOpener()
	d, sched := newDriver(t, opener, chunked(100))
	ctx := context.Background()

	in := data.NewInput(1, 0)
	active := aio.NewOperation(in.NewItem("active", 1000), aio.OpCreate, "", "")
	_, err := d.Submit(ctx, active)
	require.NoError(t, err)
	require.Equal(t, aio.StatusActive, active.Status())
	require.Equal(t, int64(100), active.BytesDone())
	require.Equal(t, int64(1), d.Throttle().Held())

	require.NoError(t, d.Close())

	ok, err := d.Submit(ctx, active)
	assert.False(t, ok)
	assert.ErrorIs(t, err, aio.ErrDriverClosed)
	assert.Equal(t, aio.StatusFailIO, active.Status())
	assert.ErrorIs(t, active.Err(), aio.ErrDriverClosed)
	assert.Equal(t, int64(100), active.BytesDone())
	assert.Equal(t, []*aio.Operation{active}, sched.Completed())
	assertReleased(t, d)

	pending := aio.NewOperation(in.NewItem("pending", 1000), aio.OpCreate, "", "")
	_, err = d.Submit(ctx, pending)
	assert.ErrorIs(t, err, aio.ErrDriverClosed)
	assert.Equal(t, aio.StatusPending, pending.Status())
	assert.NoError(t, pending.Err())
	assert.Len(t, sched.Completed(), 1)
}

func TestResetReissues(t *testing.T) {
	opener := newMockOpener()
	d, sched := newDriver(t, opener, chunked(4096))

	it := data.NewInput(1, 0).NewItem("again", 100)
	op := aio.NewOperation(it, aio.OpCreate, "", "")
	require.Error(t, op.Reset(), "cannot reset a pending op")

	runOps(t, sched, d, op)
	require.Equal(t, aio.StatusSucc, op.Status())

	require.NoError(t, op.Reset())
	assert.Equal(t, aio.StatusPending, op.Status())
	assert.Zero(t, op.BytesDone())
	assert.Zero(t, op.Latency())

	runOps(t, sched, d, op)
	assert.Equal(t, aio.StatusSucc, op.Status())
	assert.Equal(t, 2, opener.dstOpens)
}

func TestDriverAuxiliaryRequests(t *testing.T) {
	d, _ := newDriver(t, newMockOpener(), chunked(4096))

	_, err := d.RequestNewPath("/x")
	assert.ErrorIs(t, err, aio.ErrNotSupported)
	_, err = d.RequestNewAuthToken("secret")
	assert.ErrorIs(t, err, aio.ErrNotSupported)
	_, err = d.List(context.Background(), "/x", "", 10)
	assert.ErrorIs(t, err, aio.ErrNotSupported)
	assert.Zero(t, d.AvgTransferSize())
	d.AdjustIOBuffers(1<<20, aio.OpCreate)
	assert.Equal(t, int64(1<<20), d.AvgTransferSize())
}

func BenchmarkCreateInline(b *testing.B) {
	for _, size := range []int64{4 << 10, 256 << 10} {
		b.Run(fmt.Sprintf("%dK", size>>10), func(b *testing.B) {
			opener := newMockOpener()
			d, sched := newDriver(b, opener, chunked(64<<10))
			in := data.NewInput(1, 0)
			ctx := context.Background()

			b.SetBytes(size)
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				op := aio.NewOperation(in.NewItem(fmt.Sprintf("bench-%d", i), size), aio.OpCreate, "", "")
				if err := sched.Run(ctx, d, []*aio.Operation{op}); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
