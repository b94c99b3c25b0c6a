package txcache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/mesh-intelligence/homebook/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeSource serves canned months and counts fetches.
type fakeSource struct {
	mu      sync.Mutex
	data    map[string][]*types.Transaction // "ledger/month"
	fail    map[string]error
	calls   map[string]int
	release chan struct{} // when set, fetches block until closed
	started atomic.Int32
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		data:  make(map[string][]*types.Transaction),
		fail:  make(map[string]error),
		calls: make(map[string]int),
	}
}

func (f *fakeSource) FetchMonth(ctx context.Context, ledgerID, month string) ([]*types.Transaction, error) {
	key := ledgerID + "/" + month
	f.mu.Lock()
	f.calls[key]++
	err := f.fail[key]
	txs := f.data[key]
	release := f.release
	f.mu.Unlock()

	f.started.Add(1)
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	out := make([]*types.Transaction, len(txs))
	for i, tx := range txs {
		out[i] = tx.Clone()
	}
	return out, nil
}

func (f *fakeSource) add(tx *types.Transaction) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := tx.LedgerID + "/" + tx.Month()
	f.data[key] = append(f.data[key], tx)
}

func (f *fakeSource) callCount(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func tx(id, ledgerID, date string, amount int64, updated time.Duration) *types.Transaction {
	d, _ := time.Parse(types.DateLayout, date)
	return &types.Transaction{
		TransactionID: id,
		LedgerID:      ledgerID,
		Type:          types.TransactionExpense,
		Date:          d,
		Amount:        decimal.NewFromInt(amount),
		Category1:     "Food",
		CreatedAt:     base,
		UpdatedAt:     base.Add(updated),
	}
}

func ids(txs []*types.Transaction) []string {
	out := make([]string, len(txs))
	for i, t := range txs {
		out[i] = t.TransactionID
	}
	return out
}

func TestLoadFetchesMissingMonthsOnce(t *testing.T) {
	src := newFakeSource()
	src.add(tx("a", "L", "2024-05-02", 1, 0))
	src.add(tx("b", "L", "2024-05-20", 2, 0))
	src.add(tx("c", "L", "2024-06-01", 3, 0))
	c := New(src)
	ctx := context.Background()

	got, err := c.Load(ctx, "L", "2024-05", "2024-06")
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b", "a"}, ids(got))
	assert.True(t, c.Loaded("L", "2024-05"))

	got, err = c.Load(ctx, "L", "2024-05", "2024-05", "2024-07")
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, ids(got))
	assert.Equal(t, 1, src.callCount("L/2024-05"))
	assert.Equal(t, 1, src.callCount("L/2024-07"))
	assert.True(t, c.Loaded("L", "2024-07"), "empty months are loaded too")
}

func TestLoadReturnsCopies(t *testing.T) {
	src := newFakeSource()
	src.add(tx("a", "L", "2024-05-02", 1, 0))
	c := New(src)

	got, err := c.Load(context.Background(), "L", "2024-05")
	require.NoError(t, err)
	got[0].Amount = decimal.NewFromInt(999)

	again, err := c.Load(context.Background(), "L", "2024-05")
	require.NoError(t, err)
	assert.Equal(t, "1", again[0].Amount.String())
}

func TestLoadValidatesInput(t *testing.T) {
	c := New(newFakeSource())
	_, err := c.Load(context.Background(), "", "2024-05")
	assert.ErrorIs(t, err, types.ErrInvalidID)
	_, err = c.Load(context.Background(), "L", "May 2024")
	assert.ErrorIs(t, err, types.ErrInvalidMonth)
}

func TestLoadFailureLeavesMonthUnloaded(t *testing.T) {
	src := newFakeSource()
	src.add(tx("a", "L", "2024-05-02", 1, 0))
	boom := errors.New("disk on fire")
	src.fail["L/2024-06"] = boom
	c := New(src, WithConcurrency(1))

	_, err := c.Load(context.Background(), "L", "2024-05", "2024-06")
	require.ErrorIs(t, err, boom)
	assert.False(t, c.Loaded("L", "2024-06"))

	src.mu.Lock()
	delete(src.fail, "L/2024-06")
	src.mu.Unlock()
	got, err := c.Load(context.Background(), "L", "2024-05", "2024-06")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(got))
	assert.Equal(t, 2, src.callCount("L/2024-06"))
}

func TestConcurrentLoadsShareOneFetch(t *testing.T) {
	src := newFakeSource()
	src.add(tx("a", "L", "2024-05-02", 1, 0))
	src.release = make(chan struct{})
	c := New(src)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := c.Load(context.Background(), "L", "2024-05")
			assert.NoError(t, err)
			assert.Len(t, got, 1)
		}()
	}
	require.Eventually(t, func() bool { return src.started.Load() >= 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(src.release)
	wg.Wait()

	assert.Equal(t, 1, src.callCount("L/2024-05"))
}

func TestLoadHonoursCancellation(t *testing.T) {
	src := newFakeSource()
	src.release = make(chan struct{})
	defer close(src.release)
	c := New(src)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Load(ctx, "L", "2024-05")
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, c.Loaded("L", "2024-05"))
}

func TestPutLastWriteWins(t *testing.T) {
	c := New(newFakeSource())

	assert.True(t, c.Put(tx("a", "L", "2024-05-02", 1, time.Minute)))
	assert.False(t, c.Put(tx("a", "L", "2024-05-02", 2, 0)), "older write is ignored")
	assert.True(t, c.Put(tx("a", "L", "2024-05-02", 3, time.Minute)), "equal timestamps replace")
	assert.False(t, c.Put(nil))

	got, err := c.Load(context.Background(), "L", "2024-05")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "3", got[0].Amount.String())
}

func TestPutMovesBetweenShards(t *testing.T) {
	src := newFakeSource()
	c := New(src)
	_, err := c.Load(context.Background(), "L", "2024-05", "2024-06")
	require.NoError(t, err)

	c.Put(tx("a", "L", "2024-05-02", 1, 0))
	c.Put(tx("a", "L", "2024-06-02", 1, time.Second))

	may, err := c.Load(context.Background(), "L", "2024-05")
	require.NoError(t, err)
	assert.Empty(t, may)
	june, err := c.Load(context.Background(), "L", "2024-06")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(june))
	assert.Equal(t, 1, c.Len())
}

func TestFetchMergesWithNewerLocalWrites(t *testing.T) {
	src := newFakeSource()
	src.add(tx("a", "L", "2024-05-02", 1, 0))
	c := New(src)
	c.Put(tx("a", "L", "2024-05-02", 5, time.Hour))
	assert.False(t, c.Loaded("L", "2024-05"), "a put does not load the month")

	got, err := c.Load(context.Background(), "L", "2024-05")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "5", got[0].Amount.String())
}

func TestRemoveInvalidateReset(t *testing.T) {
	src := newFakeSource()
	src.add(tx("a", "L", "2024-05-02", 1, 0))
	src.add(tx("b", "L", "2024-06-02", 1, 0))
	src.add(tx("z", "M", "2024-05-02", 1, 0))
	c := New(src)
	ctx := context.Background()

	_, err := c.Load(ctx, "L", "2024-05", "2024-06")
	require.NoError(t, err)
	_, err = c.Load(ctx, "M", "2024-05")
	require.NoError(t, err)

	c.Remove("L", "a")
	c.Remove("L", "missing")
	got, err := c.Load(ctx, "L", "2024-05")
	require.NoError(t, err)
	assert.Empty(t, got)

	c.Invalidate("L", "2024-05")
	assert.False(t, c.Loaded("L", "2024-05"))
	assert.True(t, c.Loaded("L", "2024-06"))
	got, err = c.Load(ctx, "L", "2024-05")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(got), "refetched from the source")

	c.Invalidate("L")
	assert.False(t, c.Loaded("L", "2024-06"))
	assert.True(t, c.Loaded("M", "2024-05"))

	c.Reset()
	assert.False(t, c.Loaded("M", "2024-05"))
	assert.Zero(t, c.Len())
}

func TestRemoveDuringFetchStaysRemoved(t *testing.T) {
	src := newFakeSource()
	src.add(tx("a", "L", "2024-05-02", 1, 0))
	src.add(tx("b", "L", "2024-05-03", 1, 0))
	src.release = make(chan struct{})
	c := New(src)

	done := make(chan error, 1)
	go func() {
		_, err := c.Load(context.Background(), "L", "2024-05")
		done <- err
	}()
	require.Eventually(t, func() bool { return src.started.Load() >= 1 }, time.Second, time.Millisecond)

	// The fetch has already read "a"; deleting it now must win.
	c.Remove("L", "a")
	close(src.release)
	require.NoError(t, <-done)

	assert.True(t, c.Loaded("L", "2024-05"))
	got, err := c.Load(context.Background(), "L", "2024-05")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids(got))
	assert.Equal(t, 1, c.Len())
}

func TestSourceFunc(t *testing.T) {
	var calls atomic.Int32
	c := New(SourceFunc(func(ctx context.Context, ledgerID, month string) ([]*types.Transaction, error) {
		calls.Add(1)
		return []*types.Transaction{tx("a", ledgerID, month+"-01", 1, 0), tx("x", "other", month+"-01", 1, 0)}, nil
	}))
	got, err := c.Load(context.Background(), "L", "2024-05")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(got), "rows of other ledgers are dropped")
	assert.Equal(t, int32(1), calls.Load())
}
