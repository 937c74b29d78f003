package cart

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/nordic-editorial/storefront/src/frontend/model"
	"github.com/nordic-editorial/storefront/src/frontend/shopify"
	"github.com/nordic-editorial/storefront/src/frontend/shopify/shopifytest"
)

// fakeClient is a scripted remote cart.
type fakeClient struct {
	mu    sync.Mutex
	calls map[string]int

	addGate   chan struct{}
	fetchGate chan struct{}
	addErr    error
	changeErr error
	fetchErr  error

	snap *model.Snapshot
}

func newFakeClient() *fakeClient {
	return &fakeClient{calls: map[string]int{}, snap: &model.Snapshot{Items: []model.LineItem{}}}
}

func (f *fakeClient) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeClient) hit(op string) {
	f.mu.Lock()
	f.calls[op]++
	f.mu.Unlock()
}

func (f *fakeClient) AddItem(ctx context.Context, variantID int64, quantity int) (*model.LineItem, error) {
	f.hit("add")
	if f.addGate != nil {
		<-f.addGate
	}
	if f.addErr != nil {
		return nil, f.addErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	line := model.LineItem{Key: "k1", VariantID: variantID, Quantity: quantity, Price: 1000, FinalLinePrice: 1000}
	f.snap = &model.Snapshot{ItemCount: quantity, TotalPrice: 1000, Items: []model.LineItem{line}}
	return &line, nil
}

func (f *fakeClient) SetQuantity(ctx context.Context, key string, quantity int) (*model.Snapshot, error) {
	f.hit("change")
	if f.changeErr != nil {
		return nil, f.changeErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	items := []model.LineItem{}
	count := 0
	for _, it := range f.snap.Items {
		if it.Key == key {
			it.Quantity = quantity
		}
		if it.Quantity > 0 {
			items = append(items, it)
			count += it.Quantity
		}
	}
	f.snap = &model.Snapshot{ItemCount: count, Items: items}
	return f.snap, nil
}

func (f *fakeClient) FetchSnapshot(ctx context.Context) (*model.Snapshot, error) {
	f.hit("fetch")
	f.mu.Lock()
	snap := f.snap
	f.mu.Unlock()
	if f.fetchGate != nil {
		<-f.fetchGate
	}
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return snap, nil
}

func (f *fakeClient) Clear(ctx context.Context) (*model.Snapshot, error) {
	f.hit("clear")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap = &model.Snapshot{Items: []model.LineItem{}}
	return f.snap, nil
}

func newDrawer(c Client) (*Drawer, *Metrics) {
	m := NewMetrics(noop.NewMeterProvider().Meter("test"), logrus.New())
	return NewDrawer(c, logrus.New(), m), m
}

func TestAdd_RefreshesSnapshot(t *testing.T) {
	fc := newFakeClient()
	d, m := newDrawer(fc)

	out, err := d.Add(context.Background(), 42, 2)
	require.NoError(t, err)
	assert.Equal(t, MsgAdded, out.Message)
	assert.False(t, out.Stale)
	assert.Equal(t, int64(42), out.Added.VariantID)
	assert.Equal(t, 2, out.Snapshot.ItemCount)
	assert.Same(t, out.Snapshot, d.Snapshot())
	assert.Equal(t, 1, fc.count("fetch"))

	mutations, _, _, _ := m.Counts()
	assert.EqualValues(t, 1, mutations)
}

func TestAdd_InvalidQuantity(t *testing.T) {
	fc := newFakeClient()
	d, _ := newDrawer(fc)

	_, err := d.Add(context.Background(), 42, 0)
	assert.True(t, errors.Is(err, ErrInvalidQuantity))
	assert.Zero(t, fc.count("add"))
}

func TestAdd_SecondCallWhileBusy(t *testing.T) {
	fc := newFakeClient()
	fc.addGate = make(chan struct{})
	d, m := newDrawer(fc)

	done := make(chan error, 1)
	go func() {
		_, err := d.Add(context.Background(), 1, 1)
		done <- err
	}()
	require.Eventually(t, func() bool { return fc.count("add") == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, d.Busy())

	_, err := d.Add(context.Background(), 2, 1)
	assert.True(t, errors.Is(err, ErrBusy))
	_, err = d.SetQuantity(context.Background(), "k1", 3)
	assert.True(t, errors.Is(err, ErrBusy))
	_, err = d.Clear(context.Background())
	assert.True(t, errors.Is(err, ErrBusy))
	assert.Equal(t, 1, fc.count("add"))
	assert.Zero(t, fc.count("change"))
	assert.Zero(t, fc.count("clear"))

	close(fc.addGate)
	require.NoError(t, <-done)
	assert.False(t, d.Busy())

	_, _, busy, _ := m.Counts()
	assert.EqualValues(t, 3, busy)
}

func TestAdd_FailureReleasesBusyAndKeepsSnapshot(t *testing.T) {
	fc := newFakeClient()
	d, m := newDrawer(fc)
	_, err := d.Add(context.Background(), 1, 1)
	require.NoError(t, err)
	before := d.Snapshot()

	fc.addErr = &shopify.Error{Op: shopify.OpAdd, Kind: shopify.KindNetwork}
	_, err = d.Add(context.Background(), 1, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shopify.ErrAddFailed))
	assert.False(t, d.Busy())
	assert.Same(t, before, d.Snapshot())

	fc.addErr = nil
	_, err = d.Add(context.Background(), 1, 1)
	assert.NoError(t, err)

	_, failed, _, _ := m.Counts()
	assert.EqualValues(t, 1, failed)
}

func TestAdd_StaleWhenFetchFails(t *testing.T) {
	fc := newFakeClient()
	fc.fetchErr = &shopify.Error{Op: shopify.OpFetch, Kind: shopify.KindNetwork}
	d, m := newDrawer(fc)

	out, err := d.Add(context.Background(), 1, 1)
	require.NoError(t, err)
	assert.True(t, out.Stale)
	assert.Nil(t, out.Snapshot)
	assert.NotNil(t, out.Added)

	_, _, _, stale := m.Counts()
	assert.EqualValues(t, 1, stale)
}

func TestSetQuantity_Messages(t *testing.T) {
	fc := newFakeClient()
	d, _ := newDrawer(fc)
	_, err := d.Add(context.Background(), 1, 2)
	require.NoError(t, err)

	out, err := d.SetQuantity(context.Background(), "k1", 5)
	require.NoError(t, err)
	assert.Equal(t, MsgUpdated, out.Message)
	assert.Equal(t, 5, out.Snapshot.ItemCount)

	out, err = d.Remove(context.Background(), "k1")
	require.NoError(t, err)
	assert.Equal(t, MsgRemoved, out.Message)
	assert.Zero(t, out.Snapshot.ItemCount)
	assert.True(t, d.Snapshot().IsEmpty())

	_, err = d.SetQuantity(context.Background(), "k1", -1)
	assert.True(t, errors.Is(err, ErrInvalidQuantity))
}

func TestStep(t *testing.T) {
	fc := newFakeClient()
	d, _ := newDrawer(fc)
	_, err := d.Add(context.Background(), 1, 1)
	require.NoError(t, err)

	out, err := d.Step(context.Background(), "k1", 1)
	require.NoError(t, err)
	assert.Equal(t, 2, out.Snapshot.ItemCount)

	out, err = d.Step(context.Background(), "k1", -5)
	require.NoError(t, err)
	assert.Equal(t, MsgRemoved, out.Message)

	_, err = d.Step(context.Background(), "missing", 1)
	assert.True(t, errors.Is(err, ErrUnknownLine))
}

func TestStep_LoadsSnapshotFirst(t *testing.T) {
	fc := newFakeClient()
	fc.snap = &model.Snapshot{ItemCount: 3, Items: []model.LineItem{{Key: "a", Quantity: 3}}}
	d, _ := newDrawer(fc)

	out, err := d.Step(context.Background(), "a", -1)
	require.NoError(t, err)
	assert.Equal(t, 2, out.Snapshot.ItemCount)
	assert.Equal(t, 1, fc.count("fetch"))
}

func TestRefresh_DoesNotOverwriteNewerMutation(t *testing.T) {
	fc := newFakeClient()
	fc.snap = &model.Snapshot{ItemCount: 1, Items: []model.LineItem{{Key: "k1", Quantity: 1}}}
	fc.fetchGate = make(chan struct{})
	d, _ := newDrawer(fc)

	type result struct {
		snap *model.Snapshot
		err  error
	}
	done := make(chan result, 1)
	go func() {
		s, err := d.Refresh(context.Background())
		done <- result{s, err}
	}()
	require.Eventually(t, func() bool { return fc.count("fetch") == 1 }, time.Second, 5*time.Millisecond)

	out, err := d.Clear(context.Background())
	require.NoError(t, err)

	close(fc.fetchGate)
	res := <-done
	require.NoError(t, res.err)
	assert.Same(t, out.Snapshot, res.snap)
	assert.Same(t, out.Snapshot, d.Snapshot())
}

func TestConcurrentAdds_OneWins(t *testing.T) {
	fc := newFakeClient()
	fc.addGate = make(chan struct{})
	d, _ := newDrawer(fc)

	var busy int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := d.Add(context.Background(), 1, 1); errors.Is(err, ErrBusy) {
				atomic.AddInt32(&busy, 1)
			}
		}()
	}
	require.Eventually(t, func() bool { return atomic.LoadInt32(&busy) == 7 }, time.Second, 5*time.Millisecond)
	close(fc.addGate)
	wg.Wait()
	assert.Equal(t, 1, fc.count("add"))
}

func TestDrawer_AgainstStore(t *testing.T) {
	srv := shopifytest.NewServer(shopifytest.Seeded())
	defer srv.Close()
	client, err := shopify.New(shopify.Config{StoreURL: srv.URL})
	require.NoError(t, err)
	d, _ := newDrawer(client)
	ctx := context.Background()

	_, err = d.Add(ctx, 1, 1)
	require.NoError(t, err)
	out, err := d.Add(ctx, 10, 2)
	require.NoError(t, err)
	require.Equal(t, 3, out.Snapshot.ItemCount)
	mugKey := out.Snapshot.Items[1].Key

	out, err = d.SetQuantity(ctx, mugKey, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Snapshot.ItemCount)
	_, ok := out.Snapshot.Line(mugKey)
	assert.False(t, ok)

	_, err = d.Add(ctx, 3, 1)
	assert.True(t, errors.Is(err, shopify.ErrRejectedByStore))
	assert.Equal(t, 1, d.Snapshot().ItemCount)

	out, err = d.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, MsgCleared, out.Message)
	assert.True(t, out.Snapshot.IsEmpty())
}

func TestNilMetrics(t *testing.T) {
	d := NewDrawer(newFakeClient(), logrus.New(), nil)
	_, err := d.Clear(context.Background())
	require.NoError(t, err)

	var m *Metrics
	mutations, failed, busy, stale := m.Counts()
	assert.Zero(t, mutations+failed+busy+stale)
}
