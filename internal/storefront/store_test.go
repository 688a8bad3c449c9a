package storefront_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"VapeShelf/internal/storefront"
)

var errBackend = &storefront.RequestError{Status: 500, Message: "boom"}

// fakeAPI is an in-memory catalog. Calls can be made to fail, or to park
// until released so a test can look at the store mid-flight.
type fakeAPI struct {
	mu       sync.Mutex
	products []storefront.ProductRecord
	seq      int
	fail     map[string]error
	gates    map[string][]chan struct{}
	blank    map[string]bool
	entered  chan string
	calls    map[string]int
	listCtxs []context.Context
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		fail:    map[string]error{},
		gates:   map[string][]chan struct{}{},
		blank:   map[string]bool{},
		entered: make(chan string, 8),
		calls:   map[string]int{},
	}
}

func (f *fakeAPI) failOn(op string, err error) {
	f.mu.Lock()
	f.fail[op] = err
	f.mu.Unlock()
}

// hold parks the next call of op until the returned func is called. Holds
// queue up, one per call.
func (f *fakeAPI) hold(op string) func() {
	ch := make(chan struct{})
	f.mu.Lock()
	f.gates[op] = append(f.gates[op], ch)
	f.mu.Unlock()
	return func() { close(ch) }
}

// blankOn makes op apply its write and then answer with an empty body.
func (f *fakeAPI) blankOn(op string) {
	f.mu.Lock()
	f.blank[op] = true
	f.mu.Unlock()
}

func (f *fakeAPI) gate(op string) error {
	f.mu.Lock()
	f.calls[op]++
	var ch chan struct{}
	if q := f.gates[op]; len(q) > 0 {
		ch, f.gates[op] = q[0], q[1:]
	}
	f.mu.Unlock()

	if ch != nil {
		f.entered <- op
		<-ch
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fail[op]
}

func (f *fakeAPI) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeAPI) id(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s%d", prefix, f.seq)
}

func (f *fakeAPI) seed(name string, stocks ...int) storefront.ProductRecord {
	f.mu.Lock()
	defer f.mu.Unlock()

	p := storefront.ProductRecord{ID: f.id("p"), Name: &name, Price: storefront.Num(10)}
	for _, s := range stocks {
		p.Flavors = append(p.Flavors, storefront.FlavorRecord{ID: f.id("f"), ProductID: p.ID, Stock: storefront.Num(float64(s))})
	}
	f.products = append(f.products, p)
	return p
}

func (f *fakeAPI) ListProducts(ctx context.Context) ([]storefront.ProductRecord, error) {
	f.mu.Lock()
	f.listCtxs = append(f.listCtxs, ctx)
	f.mu.Unlock()

	if err := f.gate("list"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]storefront.ProductRecord, len(f.products))
	for i, p := range f.products {
		p.Flavors = append([]storefront.FlavorRecord(nil), p.Flavors...)
		out[i] = p
	}
	return out, nil
}

func (f *fakeAPI) CreateProduct(_ context.Context, in storefront.ProductFields) (storefront.ProductRecord, error) {
	if err := f.gate("create_product"); err != nil {
		return storefront.ProductRecord{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	p := storefront.ProductRecord{ID: f.id("p"), Name: in.Name, Category: in.Category, Description: in.Description, ImageKey: in.ImageKey}
	if in.Price != nil {
		p.Price = storefront.Num(*in.Price)
	}
	f.products = append(f.products, p)
	if f.blank["create_product"] {
		return storefront.ProductRecord{}, nil
	}
	return p, nil
}

func (f *fakeAPI) UpdateProduct(_ context.Context, id string, in storefront.ProductFields) (storefront.ProductRecord, error) {
	if err := f.gate("update_product"); err != nil {
		return storefront.ProductRecord{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := range f.products {
		if f.products[i].ID != id {
			continue
		}
		if in.Name != nil {
			f.products[i].Name = in.Name
		}
		if in.Price != nil {
			f.products[i].Price = storefront.Num(*in.Price)
		}
		if f.blank["update_product"] {
			return storefront.ProductRecord{}, nil
		}
		return f.products[i], nil
	}
	return storefront.ProductRecord{}, &storefront.RequestError{Status: 404, Message: "Product not found"}
}

func (f *fakeAPI) DeleteProduct(_ context.Context, id string) error {
	if err := f.gate("delete_product"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := range f.products {
		if f.products[i].ID == id {
			f.products = append(f.products[:i:i], f.products[i+1:]...)
			return nil
		}
	}
	return &storefront.RequestError{Status: 404, Message: "Product not found"}
}

func (f *fakeAPI) AddFlavor(_ context.Context, productID string, in storefront.FlavorFields) (storefront.FlavorRecord, error) {
	if err := f.gate("add_flavor"); err != nil {
		return storefront.FlavorRecord{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := range f.products {
		if f.products[i].ID != productID {
			continue
		}
		fl := storefront.FlavorRecord{ID: f.id("f"), ProductID: productID, Name: in.Name, ColorHex: in.ColorHex}
		if in.NicotineMg != nil {
			fl.NicotineMg = storefront.Num(float64(*in.NicotineMg))
		}
		if in.Stock != nil {
			fl.Stock = storefront.Num(float64(*in.Stock))
		}
		f.products[i].Flavors = append(f.products[i].Flavors, fl)
		if f.blank["add_flavor"] {
			return storefront.FlavorRecord{}, nil
		}
		return fl, nil
	}
	return storefront.FlavorRecord{}, &storefront.RequestError{Status: 404, Message: "Product not found"}
}

func (f *fakeAPI) UpdateFlavor(_ context.Context, id string, in storefront.FlavorFields) (storefront.FlavorRecord, error) {
	if err := f.gate("update_flavor"); err != nil {
		return storefront.FlavorRecord{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := range f.products {
		for j := range f.products[i].Flavors {
			fl := &f.products[i].Flavors[j]
			if fl.ID != id {
				continue
			}
			if in.Stock != nil {
				fl.Stock = storefront.Num(float64(*in.Stock))
			}
			if f.blank["update_flavor"] {
				return storefront.FlavorRecord{}, nil
			}
			return *fl, nil
		}
	}
	return storefront.FlavorRecord{}, &storefront.RequestError{Status: 404, Message: "Flavor not found"}
}

func (f *fakeAPI) DeleteFlavor(_ context.Context, id string) error {
	if err := f.gate("delete_flavor"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := range f.products {
		for j := range f.products[i].Flavors {
			if f.products[i].Flavors[j].ID == id {
				fs := f.products[i].Flavors
				f.products[i].Flavors = append(fs[:j:j], fs[j+1:]...)
				return nil
			}
		}
	}
	return &storefront.RequestError{Status: 404, Message: "Flavor not found"}
}

type recorder struct {
	mu      sync.Mutex
	notices []storefront.Notice
}

func (r *recorder) Notify(n storefront.Notice) {
	r.mu.Lock()
	r.notices = append(r.notices, n)
	r.mu.Unlock()
}

func (r *recorder) titles() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.notices))
	for _, n := range r.notices {
		out = append(out, n.Title)
	}
	return out
}

type harness struct {
	api     *fakeAPI
	store   *storefront.Store
	notes   *recorder
	sel     *storefront.Selection
	metrics *storefront.Metrics
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		api:     newFakeAPI(),
		notes:   &recorder{},
		sel:     &storefront.Selection{},
		metrics: storefront.NewMetrics(prometheus.NewRegistry()),
	}
	h.store = storefront.NewStore(h.api, storefront.Options{
		Notifier:  h.notes,
		Selection: h.sel,
		Metrics:   h.metrics,
		Log:       zap.NewNop(),
	})
	return h
}

// freshLoad is what a brand-new store sees from the same server state.
func (h *harness) freshLoad(t *testing.T) []storefront.Product {
	t.Helper()
	other := storefront.NewStore(h.api, storefront.Options{})
	require.NoError(t, other.Load(context.Background()))
	return other.Snapshot()
}

func (h *harness) waitEntered(t *testing.T, op string) {
	t.Helper()
	select {
	case got := <-h.api.entered:
		require.Equal(t, op, got)
	case <-time.After(2 * time.Second):
		t.Fatalf("%s never reached the api", op)
	}
}

func stockOf(t *testing.T, s *storefront.Store, productID, flavorID string) int {
	t.Helper()
	p, ok := s.Product(productID)
	require.True(t, ok)
	for _, f := range p.Flavors {
		if f.ID == flavorID {
			return f.Stock
		}
	}
	t.Fatalf("flavor %s not in product %s", flavorID, productID)
	return 0
}

func TestLoadReplacesSnapshot(t *testing.T) {
	h := newHarness(t)
	rec := h.api.seed("Cloud", 5, 0)

	require.NoError(t, h.store.Load(context.Background()))
	snap := h.store.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, rec.ID, snap[0].ID)
	assert.Len(t, snap[0].Flavors, 2)

	for _, p := range snap {
		ids := map[string]bool{}
		for _, f := range p.Flavors {
			assert.False(t, ids[f.ID])
			ids[f.ID] = true
			assert.GreaterOrEqual(t, f.Stock, 0)
		}
		assert.GreaterOrEqual(t, p.Price, 0.0)
	}
}

func TestLoadFailureClearsSnapshot(t *testing.T) {
	h := newHarness(t)
	h.api.seed("Cloud", 1)
	require.NoError(t, h.store.Load(context.Background()))

	h.api.failOn("list", errBackend)
	err := h.store.Load(context.Background())
	require.ErrorIs(t, err, storefront.ErrTransport)

	assert.Empty(t, h.store.Snapshot())
	assert.Equal(t, []string{storefront.NoticeLoad}, h.notes.titles())
	assert.Equal(t, 2, h.api.count("list"), "not retried")
}

func TestLoadDropsFlavorIDsSeenInEarlierProducts(t *testing.T) {
	h := newHarness(t)
	a := h.api.seed("A", 1)
	b := h.api.seed("B", 2)
	h.api.products[1].Flavors = append(h.api.products[1].Flavors, a.Flavors[0])

	require.NoError(t, h.store.Load(context.Background()))
	p, ok := h.store.Product(b.ID)
	require.True(t, ok)
	require.Len(t, p.Flavors, 1)
	assert.Equal(t, b.Flavors[0].ID, p.Flavors[0].ID)
}

func TestSnapshotIsACopy(t *testing.T) {
	h := newHarness(t)
	rec := h.api.seed("Cloud", 5)
	require.NoError(t, h.store.Load(context.Background()))

	snap := h.store.Snapshot()
	snap[0].Flavors[0].Stock = 99
	snap[0].Name = "changed"

	assert.Equal(t, 5, stockOf(t, h.store, rec.ID, rec.Flavors[0].ID))
	p, _ := h.store.Product(rec.ID)
	assert.Equal(t, "Cloud", p.Name)
}

func TestCreateProductWaitsForServer(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.store.Load(context.Background()))

	release := h.api.hold("create_product")
	name := "Vapor King"
	done := make(chan storefront.Product)
	go func() {
		p, err := h.store.CreateProduct(context.Background(), storefront.ProductFields{Name: &name})
		assert.NoError(t, err)
		done <- p
	}()

	h.waitEntered(t, "create_product")
	assert.Empty(t, h.store.Snapshot(), "no placeholder before the server answers")
	release()

	created := <-done
	snap := h.store.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, created.ID, snap[0].ID)
	assert.Equal(t, h.api.products[0].ID, snap[0].ID)
	assert.Equal(t, "Vapor King", snap[0].Name)
	assert.Equal(t, "Uncategorized", snap[0].Category)
}

func TestCreateProductFailureReturnsError(t *testing.T) {
	h := newHarness(t)
	h.api.failOn("create_product", errBackend)

	_, err := h.store.CreateProduct(context.Background(), storefront.ProductFields{})
	require.ErrorIs(t, err, errBackend)
	assert.Empty(t, h.store.Snapshot())
	assert.Equal(t, []string{storefront.NoticeCreateProduct}, h.notes.titles())
	assert.Zero(t, h.api.count("list"), "create does not refetch")
}

func TestCreateProductEmptyReplyIsAnError(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.store.Load(context.Background()))
	h.api.blankOn("create_product")

	_, err := h.store.CreateProduct(context.Background(), storefront.ProductFields{})
	require.ErrorIs(t, err, storefront.ErrEmptyReply)
	assert.Empty(t, h.store.Snapshot(), "no product without a server id")
	assert.Equal(t, []string{storefront.NoticeCreateProduct}, h.notes.titles())
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Ops.WithLabelValues("create_product", "error")))
}

func TestUpdateProductEmptyReplyRefetches(t *testing.T) {
	h := newHarness(t)
	rec := h.api.seed("Cloud", 1)
	require.NoError(t, h.store.Load(context.Background()))
	h.api.blankOn("update_product")

	name := "Cloud Pro"
	_, err := h.store.UpdateProduct(context.Background(), rec.ID, storefront.ProductFields{Name: &name})
	require.ErrorIs(t, err, storefront.ErrEmptyReply)

	assert.Equal(t, h.freshLoad(t), h.store.Snapshot())
	got, ok := h.store.Product(rec.ID)
	require.True(t, ok)
	assert.Equal(t, "Cloud Pro", got.Name)
	assert.Equal(t, []string{storefront.NoticeUpdateProduct}, h.notes.titles())
}

func TestUpdateProductUsesServerResponse(t *testing.T) {
	h := newHarness(t)
	rec := h.api.seed("Cloud", 1)
	require.NoError(t, h.store.Load(context.Background()))

	name := "  Cloud Pro  "
	p, err := h.store.UpdateProduct(context.Background(), rec.ID, storefront.ProductFields{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Cloud Pro", p.Name)

	got, _ := h.store.Product(rec.ID)
	assert.Equal(t, "Cloud Pro", got.Name)
}

func TestUpdateProductFailureRefetchesAndReturnsError(t *testing.T) {
	h := newHarness(t)
	rec := h.api.seed("Cloud", 1)
	require.NoError(t, h.store.Load(context.Background()))
	h.api.failOn("update_product", errBackend)

	name := "x"
	_, err := h.store.UpdateProduct(context.Background(), rec.ID, storefront.ProductFields{Name: &name})
	require.ErrorIs(t, err, errBackend)

	assert.Equal(t, 2, h.api.count("list"))
	assert.Equal(t, h.freshLoad(t), h.store.Snapshot())
	assert.Equal(t, []string{storefront.NoticeUpdateProduct}, h.notes.titles())
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Refetches))
}

func TestRemoveProductClearsSelection(t *testing.T) {
	h := newHarness(t)
	rec := h.api.seed("Cloud", 5, 0)
	require.NoError(t, h.store.Load(context.Background()))

	h.sel.Toggle(rec.ID)
	h.sel.Edit(rec.ID)

	require.True(t, h.store.RemoveProduct(context.Background(), rec.ID))
	assert.Empty(t, h.store.Snapshot())
	assert.Empty(t, h.sel.Expanded())
	assert.Empty(t, h.sel.Editing())
	assert.Empty(t, h.notes.titles())
}

func TestRemoveProductFailureKeepsSelectionAndRefetches(t *testing.T) {
	h := newHarness(t)
	rec := h.api.seed("Cloud", 5)
	require.NoError(t, h.store.Load(context.Background()))
	h.sel.Toggle(rec.ID)
	h.api.failOn("delete_product", errBackend)

	assert.False(t, h.store.RemoveProduct(context.Background(), rec.ID))
	assert.Len(t, h.store.Snapshot(), 1)
	assert.Equal(t, rec.ID, h.sel.Expanded())
	assert.Equal(t, 2, h.api.count("list"))
	assert.Equal(t, []string{storefront.NoticeRemoveProduct}, h.notes.titles())
}

func TestAddFlavorAppendsServerRecord(t *testing.T) {
	h := newHarness(t)
	rec := h.api.seed("Cloud", 1)
	require.NoError(t, h.store.Load(context.Background()))

	f, ok := h.store.AddFlavorToProduct(context.Background(), rec.ID, storefront.FlavorInput{Nicotine: "nic 35mg", Stock: "-4"})
	require.True(t, ok)
	assert.Equal(t, "Flavor", f.Name)
	assert.Equal(t, "#3B82F6", f.Color)
	assert.Equal(t, "35mg", f.Nicotine)
	assert.Equal(t, 10, f.Stock)

	p, _ := h.store.Product(rec.ID)
	require.Len(t, p.Flavors, 2)
	assert.Equal(t, f, p.Flavors[1])
}

func TestAddFlavorFailureRefetches(t *testing.T) {
	h := newHarness(t)
	rec := h.api.seed("Cloud", 1)
	require.NoError(t, h.store.Load(context.Background()))
	h.api.failOn("add_flavor", errBackend)

	_, ok := h.store.AddFlavorToProduct(context.Background(), rec.ID, storefront.FlavorInput{})
	assert.False(t, ok)
	assert.Equal(t, 2, h.api.count("list"))
	assert.Equal(t, []string{storefront.NoticeAddFlavor}, h.notes.titles())
}

func TestAddFlavorEmptyReplyRefetches(t *testing.T) {
	h := newHarness(t)
	rec := h.api.seed("Cloud", 1)
	require.NoError(t, h.store.Load(context.Background()))
	h.api.blankOn("add_flavor")

	_, ok := h.store.AddFlavorToProduct(context.Background(), rec.ID, storefront.FlavorInput{Name: "Mint"})
	assert.False(t, ok)

	snap := h.store.Snapshot()
	assert.Equal(t, h.freshLoad(t), snap)
	for _, f := range snap[0].Flavors {
		assert.NotEmpty(t, f.ID)
	}
	assert.Len(t, snap[0].Flavors, 2)
	assert.Equal(t, []string{storefront.NoticeAddFlavor}, h.notes.titles())
}

func TestRemoveFlavorIsOptimistic(t *testing.T) {
	h := newHarness(t)
	rec := h.api.seed("Cloud", 5, 0)
	require.NoError(t, h.store.Load(context.Background()))
	gone := rec.Flavors[0].ID

	release := h.api.hold("delete_flavor")
	done := make(chan bool)
	go func() { done <- h.store.RemoveFlavor(context.Background(), rec.ID, gone) }()

	h.waitEntered(t, "delete_flavor")
	p, _ := h.store.Product(rec.ID)
	require.Len(t, p.Flavors, 1)
	assert.NotEqual(t, gone, p.Flavors[0].ID)

	release()
	assert.True(t, <-done)
	assert.Equal(t, h.freshLoad(t), h.store.Snapshot())
}

func TestRemoveFlavorFailureRestoresServerState(t *testing.T) {
	h := newHarness(t)
	rec := h.api.seed("Cloud", 5, 0)
	require.NoError(t, h.store.Load(context.Background()))
	h.api.failOn("delete_flavor", errBackend)

	assert.False(t, h.store.RemoveFlavor(context.Background(), rec.ID, rec.Flavors[0].ID))

	p, _ := h.store.Product(rec.ID)
	assert.Len(t, p.Flavors, 2)
	assert.Equal(t, []string{storefront.NoticeRemoveFlavor}, h.notes.titles())
}

func TestSetFlavorStockIsOptimistic(t *testing.T) {
	h := newHarness(t)
	rec := h.api.seed("Cloud", 5)
	require.NoError(t, h.store.Load(context.Background()))
	flavorID := rec.Flavors[0].ID

	release := h.api.hold("update_flavor")
	done := make(chan bool)
	go func() { done <- h.store.SetFlavorStock(context.Background(), rec.ID, flavorID, 8) }()

	h.waitEntered(t, "update_flavor")
	assert.Equal(t, 8, stockOf(t, h.store, rec.ID, flavorID), "visible before the server answers")

	release()
	assert.True(t, <-done)
	assert.Equal(t, 8, stockOf(t, h.store, rec.ID, flavorID))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Optimistic.WithLabelValues("set_stock")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Ops.WithLabelValues("set_stock", "ok")))
}

func TestSetFlavorStockClampsNegative(t *testing.T) {
	h := newHarness(t)
	rec := h.api.seed("Cloud", 5)
	require.NoError(t, h.store.Load(context.Background()))

	require.True(t, h.store.SetFlavorStock(context.Background(), rec.ID, rec.Flavors[0].ID, -3))
	assert.Equal(t, 0, stockOf(t, h.store, rec.ID, rec.Flavors[0].ID))
	assert.Equal(t, 0.0, h.api.products[0].Flavors[0].Stock.Value)
}

func TestSetFlavorStockClampsToInt32(t *testing.T) {
	h := newHarness(t)
	rec := h.api.seed("Cloud", 5)
	require.NoError(t, h.store.Load(context.Background()))

	require.True(t, h.store.SetFlavorStock(context.Background(), rec.ID, rec.Flavors[0].ID, math.MaxInt))
	assert.Equal(t, math.MaxInt32, stockOf(t, h.store, rec.ID, rec.Flavors[0].ID))
	assert.Equal(t, float64(math.MaxInt32), h.api.products[0].Flavors[0].Stock.Value)
}

func TestSetFlavorStockEmptyReplyRefetches(t *testing.T) {
	h := newHarness(t)
	rec := h.api.seed("Cloud", 5)
	require.NoError(t, h.store.Load(context.Background()))
	h.api.blankOn("update_flavor")

	assert.False(t, h.store.SetFlavorStock(context.Background(), rec.ID, rec.Flavors[0].ID, 7))
	assert.Equal(t, 7, stockOf(t, h.store, rec.ID, rec.Flavors[0].ID), "server value, not a zero from the empty body")
	assert.Equal(t, []string{storefront.NoticeSetStock}, h.notes.titles())
}

func TestOverlappingStockEditsKeepLastWrite(t *testing.T) {
	h := newHarness(t)
	rec := h.api.seed("Cloud", 5)
	require.NoError(t, h.store.Load(context.Background()))
	flavorID := rec.Flavors[0].ID

	stop := make(chan struct{})
	var readers sync.WaitGroup
	readers.Add(1)
	go func() {
		defer readers.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			for _, p := range h.store.Snapshot() {
				assert.Equal(t, rec.ID, p.ID)
				assert.Len(t, p.Flavors, 1)
			}
		}
	}()

	releaseFirst := h.api.hold("update_flavor")
	releaseSecond := h.api.hold("update_flavor")
	first := make(chan bool)
	second := make(chan bool)

	go func() { first <- h.store.SetFlavorStock(context.Background(), rec.ID, flavorID, 3) }()
	h.waitEntered(t, "update_flavor")
	assert.Equal(t, 3, stockOf(t, h.store, rec.ID, flavorID))

	go func() { second <- h.store.SetFlavorStock(context.Background(), rec.ID, flavorID, 9) }()
	h.waitEntered(t, "update_flavor")
	assert.Equal(t, 9, stockOf(t, h.store, rec.ID, flavorID), "later edit overwrites the pending one")

	releaseFirst()
	assert.True(t, <-first)
	releaseSecond()
	assert.True(t, <-second)

	close(stop)
	readers.Wait()

	assert.Equal(t, 9, stockOf(t, h.store, rec.ID, flavorID))
	assert.Equal(t, 9.0, h.api.products[0].Flavors[0].Stock.Value)
	assert.Empty(t, h.notes.titles())
	assert.Equal(t, h.freshLoad(t), h.store.Snapshot())
}

func TestSetFlavorStockFailureLeavesNoOptimisticValue(t *testing.T) {
	h := newHarness(t)
	rec := h.api.seed("Cloud", 5, 0)
	require.NoError(t, h.store.Load(context.Background()))
	h.api.failOn("update_flavor", errBackend)

	assert.False(t, h.store.SetFlavorStock(context.Background(), rec.ID, rec.Flavors[0].ID, 42))

	assert.Equal(t, h.freshLoad(t), h.store.Snapshot())
	assert.Equal(t, 5, stockOf(t, h.store, rec.ID, rec.Flavors[0].ID))
	assert.Equal(t, []string{storefront.NoticeSetStock}, h.notes.titles())
}

func TestSetFlavorStockUnknownFlavorMatchesFreshLoad(t *testing.T) {
	h := newHarness(t)
	rec := h.api.seed("Cloud", 5)
	require.NoError(t, h.store.Load(context.Background()))

	// Deleted elsewhere: the local copy still has it, the server does not.
	h.api.products[0].Flavors = nil

	assert.False(t, h.store.SetFlavorStock(context.Background(), rec.ID, rec.Flavors[0].ID, 3))
	assert.Equal(t, h.freshLoad(t), h.store.Snapshot())
	p, _ := h.store.Product(rec.ID)
	assert.Empty(t, p.Flavors)
}

func TestResyncSurvivesCancelledCaller(t *testing.T) {
	h := newHarness(t)
	rec := h.api.seed("Cloud", 5)
	require.NoError(t, h.store.Load(context.Background()))
	h.api.failOn("update_flavor", errBackend)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h.store.SetFlavorStock(ctx, rec.ID, rec.Flavors[0].ID, 1)

	h.api.mu.Lock()
	last := h.api.listCtxs[len(h.api.listCtxs)-1]
	h.api.mu.Unlock()
	assert.NoError(t, last.Err())
}

func TestNoticesAreLogged(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	api := newFakeAPI()
	api.failOn("list", errors.New("dial tcp: refused"))

	s := storefront.NewStore(api, storefront.Options{
		Notifier: storefront.Notifiers(nil, storefront.LogNotifier{Log: zap.New(core)}),
	})
	require.Error(t, s.Load(context.Background()))

	entries := logs.FilterMessage(storefront.NoticeLoad).All()
	require.Len(t, entries, 1)
	assert.Equal(t, "dial tcp: refused", entries[0].ContextMap()["message"])
}
