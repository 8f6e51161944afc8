package service

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/rl1809/catalog-service/internal/adapter/storage"
	"github.com/rl1809/catalog-service/internal/core/domain"
	"github.com/rl1809/catalog-service/internal/port"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *storage.RedisAdapter) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, storage.NewRedisAdapter(client)
}

// fakeDB is an in-memory system of record. Transactions are serialized and
// staged on a copy, so a failing fn leaves no trace.
type fakeDB struct {
	mu       sync.Mutex
	variants map[uint64]domain.VariantDetail
	stock    map[uint64]int
	users    map[uint64]*domain.UserDetail
	orders   []domain.Order

	insertErr  error
	detailErr  error
	detailHits map[uint64]int
	activeHits int
	userHits   int
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		variants:   make(map[uint64]domain.VariantDetail),
		stock:      make(map[uint64]int),
		users:      make(map[uint64]*domain.UserDetail),
		detailHits: make(map[uint64]int),
	}
}

func (f *fakeDB) addVariant(d domain.VariantDetail) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.variants[d.Variant.ID] = d
	f.stock[d.Variant.ID] = d.Stock.Quantity
}

func (f *fakeDB) addUser(id uint64, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[id] = &domain.UserDetail{ID: id, Name: name}
}

func (f *fakeDB) setStock(variantID uint64, qty int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stock[variantID] = qty
}

func (f *fakeDB) stockOf(variantID uint64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stock[variantID]
}

func (f *fakeDB) orderCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.orders)
}

func (f *fakeDB) hits(variantID uint64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.detailHits[variantID]
}

func (f *fakeDB) detail(id uint64) (*domain.VariantDetail, error) {
	d, ok := f.variants[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	d.Stock = domain.Stock{VariantID: id, Quantity: f.stock[id]}
	return &d, nil
}

func (f *fakeDB) GetVariantDetail(_ context.Context, id uint64) (*domain.VariantDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detailHits[id]++
	if f.detailErr != nil {
		return nil, f.detailErr
	}
	return f.detail(id)
}

func (f *fakeDB) GetActiveVariantDetail(_ context.Context, id uint64) (*domain.VariantDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activeHits++
	if f.detailErr != nil {
		return nil, f.detailErr
	}
	d, err := f.detail(id)
	if err != nil {
		return nil, err
	}
	if !d.Variant.Active {
		return nil, domain.ErrNotFound
	}
	return d, nil
}

func (f *fakeDB) ListActiveVariantDetails(_ context.Context) ([]domain.VariantDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ids := make([]uint64, 0, len(f.variants))
	for id, v := range f.variants {
		if v.Variant.Active {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]domain.VariantDetail, 0, len(ids))
	for _, id := range ids {
		d, _ := f.detail(id)
		out = append(out, *d)
	}
	return out, nil
}

func (f *fakeDB) GetUserDetail(_ context.Context, id uint64) (*domain.UserDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userHits++
	u, ok := f.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeDB) Do(_ context.Context, fn func(tx port.TxRepository) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	tx := &fakeTx{db: f, stock: make(map[uint64]int, len(f.stock)), users: make(map[uint64]domain.UserDetail)}
	for k, v := range f.stock {
		tx.stock[k] = v
	}
	for k, v := range f.users {
		tx.users[k] = *v
	}

	if err := fn(tx); err != nil {
		return err
	}

	f.stock = tx.stock
	f.orders = append(f.orders, tx.orders...)
	for k, v := range tx.users {
		u := v
		f.users[k] = &u
	}
	return nil
}

type fakeTx struct {
	db     *fakeDB
	stock  map[uint64]int
	users  map[uint64]domain.UserDetail
	orders []domain.Order
}

func (t *fakeTx) GetStockForUpdate(_ context.Context, variantID uint64) (*domain.Stock, error) {
	q, ok := t.stock[variantID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &domain.Stock{VariantID: variantID, Quantity: q}, nil
}

func (t *fakeTx) DecrementStock(_ context.Context, variantID uint64, quantity int) error {
	if t.stock[variantID] < quantity {
		return domain.ErrInsufficientStock
	}
	t.stock[variantID] -= quantity
	return nil
}

func (t *fakeTx) UserExists(_ context.Context, userID uint64) (bool, error) {
	_, ok := t.users[userID]
	return ok, nil
}

func (t *fakeTx) InsertOrder(_ context.Context, order domain.Order) error {
	if t.db.insertErr != nil {
		return t.db.insertErr
	}
	t.orders = append(t.orders, order)
	return nil
}

func (t *fakeTx) UpsertUserProfile(_ context.Context, userID uint64, p domain.UserProfile) error {
	u := t.users[userID]
	u.Profile = &p
	t.users[userID] = u
	return nil
}

func (t *fakeTx) UpsertDietPreference(_ context.Context, userID uint64, d domain.DietPreference) error {
	u := t.users[userID]
	u.Diet = &d
	t.users[userID] = u
	return nil
}

func (t *fakeTx) UpsertHealthGoal(_ context.Context, userID uint64, g domain.HealthGoal) error {
	u := t.users[userID]
	u.Goal = &g
	t.users[userID] = u
	return nil
}

// fakeIndex is an in-memory search index keyed by document id.
type fakeIndex struct {
	mu        sync.Mutex
	docs      map[string]domain.SearchDocument
	bulkCalls int
	bulkErr   error
	upsertErr error

	recall    *port.RecallResult
	recallErr error
	lastQuery port.RecallQuery
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{docs: make(map[string]domain.SearchDocument)}
}

func (f *fakeIndex) Upsert(_ context.Context, doc domain.SearchDocument) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.docs[doc.ID] = doc
	return nil
}

func (f *fakeIndex) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.docs, id)
	return nil
}

func (f *fakeIndex) BulkUpsert(_ context.Context, docs []domain.SearchDocument) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bulkCalls++
	if f.bulkErr != nil {
		return f.bulkErr
	}
	for _, d := range docs {
		f.docs[d.ID] = d
	}
	return nil
}

func (f *fakeIndex) Search(_ context.Context, q port.RecallQuery) (*port.RecallResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastQuery = q
	if f.recallErr != nil {
		return nil, f.recallErr
	}
	return f.recall, nil
}

func (f *fakeIndex) snapshot() map[string]domain.SearchDocument {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]domain.SearchDocument, len(f.docs))
	for k, v := range f.docs {
		out[k] = v
	}
	return out
}

// recordingSyncer captures sync requests.
type recordingSyncer struct {
	mu  sync.Mutex
	ids []uint64
	err error
}

func (r *recordingSyncer) RequestSync(_ context.Context, variantID uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.ids = append(r.ids, variantID)
	return nil
}

func (r *recordingSyncer) requested() []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uint64(nil), r.ids...)
}
