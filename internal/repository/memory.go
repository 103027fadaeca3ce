package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/vaidashi/trust-trace-api/internal/models"
)

type memState struct {
	products     map[string]*models.Good
	lots         map[string]*models.InventoryLot
	lotBySource  map[string]string
	orders       map[string]*models.Order
	records      map[string][]*models.TraceabilityRecord
	outbox       []*models.OutboxMessage
	nextOutboxID int64
}

func newMemState() *memState {
	return &memState{
		products:    make(map[string]*models.Good),
		lots:        make(map[string]*models.InventoryLot),
		lotBySource: make(map[string]string),
		orders:      make(map[string]*models.Order),
		records:     make(map[string][]*models.TraceabilityRecord),
	}
}

func (s *memState) clone() *memState {
	c := newMemState()

	for k, v := range s.products {
		g := *v
		c.products[k] = &g
	}
	for k, v := range s.lots {
		l := *v
		c.lots[k] = &l
	}
	for k, v := range s.lotBySource {
		c.lotBySource[k] = v
	}
	for k, v := range s.orders {
		o := *v
		c.orders[k] = &o
	}
	for k, v := range s.records {
		c.records[k] = append([]*models.TraceabilityRecord(nil), v...)
	}
	for _, m := range s.outbox {
		mm := *m
		c.outbox = append(c.outbox, &mm)
	}
	c.nextOutboxID = s.nextOutboxID

	return c
}

// MemoryStore is a process-local Store. Transactions hold one store-wide lock,
// so they are fully serialised, and roll back by restoring a snapshot.
type MemoryStore struct {
	mu   *sync.Mutex
	st   *memState
	inTx bool
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{mu: &sync.Mutex{}, st: newMemState()}
}

func (s *MemoryStore) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// Orders returns the order repository
func (s *MemoryStore) Orders() OrderRepository { return memOrders{s} }

// Inventory returns the inventory repository
func (s *MemoryStore) Inventory() InventoryRepository { return memInventory{s} }

// Ledger returns the ledger repository
func (s *MemoryStore) Ledger() LedgerRepository { return memLedger{s} }

// Outbox returns the outbox repository
func (s *MemoryStore) Outbox() OutboxRepository { return memOutbox{s} }

// WithinTx runs fn while holding the store lock
func (s *MemoryStore) WithinTx(ctx context.Context, fn func(tx Store) error) error {
	if s.inTx {
		return fn(s)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	snapshot := s.st.clone()
	tx := &MemoryStore{mu: s.mu, st: s.st, inTx: true}

	if err := fn(tx); err != nil {
		*s.st = *snapshot
		return err
	}

	return nil
}

type memOrders struct{ s *MemoryStore }

func (r memOrders) Create(_ context.Context, order *models.Order) error {
	defer r.s.lock()()

	if _, ok := r.s.st.orders[order.ID]; ok {
		return ErrConflict
	}

	o := *order
	r.s.st.orders[o.ID] = &o
	return nil
}

func (r memOrders) GetByID(_ context.Context, id string) (*models.Order, error) {
	defer r.s.lock()()

	o, ok := r.s.st.orders[id]
	if !ok {
		return nil, ErrNotFound
	}

	c := *o
	return &c, nil
}

func (r memOrders) List(_ context.Context, f OrderFilter) ([]*models.Order, error) {
	defer r.s.lock()()

	var out []*models.Order
	for _, o := range r.s.st.orders {
		var party bool
		switch {
		case f.BuyerID != "" && f.SellerID != "":
			party = o.BuyerID == f.BuyerID || o.SellerID == f.SellerID
		case f.BuyerID != "":
			party = o.BuyerID == f.BuyerID
		case f.SellerID != "":
			party = o.SellerID == f.SellerID
		default:
			party = true
		}

		if !party || (f.Status != "" && o.Status != f.Status) {
			continue
		}

		c := *o
		out = append(out, &c)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if f.Offset >= len(out) {
		return []*models.Order{}, nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}

	return out, nil
}

func (r memOrders) UpdateStatus(_ context.Context, order *models.Order, expectedStatus models.OrderStatus, expectedVersion int) error {
	defer r.s.lock()()

	o, ok := r.s.st.orders[order.ID]
	if !ok || o.Status != expectedStatus || o.Version != expectedVersion {
		return ErrConflict
	}

	o.Status = order.Status
	o.Version = order.Version
	o.ActualDeliveryDate = order.ActualDeliveryDate
	o.UpdatedAt = order.UpdatedAt
	return nil
}

type memInventory struct{ s *MemoryStore }

func (r memInventory) CreateProduct(_ context.Context, good *models.Good) error {
	defer r.s.lock()()

	g := *good
	g.Source = models.SourceCatalog
	g.ProductID = g.ID
	g.SellerRole = models.RoleFarmer
	if g.Status == "" {
		g.Status = string(models.LotStatusAvailable)
	}
	r.s.st.products[g.ID] = &g
	return nil
}

func (r memInventory) FindGood(_ context.Context, goodID string) (*models.Good, error) {
	defer r.s.lock()()

	if g, ok := r.s.st.products[goodID]; ok {
		c := *g
		return &c, nil
	}
	if l, ok := r.s.st.lots[goodID]; ok {
		return l.AsGood(), nil
	}
	return nil, ErrNotFound
}

func (r memInventory) quantity(source models.InventorySource, goodID string) (*int, error) {
	switch source {
	case models.SourceCatalog:
		if g, ok := r.s.st.products[goodID]; ok {
			return &g.Quantity, nil
		}
	case models.SourceLot:
		if l, ok := r.s.st.lots[goodID]; ok {
			return &l.Quantity, nil
		}
	}
	return nil, ErrNotFound
}

func (r memInventory) Decrement(_ context.Context, source models.InventorySource, goodID string, qty int) error {
	defer r.s.lock()()

	q, err := r.quantity(source, goodID)
	if err != nil {
		return err
	}
	if *q < qty {
		return ErrInsufficientStock
	}
	*q -= qty
	return nil
}

func (r memInventory) Increment(_ context.Context, source models.InventorySource, goodID string, qty int) error {
	defer r.s.lock()()

	q, err := r.quantity(source, goodID)
	if err != nil {
		return err
	}
	*q += qty
	return nil
}

func (r memInventory) CreateLot(_ context.Context, lot *models.InventoryLot) (bool, error) {
	defer r.s.lock()()

	if _, ok := r.s.st.lotBySource[lot.SourceOrderID]; ok {
		return false, nil
	}

	l := *lot
	r.s.st.lots[l.ID] = &l
	r.s.st.lotBySource[l.SourceOrderID] = l.ID
	return true, nil
}

func (r memInventory) GetLotBySourceOrder(_ context.Context, orderID string) (*models.InventoryLot, error) {
	defer r.s.lock()()

	id, ok := r.s.st.lotBySource[orderID]
	if !ok {
		return nil, ErrNotFound
	}

	c := *r.s.st.lots[id]
	return &c, nil
}

type memLedger struct{ s *MemoryStore }

// LockChain is a no-op: memory transactions already hold the store-wide lock.
func (r memLedger) LockChain(context.Context, string) error { return nil }

func (r memLedger) Append(_ context.Context, rec *models.TraceabilityRecord) error {
	defer r.s.lock()()

	c := *rec
	chain := append(r.s.st.records[c.ProductID], &c)
	sort.SliceStable(chain, func(i, j int) bool {
		return chain[i].Timestamp.Before(chain[j].Timestamp)
	})
	r.s.st.records[c.ProductID] = chain
	return nil
}

func (r memLedger) Latest(_ context.Context, productID string) (*models.TraceabilityRecord, error) {
	defer r.s.lock()()

	chain := r.s.st.records[productID]
	if len(chain) == 0 {
		return nil, ErrNotFound
	}

	c := *chain[len(chain)-1]
	return &c, nil
}

func (r memLedger) ListByProduct(_ context.Context, productID string) ([]*models.TraceabilityRecord, error) {
	defer r.s.lock()()

	chain := r.s.st.records[productID]
	out := make([]*models.TraceabilityRecord, 0, len(chain))
	for _, rec := range chain {
		c := *rec
		out = append(out, &c)
	}
	return out, nil
}

type memOutbox struct{ s *MemoryStore }

func (r memOutbox) find(id int64) (*models.OutboxMessage, error) {
	for _, m := range r.s.st.outbox {
		if m.ID == id {
			return m, nil
		}
	}
	return nil, ErrNotFound
}

func (r memOutbox) Create(_ context.Context, message *models.OutboxMessage) error {
	defer r.s.lock()()

	r.s.st.nextOutboxID++
	message.ID = r.s.st.nextOutboxID
	c := *message
	r.s.st.outbox = append(r.s.st.outbox, &c)
	return nil
}

func (r memOutbox) GetPendingMessages(_ context.Context, limit int) ([]*models.OutboxMessage, error) {
	defer r.s.lock()()

	var out []*models.OutboxMessage
	for _, m := range r.s.st.outbox {
		if m.Status != models.OutboxStatusPending {
			continue
		}
		c := *m
		out = append(out, &c)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r memOutbox) GetMessage(_ context.Context, id int64) (*models.OutboxMessage, error) {
	defer r.s.lock()()

	m, err := r.find(id)
	if err != nil {
		return nil, err
	}
	c := *m
	return &c, nil
}

func (r memOutbox) update(id int64, fn func(m *models.OutboxMessage)) error {
	defer r.s.lock()()

	m, err := r.find(id)
	if err != nil {
		return err
	}
	fn(m)
	return nil
}

func (r memOutbox) MarkAsProcessing(_ context.Context, id int64) error {
	return r.update(id, func(m *models.OutboxMessage) {
		m.Status = models.OutboxStatusProcessing
		m.ProcessingAttempts++
	})
}

func (r memOutbox) MarkAsCompleted(_ context.Context, id int64) error {
	return r.update(id, func(m *models.OutboxMessage) {
		now := models.GetCurrentTime()
		m.Status = models.OutboxStatusCompleted
		m.ProcessedAt = &now
		m.LastError = nil
	})
}

func (r memOutbox) MarkAsFailed(_ context.Context, id int64, errorMessage string) error {
	return r.update(id, func(m *models.OutboxMessage) {
		m.Status = models.OutboxStatusFailed
		m.LastError = &errorMessage
	})
}

func (r memOutbox) MarkAsPending(_ context.Context, id int64, errorMessage string) error {
	return r.update(id, func(m *models.OutboxMessage) {
		m.Status = models.OutboxStatusPending
		m.LastError = &errorMessage
	})
}

func (r memOutbox) Requeue(_ context.Context, id int64) error {
	defer r.s.lock()()

	m, err := r.find(id)
	if err != nil {
		return err
	}
	if m.Status != models.OutboxStatusFailed {
		return ErrConflict
	}

	m.Status = models.OutboxStatusPending
	m.ProcessingAttempts = 0
	m.LastError = nil
	return nil
}
