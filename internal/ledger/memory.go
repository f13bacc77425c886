package ledger

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"railbook/internal/model"
)

// MemoryStore is a self-contained ledger backend with the same contract as
// PostgresStore. The per-train serialization point is a mutex per train_id;
// transactional writes are journaled and applied in one step under the
// store lock, so a failed transaction leaves no trace and a committed one
// becomes visible atomically.
//
// Used by the test suite and by STORE_BACKEND=memory demo deployments.
type MemoryStore struct {
	mu      sync.RWMutex
	trains  map[string]*model.TrainRoute
	tickets map[int64]*model.Ticket
	byIdem  map[string]int64
	buckets map[model.Period]map[string]*model.StatisticsBucket
	nextID  int64

	// trainLocks holds one mutex per train_id, created on first use.
	lockMu     sync.Mutex
	trainLocks map[string]*sync.Mutex
}

// NewMemoryStore creates an empty in-memory ledger.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		trains:  make(map[string]*model.TrainRoute),
		tickets: make(map[int64]*model.Ticket),
		byIdem:  make(map[string]int64),
		buckets: map[model.Period]map[string]*model.StatisticsBucket{
			model.PeriodDaily:   {},
			model.PeriodMonthly: {},
			model.PeriodYearly:  {},
		},
		trainLocks: make(map[string]*sync.Mutex),
	}
}

// ─── Train catalog ──────────────────────────────────────────

func (s *MemoryStore) AddTrain(ctx context.Context, route *model.TrainRoute) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.trains[route.TrainID]; ok {
		return fmt.Errorf("add train %s: %w", route.TrainID, ErrDuplicateTrain)
	}
	route.CreatedAt = time.Now()
	cp := *route
	s.trains[route.TrainID] = &cp
	return nil
}

func (s *MemoryStore) GetTrain(ctx context.Context, trainID string) (*model.TrainRoute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.trainLocked(trainID)
}

// trainLocked returns a copy of the route; callers hold s.mu.
func (s *MemoryStore) trainLocked(trainID string) (*model.TrainRoute, error) {
	r, ok := s.trains[trainID]
	if !ok {
		return nil, fmt.Errorf("train %s: %w", trainID, ErrTrainNotFound)
	}
	cp := *r
	return &cp, nil
}

func (s *MemoryStore) SearchTrains(ctx context.Context, departure, destination string) ([]model.TrainRoute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var routes []model.TrainRoute
	for _, r := range s.trains {
		if departure != "" && r.Departure != departure {
			continue
		}
		if destination != "" && r.Destination != destination {
			continue
		}
		routes = append(routes, *r)
	}
	sort.Slice(routes, func(i, j int) bool { return routes[i].TrainID < routes[j].TrainID })
	return routes, nil
}

func (s *MemoryStore) UpdateTrainPrice(ctx context.Context, trainID string, price float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.trains[trainID]
	if !ok {
		return fmt.Errorf("update price %s: %w", trainID, ErrTrainNotFound)
	}
	r.Price = price
	return nil
}

// ─── Ticket reads ───────────────────────────────────────────

func (s *MemoryStore) GetTicket(ctx context.Context, ticketID int64) (*model.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tickets[ticketID]
	if !ok {
		return nil, ErrTicketNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *MemoryStore) TicketByIdempotencyKey(ctx context.Context, key string) (*model.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byIdem[key]
	if !ok {
		return nil, ErrTicketNotFound
	}
	cp := *s.tickets[id]
	return &cp, nil
}

func (s *MemoryStore) CountSold(ctx context.Context, trainID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, t := range s.tickets {
		if t.TrainID == trainID && t.Status == model.StatusSold {
			n++
		}
	}
	return n, nil
}

// ─── Projections ────────────────────────────────────────────

func (s *MemoryStore) GetTicketInfo(ctx context.Context, ticketID int64) (*model.PassengerOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tickets[ticketID]
	if !ok {
		return nil, fmt.Errorf("ticket %d: %w", ticketID, ErrTicketNotFound)
	}
	o := s.joinOrder(t)
	return &o, nil
}

func (s *MemoryStore) PassengerOrders(ctx context.Context, passengerID string) ([]model.PassengerOrder, error) {
	return s.collectOrders(func(t *model.Ticket) bool {
		return t.PassengerID == passengerID
	})
}

func (s *MemoryStore) SearchTicketsByPerson(ctx context.Context, name, idNumber string) ([]model.PassengerOrder, error) {
	return s.collectOrders(func(t *model.Ticket) bool {
		if name != "" && !strings.Contains(t.PassengerName, name) {
			return false
		}
		if idNumber != "" && t.PassengerID != idNumber {
			return false
		}
		return true
	})
}

func (s *MemoryStore) collectOrders(match func(*model.Ticket) bool) ([]model.PassengerOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var orders []model.PassengerOrder
	for _, t := range s.tickets {
		if match(t) {
			orders = append(orders, s.joinOrder(t))
		}
	}
	sort.Slice(orders, func(i, j int) bool {
		if !orders[i].BookingTime.Equal(orders[j].BookingTime) {
			return orders[i].BookingTime.After(orders[j].BookingTime)
		}
		return orders[i].TicketID > orders[j].TicketID
	})
	return orders, nil
}

// joinOrder builds the ticket+route projection; callers hold s.mu.
func (s *MemoryStore) joinOrder(t *model.Ticket) model.PassengerOrder {
	o := model.PassengerOrder{
		TicketID:      t.TicketID,
		TrainID:       t.TrainID,
		SeatNumber:    t.SeatNumber,
		BookingTime:   t.BookingTime,
		Status:        t.Status,
		Price:         t.Price,
		PassengerName: t.PassengerName,
		PassengerID:   t.PassengerID,
	}
	if r, ok := s.trains[t.TrainID]; ok {
		o.Departure = r.Departure
		o.Destination = r.Destination
		o.DepartureTime = r.DepartureTime
		o.ArrivalTime = r.ArrivalTime
	}
	return o
}

func (s *MemoryStore) SalesReport(ctx context.Context, start, end time.Time) ([]model.TrainSales, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	startKey := start.Format("2006-01-02")
	endKey := end.Format("2006-01-02")
	byTrain := make(map[string]*model.TrainSales)
	for _, t := range s.tickets {
		if t.Status != model.StatusSold {
			continue
		}
		day := t.BookingTime.Format("2006-01-02")
		if day < startKey || day > endKey {
			continue
		}
		ts, ok := byTrain[t.TrainID]
		if !ok {
			ts = &model.TrainSales{TrainID: t.TrainID}
			byTrain[t.TrainID] = ts
		}
		ts.TicketsSold++
		ts.Revenue += t.Price
	}
	report := make([]model.TrainSales, 0, len(byTrain))
	for _, ts := range byTrain {
		report = append(report, *ts)
	}
	sort.Slice(report, func(i, j int) bool { return report[i].TrainID < report[j].TrainID })
	return report, nil
}

// ─── Statistics buckets ─────────────────────────────────────

func (s *MemoryStore) GetBucket(ctx context.Context, period model.Period, key string) (*model.StatisticsBucket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if b, ok := s.buckets[period][key]; ok {
		cp := *b
		return &cp, nil
	}
	return &model.StatisticsBucket{Period: period, Key: key}, nil
}

func (s *MemoryStore) ListBuckets(ctx context.Context, period model.Period, start, end string) ([]model.StatisticsBucket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var buckets []model.StatisticsBucket
	for key, b := range s.buckets[period] {
		if start != "" && key < start {
			continue
		}
		if end != "" && key > end {
			continue
		}
		buckets = append(buckets, *b)
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Key > buckets[j].Key })
	return buckets, nil
}

func (s *MemoryStore) ScanBucket(ctx context.Context, period model.Period, key string) (*model.StatisticsBucket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b := &model.StatisticsBucket{Period: period, Key: key}
	for _, t := range s.tickets {
		if period.Key(t.BookingTime) != key {
			continue
		}
		b.TicketsSold++
		b.TotalRevenue += t.Price
		if t.Status == model.StatusRefunded {
			b.TicketsRefunded++
			b.TotalRefund += t.Price
		}
	}
	return b, nil
}

func (s *MemoryStore) PutBucket(ctx context.Context, bucket *model.StatisticsBucket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	cp := *bucket
	if old, ok := s.buckets[bucket.Period][bucket.Key]; ok {
		cp.CreatedAt = old.CreatedAt
	} else {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	s.buckets[bucket.Period][bucket.Key] = &cp
	return nil
}

// ─── The serialization point ────────────────────────────────

// WithTrainTx locks the named trains (sorted, to stay deadlock-free with
// two-train changes), runs fn against a journaling Tx, and applies the
// journal in one step under the store lock iff fn succeeds.
func (s *MemoryStore) WithTrainTx(ctx context.Context, trainIDs []string, fn func(tx Tx) error) error {
	ids := dedupSorted(trainIDs)
	for _, id := range ids {
		mu := s.trainLock(id)
		mu.Lock()
		defer mu.Unlock()
	}

	tx := &memTx{store: s}
	if err := fn(tx); err != nil {
		return err // journal discarded; no partial effects
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Idempotency keys are unique across the whole ledger, not just the
	// locked trains, so a cross-train race is caught here at commit. The
	// journal is discarded whole; the winning ticket stands.
	for _, t := range tx.inserts {
		if t.IdempotencyKey == "" {
			continue
		}
		if _, ok := s.byIdem[t.IdempotencyKey]; ok {
			return fmt.Errorf("ticket insert with key %s: %w", t.IdempotencyKey, ErrIdempotencyConflict)
		}
	}
	now := time.Now()
	for _, id := range tx.refunds {
		s.tickets[id].Status = model.StatusRefunded
	}
	for _, t := range tx.inserts {
		cp := *t
		s.tickets[t.TicketID] = &cp
		if t.IdempotencyKey != "" {
			s.byIdem[t.IdempotencyKey] = t.TicketID
		}
	}
	for _, bd := range tx.bumps {
		b, ok := s.buckets[bd.period][bd.key]
		if !ok {
			b = &model.StatisticsBucket{Period: bd.period, Key: bd.key, CreatedAt: now}
			s.buckets[bd.period][bd.key] = b
		}
		b.TicketsSold += bd.delta.Sold
		b.TicketsRefunded += bd.delta.Refunded
		b.TotalRevenue += bd.delta.Revenue
		b.TotalRefund += bd.delta.Refund
		b.UpdatedAt = now
	}
	return nil
}

func (s *MemoryStore) trainLock(trainID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	mu, ok := s.trainLocks[trainID]
	if !ok {
		mu = &sync.Mutex{}
		s.trainLocks[trainID] = mu
	}
	return mu
}

func dedupSorted(ids []string) []string {
	out := append([]string(nil), ids...)
	sort.Strings(out)
	n := 0
	for i, id := range out {
		if i == 0 || id != out[i-1] {
			out[n] = id
			n++
		}
	}
	return out[:n]
}

// memTx journals writes until commit. Reads see committed state; the
// booking engine never reads back its own uncommitted writes.
type memTx struct {
	store   *MemoryStore
	inserts []*model.Ticket
	refunds []int64
	bumps   []bucketBump
}

type bucketBump struct {
	period model.Period
	key    string
	delta  BucketDelta
}

func (t *memTx) Train(ctx context.Context, trainID string) (*model.TrainRoute, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	return t.store.trainLocked(trainID)
}

func (t *memTx) SoldSeats(ctx context.Context, trainID string) ([]int, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	var seats []int
	for _, tk := range t.store.tickets {
		if tk.TrainID == trainID && tk.Status == model.StatusSold {
			seats = append(seats, tk.SeatNumber)
		}
	}
	// Seats journaled by this same transaction count too (a change books
	// on the target train after refunding on the source train).
	for _, tk := range t.inserts {
		if tk.TrainID == trainID {
			seats = append(seats, tk.SeatNumber)
		}
	}
	sort.Ints(seats)
	return seats, nil
}

func (t *memTx) Ticket(ctx context.Context, ticketID int64) (*model.Ticket, error) {
	return t.store.GetTicket(ctx, ticketID)
}

func (t *memTx) TicketByIdempotencyKey(ctx context.Context, key string) (*model.Ticket, error) {
	for _, tk := range t.inserts {
		if tk.IdempotencyKey == key {
			cp := *tk
			return &cp, nil
		}
	}
	return t.store.TicketByIdempotencyKey(ctx, key)
}

func (t *memTx) InsertTicket(ctx context.Context, tk *model.Ticket) error {
	t.store.mu.Lock()
	t.store.nextID++
	tk.TicketID = t.store.nextID
	t.store.mu.Unlock()
	t.inserts = append(t.inserts, tk)
	return nil
}

func (t *memTx) MarkRefunded(ctx context.Context, ticketID int64) error {
	t.store.mu.RLock()
	tk, ok := t.store.tickets[ticketID]
	t.store.mu.RUnlock()
	if !ok {
		return fmt.Errorf("refund ticket %d: %w", ticketID, ErrTicketNotFound)
	}
	if tk.Status != model.StatusSold {
		return fmt.Errorf("refund ticket %d: %w", ticketID, ErrNotSold)
	}
	for _, id := range t.refunds {
		if id == ticketID {
			return fmt.Errorf("refund ticket %d: %w", ticketID, ErrNotSold)
		}
	}
	t.refunds = append(t.refunds, ticketID)
	return nil
}

func (t *memTx) BumpBucket(ctx context.Context, period model.Period, key string, d BucketDelta) error {
	t.bumps = append(t.bumps, bucketBump{period: period, key: key, delta: d})
	return nil
}
