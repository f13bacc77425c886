package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"railbook/internal/model"
)

// PostgresStore is the production ledger backend.
//
// Concurrency strategy: PESSIMISTIC LOCKING.
//
//	Scenario: two callers book the last seat on G100 at the same millisecond.
//
//	T1: BEGIN → SELECT train FOR UPDATE → (train row LOCKED)
//	T2: BEGIN → SELECT train FOR UPDATE → (BLOCKS, waiting for T1)
//	T1: seat free → INSERT ticket → bump buckets → COMMIT → (lock released)
//	T2: (unblocked) → re-reads sold seats → none free → ROLLBACK → ErrSoldOut
//
// The FOR UPDATE on the trains row is the per-train serialization point:
// only one booking-affecting transaction per train can be between its
// capacity read and its commit at any moment.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a ledger backed by the given PG pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// DefaultTxTimeout bounds a booking transaction, including lock wait time.
const DefaultTxTimeout = 5 * time.Second

// ─── Train catalog ──────────────────────────────────────────

func (s *PostgresStore) AddTrain(ctx context.Context, route *model.TrainRoute) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO trains (train_id, departure, destination, departure_time,
		                    arrival_time, total_seats, price)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, route.TrainID, route.Departure, route.Destination, route.DepartureTime,
		route.ArrivalTime, route.TotalSeats, route.Price,
	).Scan(&route.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return fmt.Errorf("add train %s: %w", route.TrainID, ErrDuplicateTrain)
		}
		return fmt.Errorf("add train %s: %w", route.TrainID, err)
	}
	return nil
}

func (s *PostgresStore) GetTrain(ctx context.Context, trainID string) (*model.TrainRoute, error) {
	return scanTrain(s.pool.QueryRow(ctx, `
		SELECT train_id, departure, destination, departure_time, arrival_time,
		       total_seats, price, created_at
		FROM trains
		WHERE train_id = $1
	`, trainID), trainID)
}

func (s *PostgresStore) SearchTrains(ctx context.Context, departure, destination string) ([]model.TrainRoute, error) {
	// Empty filters collapse to TRUE: no filters returns the whole catalog.
	rows, err := s.pool.Query(ctx, `
		SELECT train_id, departure, destination, departure_time, arrival_time,
		       total_seats, price, created_at
		FROM trains
		WHERE ($1 = '' OR departure = $1)
		  AND ($2 = '' OR destination = $2)
		ORDER BY train_id
	`, departure, destination)
	if err != nil {
		return nil, fmt.Errorf("search trains: %w", err)
	}
	defer rows.Close()

	var routes []model.TrainRoute
	for rows.Next() {
		var r model.TrainRoute
		if err := rows.Scan(
			&r.TrainID, &r.Departure, &r.Destination, &r.DepartureTime,
			&r.ArrivalTime, &r.TotalSeats, &r.Price, &r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan train: %w", err)
		}
		routes = append(routes, r)
	}
	return routes, rows.Err()
}

func (s *PostgresStore) UpdateTrainPrice(ctx context.Context, trainID string, price float64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE trains SET price = $2 WHERE train_id = $1
	`, trainID, price)
	if err != nil {
		return fmt.Errorf("update price %s: %w", trainID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update price %s: %w", trainID, ErrTrainNotFound)
	}
	return nil
}

// ─── Ticket reads ───────────────────────────────────────────

const ticketColumns = `
	ticket_id, train_id, passenger_name, passenger_id, seat_number,
	booking_time, status, is_group, price, COALESCE(idempotency_key, '')`

func (s *PostgresStore) GetTicket(ctx context.Context, ticketID int64) (*model.Ticket, error) {
	return scanTicket(s.pool.QueryRow(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE ticket_id = $1`, ticketID))
}

func (s *PostgresStore) TicketByIdempotencyKey(ctx context.Context, key string) (*model.Ticket, error) {
	return scanTicket(s.pool.QueryRow(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE idempotency_key = $1`, key))
}

func (s *PostgresStore) CountSold(ctx context.Context, trainID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*)::int FROM tickets WHERE train_id = $1 AND status = 'sold'
	`, trainID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count sold %s: %w", trainID, err)
	}
	return n, nil
}

// ─── Projections ────────────────────────────────────────────

const orderColumns = `
	t.ticket_id, t.train_id, tr.departure, tr.destination,
	tr.departure_time, tr.arrival_time, t.seat_number, t.booking_time,
	t.status, t.price, t.passenger_name, t.passenger_id`

func (s *PostgresStore) GetTicketInfo(ctx context.Context, ticketID int64) (*model.PassengerOrder, error) {
	var o model.PassengerOrder
	err := s.pool.QueryRow(ctx, `
		SELECT `+orderColumns+`
		FROM tickets t
		JOIN trains tr ON tr.train_id = t.train_id
		WHERE t.ticket_id = $1
	`, ticketID).Scan(
		&o.TicketID, &o.TrainID, &o.Departure, &o.Destination,
		&o.DepartureTime, &o.ArrivalTime, &o.SeatNumber, &o.BookingTime,
		&o.Status, &o.Price, &o.PassengerName, &o.PassengerID,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("ticket %d: %w", ticketID, ErrTicketNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get ticket info %d: %w", ticketID, err)
	}
	return &o, nil
}

func (s *PostgresStore) PassengerOrders(ctx context.Context, passengerID string) ([]model.PassengerOrder, error) {
	return s.queryOrders(ctx, `
		SELECT `+orderColumns+`
		FROM tickets t
		JOIN trains tr ON tr.train_id = t.train_id
		WHERE t.passenger_id = $1
		ORDER BY t.booking_time DESC, t.ticket_id DESC
	`, passengerID)
}

func (s *PostgresStore) SearchTicketsByPerson(ctx context.Context, name, idNumber string) ([]model.PassengerOrder, error) {
	return s.queryOrders(ctx, `
		SELECT `+orderColumns+`
		FROM tickets t
		JOIN trains tr ON tr.train_id = t.train_id
		WHERE ($1 = '' OR t.passenger_name LIKE '%' || $1 || '%')
		  AND ($2 = '' OR t.passenger_id = $2)
		ORDER BY t.booking_time DESC, t.ticket_id DESC
	`, name, idNumber)
}

func (s *PostgresStore) queryOrders(ctx context.Context, query string, args ...any) ([]model.PassengerOrder, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var orders []model.PassengerOrder
	for rows.Next() {
		var o model.PassengerOrder
		if err := rows.Scan(
			&o.TicketID, &o.TrainID, &o.Departure, &o.Destination,
			&o.DepartureTime, &o.ArrivalTime, &o.SeatNumber, &o.BookingTime,
			&o.Status, &o.Price, &o.PassengerName, &o.PassengerID,
		); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (s *PostgresStore) SalesReport(ctx context.Context, start, end time.Time) ([]model.TrainSales, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT train_id, COUNT(*)::int, COALESCE(SUM(price), 0)
		FROM tickets
		WHERE status = 'sold'
		  AND booking_time::date BETWEEN $1::date AND $2::date
		GROUP BY train_id
		ORDER BY train_id
	`, start, end)
	if err != nil {
		return nil, fmt.Errorf("sales report: %w", err)
	}
	defer rows.Close()

	var report []model.TrainSales
	for rows.Next() {
		var ts model.TrainSales
		if err := rows.Scan(&ts.TrainID, &ts.TicketsSold, &ts.Revenue); err != nil {
			return nil, fmt.Errorf("scan sales row: %w", err)
		}
		report = append(report, ts)
	}
	return report, rows.Err()
}

// ─── Statistics buckets ─────────────────────────────────────

// statsTable maps a period to its table and key column. Three separate
// tables keyed by period strings, mirroring the persisted layout.
func statsTable(period model.Period) (table, keyCol string) {
	switch period {
	case model.PeriodDaily:
		return "daily_statistics", "day"
	case model.PeriodMonthly:
		return "monthly_statistics", "year_month"
	default:
		return "yearly_statistics", "year"
	}
}

// to_char patterns matching each period's bucket key format.
func periodPattern(period model.Period) string {
	switch period {
	case model.PeriodDaily:
		return "YYYY-MM-DD"
	case model.PeriodMonthly:
		return "YYYY-MM"
	default:
		return "YYYY"
	}
}

func (s *PostgresStore) GetBucket(ctx context.Context, period model.Period, key string) (*model.StatisticsBucket, error) {
	table, keyCol := statsTable(period)
	b := &model.StatisticsBucket{Period: period, Key: key}
	err := s.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT tickets_sold, tickets_refunded, total_revenue, total_refund,
		       created_at, updated_at
		FROM %s WHERE %s = $1
	`, table, keyCol), key).Scan(
		&b.TicketsSold, &b.TicketsRefunded, &b.TotalRevenue, &b.TotalRefund,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return b, nil // zero bucket: no events in the period yet
	}
	if err != nil {
		return nil, fmt.Errorf("get %s bucket %s: %w", period, key, err)
	}
	return b, nil
}

func (s *PostgresStore) ListBuckets(ctx context.Context, period model.Period, start, end string) ([]model.StatisticsBucket, error) {
	table, keyCol := statsTable(period)
	// ISO period keys compare correctly as strings.
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT %[2]s, tickets_sold, tickets_refunded, total_revenue,
		       total_refund, created_at, updated_at
		FROM %[1]s
		WHERE ($1 = '' OR %[2]s >= $1)
		  AND ($2 = '' OR %[2]s <= $2)
		ORDER BY %[2]s DESC
	`, table, keyCol), start, end)
	if err != nil {
		return nil, fmt.Errorf("list %s buckets: %w", period, err)
	}
	defer rows.Close()

	var buckets []model.StatisticsBucket
	for rows.Next() {
		b := model.StatisticsBucket{Period: period}
		if err := rows.Scan(
			&b.Key, &b.TicketsSold, &b.TicketsRefunded, &b.TotalRevenue,
			&b.TotalRefund, &b.CreatedAt, &b.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan %s bucket: %w", period, err)
		}
		buckets = append(buckets, b)
	}
	return buckets, rows.Err()
}

// ScanBucket rebuilds a bucket from the ticket ledger alone. Every ticket
// was inserted Sold, so sold figures count all tickets booked in the
// period; refund figures count the subset that has since been refunded.
func (s *PostgresStore) ScanBucket(ctx context.Context, period model.Period, key string) (*model.StatisticsBucket, error) {
	b := &model.StatisticsBucket{Period: period, Key: key}
	err := s.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT COUNT(*)::int,
		       COALESCE(SUM(price), 0),
		       COUNT(*) FILTER (WHERE status = 'refunded')::int,
		       COALESCE(SUM(price) FILTER (WHERE status = 'refunded'), 0)
		FROM tickets
		WHERE to_char(booking_time, '%s') = $1
	`, periodPattern(period)), key).Scan(
		&b.TicketsSold, &b.TotalRevenue, &b.TicketsRefunded, &b.TotalRefund,
	)
	if err != nil {
		return nil, fmt.Errorf("scan %s bucket %s: %w", period, key, err)
	}
	return b, nil
}

func (s *PostgresStore) PutBucket(ctx context.Context, bucket *model.StatisticsBucket) error {
	table, keyCol := statsTable(bucket.Period)
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %[1]s (%[2]s, tickets_sold, tickets_refunded,
		                   total_revenue, total_refund, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		ON CONFLICT (%[2]s) DO UPDATE SET
			tickets_sold     = EXCLUDED.tickets_sold,
			tickets_refunded = EXCLUDED.tickets_refunded,
			total_revenue    = EXCLUDED.total_revenue,
			total_refund     = EXCLUDED.total_refund,
			updated_at       = now()
	`, table, keyCol), bucket.Key, bucket.TicketsSold, bucket.TicketsRefunded,
		bucket.TotalRevenue, bucket.TotalRefund)
	if err != nil {
		return fmt.Errorf("put %s bucket %s: %w", bucket.Period, bucket.Key, err)
	}
	return nil
}

// ─── The serialization point ────────────────────────────────

// WithTrainTx wraps fn in a transaction holding row locks on every train
// in trainIDs.
func (s *PostgresStore) WithTrainTx(ctx context.Context, trainIDs []string, fn func(tx Tx) error) error {
	txCtx, cancel := context.WithTimeout(ctx, DefaultTxTimeout)
	defer cancel()

	tx, err := s.pool.BeginTx(txCtx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("ledger: begin tx: %w", err)
	}
	// Deferred rollback is a no-op once the tx has committed.
	defer tx.Rollback(ctx)

	// ── Step 1: LOCK the train rows ─────────────────────
	// Sorted order keeps two-train transactions deadlock-free: any pair
	// of concurrent changes acquires the same locks in the same order.
	// A train absent from the catalog simply locks nothing here; fn's
	// Train() lookup reports ErrTrainNotFound.
	ids := append([]string(nil), trainIDs...)
	sort.Strings(ids)
	rows, err := tx.Query(txCtx, `
		SELECT train_id FROM trains
		WHERE train_id = ANY($1)
		ORDER BY train_id
		FOR UPDATE
	`, ids)
	if err != nil {
		return fmt.Errorf("ledger: lock trains %v: %w", ids, err)
	}
	for rows.Next() {
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("ledger: lock trains %v: %w", ids, err)
	}

	// ── Step 2: run the caller's booking logic ──────────
	if err := fn(&pgTx{tx: tx}); err != nil {
		return err // rollback via defer; no partial effects remain
	}

	// ── Step 3: COMMIT ──────────────────────────────────
	if err := tx.Commit(txCtx); err != nil {
		return fmt.Errorf("ledger: commit: %w", err)
	}
	return nil
}

// pgTx is the in-transaction write surface.
type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) Train(ctx context.Context, trainID string) (*model.TrainRoute, error) {
	return scanTrain(t.tx.QueryRow(ctx, `
		SELECT train_id, departure, destination, departure_time, arrival_time,
		       total_seats, price, created_at
		FROM trains
		WHERE train_id = $1
	`, trainID), trainID)
}

func (t *pgTx) SoldSeats(ctx context.Context, trainID string) ([]int, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT seat_number FROM tickets
		WHERE train_id = $1 AND status = 'sold'
		ORDER BY seat_number
	`, trainID)
	if err != nil {
		return nil, fmt.Errorf("sold seats %s: %w", trainID, err)
	}
	defer rows.Close()

	var seats []int
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scan seat: %w", err)
		}
		seats = append(seats, n)
	}
	return seats, rows.Err()
}

func (t *pgTx) Ticket(ctx context.Context, ticketID int64) (*model.Ticket, error) {
	return scanTicket(t.tx.QueryRow(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE ticket_id = $1`, ticketID))
}

func (t *pgTx) TicketByIdempotencyKey(ctx context.Context, key string) (*model.Ticket, error) {
	return scanTicket(t.tx.QueryRow(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE idempotency_key = $1`, key))
}

func (t *pgTx) InsertTicket(ctx context.Context, tk *model.Ticket) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO tickets (train_id, passenger_name, passenger_id,
		                     seat_number, booking_time, status, is_group,
		                     price, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''))
		RETURNING ticket_id
	`, tk.TrainID, tk.PassengerName, tk.PassengerID, tk.SeatNumber,
		tk.BookingTime, tk.Status, tk.IsGroup, tk.Price, tk.IdempotencyKey,
	).Scan(&tk.TicketID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" &&
			pgErr.ConstraintName == "uq_tickets_idempotency_key" {
			return fmt.Errorf("insert ticket on %s: %w", tk.TrainID, ErrIdempotencyConflict)
		}
		return fmt.Errorf("insert ticket on %s: %w", tk.TrainID, err)
	}
	return nil
}

func (t *pgTx) MarkRefunded(ctx context.Context, ticketID int64) error {
	// The status guard makes the transition monotone even if a caller
	// bypasses the engine's pre-check: Sold → Refunded, nothing else.
	tag, err := t.tx.Exec(ctx, `
		UPDATE tickets SET status = 'refunded'
		WHERE ticket_id = $1 AND status = 'sold'
	`, ticketID)
	if err != nil {
		return fmt.Errorf("refund ticket %d: %w", ticketID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("refund ticket %d: %w", ticketID, ErrNotSold)
	}
	return nil
}

func (t *pgTx) BumpBucket(ctx context.Context, period model.Period, key string, d BucketDelta) error {
	table, keyCol := statsTable(period)
	_, err := t.tx.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %[1]s (%[2]s, tickets_sold, tickets_refunded,
		                   total_revenue, total_refund, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		ON CONFLICT (%[2]s) DO UPDATE SET
			tickets_sold     = %[1]s.tickets_sold     + EXCLUDED.tickets_sold,
			tickets_refunded = %[1]s.tickets_refunded + EXCLUDED.tickets_refunded,
			total_revenue    = %[1]s.total_revenue    + EXCLUDED.total_revenue,
			total_refund     = %[1]s.total_refund     + EXCLUDED.total_refund,
			updated_at       = now()
	`, table, keyCol), key, d.Sold, d.Refunded, d.Revenue, d.Refund)
	if err != nil {
		return fmt.Errorf("bump %s bucket %s: %w", period, key, err)
	}
	return nil
}

// ─── Row scanners ───────────────────────────────────────────

func scanTrain(row pgx.Row, trainID string) (*model.TrainRoute, error) {
	r := &model.TrainRoute{}
	err := row.Scan(
		&r.TrainID, &r.Departure, &r.Destination, &r.DepartureTime,
		&r.ArrivalTime, &r.TotalSeats, &r.Price, &r.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("train %s: %w", trainID, ErrTrainNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get train %s: %w", trainID, err)
	}
	return r, nil
}

func scanTicket(row pgx.Row) (*model.Ticket, error) {
	t := &model.Ticket{}
	err := row.Scan(
		&t.TicketID, &t.TrainID, &t.PassengerName, &t.PassengerID,
		&t.SeatNumber, &t.BookingTime, &t.Status, &t.IsGroup, &t.Price,
		&t.IdempotencyKey,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTicketNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan ticket: %w", err)
	}
	return t, nil
}
