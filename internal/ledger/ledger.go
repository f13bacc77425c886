// Package ledger provides storage for the train ticketing core: the train
// catalog, the ticket ledger, and the statistics buckets derived from it.
//
// Two implementations exist behind the Store interface: PostgresStore for
// production (row-level locking via SELECT ... FOR UPDATE) and MemoryStore
// (per-train mutexes with a journaled commit). Both enforce the same
// contract: all booking-affecting writes for a train happen inside
// WithTrainTx, and everything written inside one WithTrainTx call (ticket
// rows and statistics increments alike) becomes visible atomically.
package ledger

import (
	"context"
	"errors"
	"time"

	"railbook/internal/model"
)

// ─── Error taxonomy ─────────────────────────────────────────

// Sentinel errors shared by both store backends. Services and handlers
// classify with errors.Is; nothing matches on error strings.
var (
	// ErrTrainNotFound is returned when a train_id does not exist.
	ErrTrainNotFound = errors.New("train not found")

	// ErrTicketNotFound is returned when a ticket_id does not exist.
	ErrTicketNotFound = errors.New("ticket not found")

	// ErrDuplicateTrain is returned by AddTrain when the train_id is taken.
	ErrDuplicateTrain = errors.New("train already exists")

	// ErrNotSold is returned when a refund or change targets a ticket
	// that is not currently in the Sold state.
	ErrNotSold = errors.New("ticket is not in sold state")

	// ErrSoldOut is returned when a train has no remaining capacity.
	ErrSoldOut = errors.New("train is sold out")

	// ErrIdempotencyConflict is returned when a ticket insert loses the
	// race for an idempotency key: another transaction committed a ticket
	// holding the same key first. The booking engine resolves it by
	// returning that winning ticket as the replay.
	ErrIdempotencyConflict = errors.New("idempotency key already used")

	// ErrValidation is returned for malformed identifiers, non-positive
	// capacity, or negative prices.
	ErrValidation = errors.New("validation failed")
)

// ─── Store ──────────────────────────────────────────────────

// BucketDelta is one statistics increment, applied to a single bucket
// inside the transaction that produced it.
type BucketDelta struct {
	Sold     int
	Refunded int
	Revenue  float64
	Refund   float64
}

// Store is the ledger contract consumed by the service layer.
//
// Reads outside WithTrainTx may observe a booking that committed an
// instant ago (catalog searches tolerate slightly stale availability);
// they never observe a partially applied transaction.
type Store interface {
	// ── Train catalog ───────────────────────────────────
	AddTrain(ctx context.Context, route *model.TrainRoute) error
	GetTrain(ctx context.Context, trainID string) (*model.TrainRoute, error)
	// SearchTrains ANDs the supplied non-empty filters; both empty returns all.
	SearchTrains(ctx context.Context, departure, destination string) ([]model.TrainRoute, error)
	UpdateTrainPrice(ctx context.Context, trainID string, price float64) error

	// ── Ticket reads ────────────────────────────────────
	GetTicket(ctx context.Context, ticketID int64) (*model.Ticket, error)
	// TicketByIdempotencyKey returns ErrTicketNotFound when the key is unseen.
	TicketByIdempotencyKey(ctx context.Context, key string) (*model.Ticket, error)
	CountSold(ctx context.Context, trainID string) (int, error)

	// ── Projections ─────────────────────────────────────
	GetTicketInfo(ctx context.Context, ticketID int64) (*model.PassengerOrder, error)
	PassengerOrders(ctx context.Context, passengerID string) ([]model.PassengerOrder, error)
	// SearchTicketsByPerson: substring match on name, exact match on
	// idNumber, ANDed when both are set. Ordered by booking_time DESC.
	SearchTicketsByPerson(ctx context.Context, name, idNumber string) ([]model.PassengerOrder, error)
	SalesReport(ctx context.Context, start, end time.Time) ([]model.TrainSales, error)

	// ── Statistics buckets ──────────────────────────────
	// GetBucket returns a zero-valued bucket (not an error) when the
	// period has seen no events yet.
	GetBucket(ctx context.Context, period model.Period, key string) (*model.StatisticsBucket, error)
	// ListBuckets returns buckets ordered by key DESC; start/end are
	// optional inclusive key bounds ("" means unbounded).
	ListBuckets(ctx context.Context, period model.Period, start, end string) ([]model.StatisticsBucket, error)
	// ScanBucket rebuilds a bucket purely from the ticket ledger.
	ScanBucket(ctx context.Context, period model.Period, key string) (*model.StatisticsBucket, error)
	// PutBucket overwrites a bucket with a rebuilt value (audit repair).
	PutBucket(ctx context.Context, bucket *model.StatisticsBucket) error

	// ── The serialization point ─────────────────────────
	// WithTrainTx runs fn with every train in trainIDs locked for the
	// duration. Locks are acquired in sorted train_id order so that
	// two-train transactions (ticket changes) cannot deadlock. If fn
	// returns an error the transaction leaves no trace; otherwise all
	// of its writes commit as one unit.
	WithTrainTx(ctx context.Context, trainIDs []string, fn func(tx Tx) error) error
}

// Tx is the write surface available inside WithTrainTx. All reads see the
// state as of the lock acquisition; all writes commit together.
type Tx interface {
	// Train returns the locked route, or ErrTrainNotFound.
	Train(ctx context.Context, trainID string) (*model.TrainRoute, error)
	// SoldSeats returns the seat numbers of currently Sold tickets.
	SoldSeats(ctx context.Context, trainID string) ([]int, error)
	// Ticket returns a ticket row, or ErrTicketNotFound.
	Ticket(ctx context.Context, ticketID int64) (*model.Ticket, error)
	// TicketByIdempotencyKey returns the ticket holding the key, or
	// ErrTicketNotFound. Runs under the transaction's train locks, so a
	// booking that committed the key a moment ago is visible here even
	// when the caller's pre-lock check missed it.
	TicketByIdempotencyKey(ctx context.Context, key string) (*model.Ticket, error)
	// InsertTicket writes a new Sold ticket and fills in its TicketID.
	InsertTicket(ctx context.Context, t *model.Ticket) error
	// MarkRefunded transitions Sold → Refunded; ErrNotSold otherwise.
	MarkRefunded(ctx context.Context, ticketID int64) error
	// BumpBucket applies a statistics increment, creating the bucket on
	// first use.
	BumpBucket(ctx context.Context, period model.Period, key string, d BucketDelta) error
}
