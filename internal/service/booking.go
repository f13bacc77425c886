// Package service contains the train ticketing core: catalog, booking
// engine, statistics aggregator, and read-only query service. The HTTP
// layer calls these and nothing else.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"railbook/internal/ledger"
	"railbook/internal/model"
	"railbook/pkg/cache"
)

// BookingEngine is the only writer of the ticket ledger.
//
// Concurrency model:
//   - Every booking-affecting operation runs inside the store's
//     WithTrainTx, the per-train serialization point (row lock in
//     Postgres, per-train mutex in memory). Concurrent Book calls on one
//     train serialize; different trains proceed in parallel.
//   - Capacity is re-read inside the lock, so two callers can never both
//     take the last seat: the second re-reads after the first commits and
//     gets ErrSoldOut.
//   - Statistics events are applied through the same transaction as the
//     ticket write. Either both commit or neither does.
type BookingEngine struct {
	store ledger.Store
	stats *StatsAggregator
	avail *cache.AvailabilityCache // nil disables cache invalidation
}

// NewBookingEngine creates the engine. avail may be nil.
func NewBookingEngine(store ledger.Store, stats *StatsAggregator, avail *cache.AvailabilityCache) *BookingEngine {
	return &BookingEngine{store: store, stats: stats, avail: avail}
}

// BookRequest carries one booking. IdempotencyKey is optional: a replay
// with a previously seen key returns the originally issued ticket instead
// of consuming more capacity.
type BookRequest struct {
	TrainID        string `json:"train_id"`
	PassengerName  string `json:"passenger_name"`
	PassengerID    string `json:"passenger_id"`
	IsGroup        bool   `json:"is_group"`
	IdempotencyKey string `json:"-"`
}

// Book sells one seat on a train.
//
// The capacity read, seat allocation, and ticket insert form one
// indivisible unit per train. Seat allocation picks the lowest seat
// number not held by a currently Sold ticket, which equals sold_count+1
// while no refunds have occurred and keeps seat numbers unique after
// refunds free up mid-range seats.
func (e *BookingEngine) Book(ctx context.Context, req BookRequest) (*model.Ticket, error) {
	if req.TrainID == "" || req.PassengerName == "" || req.PassengerID == "" {
		return nil, fmt.Errorf("%w: train_id, passenger_name and passenger_id are required", ledger.ErrValidation)
	}

	// Idempotent replay fast path: same key, same ticket, no capacity
	// consumed, no train lock taken. The authoritative check repeats
	// under the lock below.
	if req.IdempotencyKey != "" {
		prev, err := e.store.TicketByIdempotencyKey(ctx, req.IdempotencyKey)
		if err == nil {
			log.Printf("[booking] replayed key %s → ticket #%d", req.IdempotencyKey, prev.TicketID)
			return prev, nil
		}
		if !errors.Is(err, ledger.ErrTicketNotFound) {
			return nil, err
		}
	}

	ticket := &model.Ticket{
		TrainID:        req.TrainID,
		PassengerName:  req.PassengerName,
		PassengerID:    req.PassengerID,
		IsGroup:        req.IsGroup,
		Status:         model.StatusSold,
		IdempotencyKey: req.IdempotencyKey,
	}

	var replayed *model.Ticket
	err := e.store.WithTrainTx(ctx, []string{req.TrainID}, func(tx ledger.Tx) error {
		// Re-check the key now that the train is locked: a concurrent
		// booking with the same key on this train has either committed
		// (visible here) or is blocked behind us.
		if req.IdempotencyKey != "" {
			prev, err := tx.TicketByIdempotencyKey(ctx, req.IdempotencyKey)
			if err == nil {
				replayed = prev
				return nil
			}
			if !errors.Is(err, ledger.ErrTicketNotFound) {
				return err
			}
		}

		route, err := tx.Train(ctx, req.TrainID)
		if err != nil {
			return err
		}

		seats, err := tx.SoldSeats(ctx, req.TrainID)
		if err != nil {
			return err
		}
		seat := lowestFreeSeat(seats, route.TotalSeats)
		if seat == 0 {
			return fmt.Errorf("train %s: %w", req.TrainID, ledger.ErrSoldOut)
		}

		ticket.SeatNumber = seat
		ticket.BookingTime = time.Now()
		ticket.Price = route.Price
		if err := tx.InsertTicket(ctx, ticket); err != nil {
			return err
		}

		return e.stats.Apply(ctx, tx, model.TicketEvent{
			Kind:        model.EventSold,
			TrainID:     ticket.TrainID,
			BookingTime: ticket.BookingTime,
			Price:       ticket.Price,
		})
	})
	if err != nil {
		// A concurrent booking on another train took the key between our
		// checks; its committed ticket is the replay.
		if errors.Is(err, ledger.ErrIdempotencyConflict) {
			prev, ferr := e.store.TicketByIdempotencyKey(ctx, req.IdempotencyKey)
			if ferr != nil {
				return nil, ferr
			}
			log.Printf("[booking] replayed key %s → ticket #%d", req.IdempotencyKey, prev.TicketID)
			return prev, nil
		}
		return nil, err
	}
	if replayed != nil {
		log.Printf("[booking] replayed key %s → ticket #%d", req.IdempotencyKey, replayed.TicketID)
		return replayed, nil
	}

	e.avail.Invalidate(ctx, req.TrainID)
	log.Printf("[booking] ✓ ticket #%d: %s seat %d for %s", ticket.TicketID, ticket.TrainID, ticket.SeatNumber, ticket.PassengerID)
	return ticket, nil
}

// Refund transitions a ticket Sold → Refunded. Nothing else on the ticket
// changes; a refunded seat raises availability but the ticket row stays.
// A second refund of the same ticket returns ErrNotSold and leaves the
// ledger untouched.
func (e *BookingEngine) Refund(ctx context.Context, ticketID int64) error {
	// Cheap pre-read to learn the train; the authoritative status check
	// happens again under the train lock.
	t, err := e.store.GetTicket(ctx, ticketID)
	if err != nil {
		return err
	}

	err = e.store.WithTrainTx(ctx, []string{t.TrainID}, func(tx ledger.Tx) error {
		cur, err := tx.Ticket(ctx, ticketID)
		if err != nil {
			return err
		}
		if cur.Status != model.StatusSold {
			return fmt.Errorf("ticket %d: %w", ticketID, ledger.ErrNotSold)
		}
		if err := tx.MarkRefunded(ctx, ticketID); err != nil {
			return err
		}

		// Refund counters land in the buckets of the original booking time.
		return e.stats.Apply(ctx, tx, model.TicketEvent{
			Kind:        model.EventRefunded,
			TrainID:     cur.TrainID,
			BookingTime: cur.BookingTime,
			Price:       cur.Price,
		})
	})
	if err != nil {
		return err
	}

	e.avail.Invalidate(ctx, t.TrainID)
	log.Printf("[booking] ✓ refunded ticket #%d on %s", ticketID, t.TrainID)
	return nil
}

// ChangeResult is the outcome of a successful ticket change.
type ChangeResult struct {
	OldTicketID int64         `json:"old_ticket_id"`
	NewTicket   *model.Ticket `json:"new_ticket"`
	// PriceDifference = new train's price − old ticket's booked price.
	// Positive: amount owed; negative: amount refundable.
	PriceDifference float64 `json:"price_difference"`
}

// Change retires one ticket and issues another on a different train,
// carrying over passenger identity and the group flag.
//
// Both effects commit atomically: the transaction locks both trains (in
// sorted order), and any failure (unknown target train, target sold out,
// ticket no longer Sold) aborts before either effect is visible, so a
// failed change leaves the original ticket exactly as it was.
func (e *BookingEngine) Change(ctx context.Context, ticketID int64, newTrainID string) (*ChangeResult, error) {
	if newTrainID == "" {
		return nil, fmt.Errorf("%w: new train_id is required", ledger.ErrValidation)
	}

	old, err := e.store.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if newTrainID == old.TrainID {
		return nil, fmt.Errorf("%w: new train must differ from the ticket's train", ledger.ErrValidation)
	}

	result := &ChangeResult{OldTicketID: ticketID}
	err = e.store.WithTrainTx(ctx, []string{old.TrainID, newTrainID}, func(tx ledger.Tx) error {
		cur, err := tx.Ticket(ctx, ticketID)
		if err != nil {
			return err
		}
		if cur.Status != model.StatusSold {
			return fmt.Errorf("ticket %d: %w", ticketID, ledger.ErrNotSold)
		}

		newRoute, err := tx.Train(ctx, newTrainID)
		if err != nil {
			return err
		}

		// Allocate on the target before touching the old ticket: a full
		// target train aborts here with the original ticket untouched.
		seats, err := tx.SoldSeats(ctx, newTrainID)
		if err != nil {
			return err
		}
		seat := lowestFreeSeat(seats, newRoute.TotalSeats)
		if seat == 0 {
			return fmt.Errorf("train %s: %w", newTrainID, ledger.ErrSoldOut)
		}

		if err := tx.MarkRefunded(ctx, ticketID); err != nil {
			return err
		}
		if err := e.stats.Apply(ctx, tx, model.TicketEvent{
			Kind:        model.EventRefunded,
			TrainID:     cur.TrainID,
			BookingTime: cur.BookingTime,
			Price:       cur.Price,
		}); err != nil {
			return err
		}

		newTicket := &model.Ticket{
			TrainID:       newTrainID,
			PassengerName: cur.PassengerName,
			PassengerID:   cur.PassengerID,
			SeatNumber:    seat,
			BookingTime:   time.Now(),
			Status:        model.StatusSold,
			IsGroup:       cur.IsGroup,
			Price:         newRoute.Price,
		}
		if err := tx.InsertTicket(ctx, newTicket); err != nil {
			return err
		}
		if err := e.stats.Apply(ctx, tx, model.TicketEvent{
			Kind:        model.EventSold,
			TrainID:     newTicket.TrainID,
			BookingTime: newTicket.BookingTime,
			Price:       newTicket.Price,
		}); err != nil {
			return err
		}

		result.NewTicket = newTicket
		result.PriceDifference = newRoute.Price - cur.Price
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.avail.Invalidate(ctx, old.TrainID, newTrainID)
	log.Printf("[booking] ✓ changed ticket #%d (%s) → #%d (%s seat %d), price diff %+.2f",
		ticketID, old.TrainID, result.NewTicket.TicketID, newTrainID,
		result.NewTicket.SeatNumber, result.PriceDifference)
	return result, nil
}

// lowestFreeSeat returns the smallest seat number in 1..capacity not
// present in sold (which is sorted ascending), or 0 when the train is
// full. This is the single seat-allocation path for Book and Change.
func lowestFreeSeat(sold []int, capacity int) int {
	next := 1
	for _, s := range sold {
		if s > next {
			break
		}
		if s == next {
			next++
		}
	}
	if next > capacity {
		return 0
	}
	return next
}
