package service

import (
	"context"
	"fmt"
	"time"

	"railbook/internal/ledger"
	"railbook/internal/model"
	"railbook/pkg/cache"
)

// QueryService provides the read-only projections: availability, ticket
// lookups, passenger history, sales reports, and statistics ranges. It
// never mutates the ledger.
type QueryService struct {
	store ledger.Store
	avail *cache.AvailabilityCache // nil skips the cache
}

// NewQueryService creates the query service. avail may be nil.
func NewQueryService(store ledger.Store, avail *cache.AvailabilityCache) *QueryService {
	return &QueryService{store: store, avail: avail}
}

// Availability returns the remaining seat count for a train:
// total_seats − count(Sold). Served cache-aside from Redis when
// available; the figure may lag a just-committed booking by up to the
// cache TTL, which catalog reads tolerate.
func (q *QueryService) Availability(ctx context.Context, trainID string) (int, error) {
	if trainID == "" {
		return 0, fmt.Errorf("%w: train_id is required", ledger.ErrValidation)
	}

	if n, ok := q.avail.Get(ctx, trainID); ok {
		return n, nil
	}

	route, err := q.store.GetTrain(ctx, trainID)
	if err != nil {
		return 0, err
	}
	sold, err := q.store.CountSold(ctx, trainID)
	if err != nil {
		return 0, err
	}

	available := route.TotalSeats - sold
	q.avail.Set(ctx, trainID, available)
	return available, nil
}

// AvailabilityAll returns every route with its remaining seat count,
// the catalog-wide availability listing.
func (q *QueryService) AvailabilityAll(ctx context.Context) ([]model.TrainAvailability, error) {
	routes, err := q.store.SearchTrains(ctx, "", "")
	if err != nil {
		return nil, err
	}
	out := make([]model.TrainAvailability, 0, len(routes))
	for _, r := range routes {
		sold, err := q.store.CountSold(ctx, r.TrainID)
		if err != nil {
			return nil, err
		}
		out = append(out, model.TrainAvailability{
			TrainRoute:     r,
			AvailableSeats: r.TotalSeats - sold,
		})
	}
	return out, nil
}

// GetTicketInfo returns one ticket joined with its route.
func (q *QueryService) GetTicketInfo(ctx context.Context, ticketID int64) (*model.PassengerOrder, error) {
	return q.store.GetTicketInfo(ctx, ticketID)
}

// PassengerOrders returns all tickets for a passenger id, joined with
// route data, newest booking first.
func (q *QueryService) PassengerOrders(ctx context.Context, passengerID string) ([]model.PassengerOrder, error) {
	if passengerID == "" {
		return nil, fmt.Errorf("%w: passenger_id is required", ledger.ErrValidation)
	}
	return q.store.PassengerOrders(ctx, passengerID)
}

// SearchTicketsByPerson finds tickets by passenger name (substring) and/or
// id number (exact), ANDed when both are given, newest booking first.
func (q *QueryService) SearchTicketsByPerson(ctx context.Context, name, idNumber string) ([]model.PassengerOrder, error) {
	return q.store.SearchTicketsByPerson(ctx, name, idNumber)
}

// SalesReport returns per-train sold-ticket counts and revenue for
// bookings in the inclusive date range.
func (q *QueryService) SalesReport(ctx context.Context, start, end time.Time) ([]model.TrainSales, error) {
	if end.Before(start) {
		return nil, fmt.Errorf("%w: end date before start date", ledger.ErrValidation)
	}
	return q.store.SalesReport(ctx, start, end)
}

// Statistics returns buckets of the requested granularity ordered by
// period key descending, optionally bounded by start/end keys (inclusive,
// in the period's own key format).
//
// Monthly and yearly buckets are enriched on read with the average and
// peak figures over their sub-periods (days of the month, months of the
// year), derived from the finer-grained buckets.
func (q *QueryService) Statistics(ctx context.Context, period model.Period, start, end string) ([]model.PeriodStats, error) {
	if !period.Valid() {
		return nil, fmt.Errorf("%w: unknown period %q", ledger.ErrValidation, period)
	}

	buckets, err := q.store.ListBuckets(ctx, period, start, end)
	if err != nil {
		return nil, err
	}

	out := make([]model.PeriodStats, 0, len(buckets))
	for _, b := range buckets {
		ps := model.PeriodStats{StatisticsBucket: b}
		if period != model.PeriodDaily {
			if err := q.enrich(ctx, &ps); err != nil {
				return nil, err
			}
		}
		out = append(out, ps)
	}
	return out, nil
}

// enrich fills the avg/peak figures of a monthly or yearly bucket from
// the next-finer granularity. The average is over sub-periods that saw
// sales, matching how the figures are read in reports.
func (q *QueryService) enrich(ctx context.Context, ps *model.PeriodStats) error {
	var sub model.Period
	switch ps.Period {
	case model.PeriodMonthly:
		sub = model.PeriodDaily
	case model.PeriodYearly:
		sub = model.PeriodMonthly
	default:
		return nil
	}

	// Sub-period keys are the parent key plus "-" and a zero-padded
	// two-digit suffix, so this range selects exactly the parent's
	// sub-buckets and nothing from adjacent periods.
	prefix := ps.Key + "-"
	subs, err := q.store.ListBuckets(ctx, sub, prefix, prefix+"99")
	if err != nil {
		return err
	}

	active := 0
	for _, sb := range subs {
		if sb.TicketsSold == 0 {
			continue
		}
		active++
		if sb.TicketsSold > ps.PeakSubSales {
			ps.PeakSubSales = sb.TicketsSold
			ps.PeakSubKey = sb.Key
		}
	}
	if active > 0 {
		ps.AvgSubSales = float64(ps.TicketsSold) / float64(active)
	}
	return nil
}
