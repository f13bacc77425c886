package service

import (
	"context"
	"fmt"
	"log"
	"math"

	"railbook/internal/ledger"
	"railbook/internal/model"
)

// StatsAggregator maintains the daily/monthly/yearly sales rollups.
//
// It consumes the ticket events the booking engine emits and applies the
// corresponding bucket increments through the same transaction that wrote
// the ticket row, so a committed sale is never visible without its bucket
// increments (and vice versa). The stored buckets stay independently
// reproducible: Recompute rebuilds any bucket from a ticket scan alone.
type StatsAggregator struct {
	store ledger.Store
}

// NewStatsAggregator creates the aggregator over the given ledger.
func NewStatsAggregator(store ledger.Store) *StatsAggregator {
	return &StatsAggregator{store: store}
}

var allPeriods = [...]model.Period{model.PeriodDaily, model.PeriodMonthly, model.PeriodYearly}

// Apply folds one ticket event into the buckets of every granularity.
// Must be called inside the transaction that produced the event.
//
// Refund events carry the ticket's *original* booking time, so refund
// counters land in the same buckets the sale landed in.
func (a *StatsAggregator) Apply(ctx context.Context, tx ledger.Tx, ev model.TicketEvent) error {
	var d ledger.BucketDelta
	switch ev.Kind {
	case model.EventSold:
		d.Sold = 1
		d.Revenue = ev.Price
	case model.EventRefunded:
		d.Refunded = 1
		d.Refund = ev.Price
	default:
		return fmt.Errorf("stats: unknown event kind %d", ev.Kind)
	}

	for _, p := range allPeriods {
		if err := tx.BumpBucket(ctx, p, p.Key(ev.BookingTime), d); err != nil {
			return err
		}
	}
	return nil
}

// Recompute rebuilds a bucket purely from the ticket ledger and returns
// the rebuilt value. If the stored bucket has drifted from the scan, which
// indicates a bug since the write path is atomic, the drift is logged and
// the stored bucket repaired in place.
func (a *StatsAggregator) Recompute(ctx context.Context, period model.Period, key string) (*model.StatisticsBucket, error) {
	if !period.Valid() {
		return nil, fmt.Errorf("%w: unknown period %q", ledger.ErrValidation, period)
	}
	if key == "" {
		return nil, fmt.Errorf("%w: empty bucket key", ledger.ErrValidation)
	}

	scanned, err := a.store.ScanBucket(ctx, period, key)
	if err != nil {
		return nil, err
	}
	live, err := a.store.GetBucket(ctx, period, key)
	if err != nil {
		return nil, err
	}

	if !bucketsEqual(scanned, live) {
		log.Printf("[stats] bucket drift %s/%s: live sold=%d refunded=%d revenue=%.2f refund=%.2f, scan sold=%d refunded=%d revenue=%.2f refund=%.2f; repairing",
			period, key,
			live.TicketsSold, live.TicketsRefunded, live.TotalRevenue, live.TotalRefund,
			scanned.TicketsSold, scanned.TicketsRefunded, scanned.TotalRevenue, scanned.TotalRefund)
		if err := a.store.PutBucket(ctx, scanned); err != nil {
			return nil, err
		}
	}
	return scanned, nil
}

// bucketsEqual compares counters exactly and amounts within a cent-level
// tolerance (incremental and scanned sums may accumulate float64 terms in
// different orders).
func bucketsEqual(a, b *model.StatisticsBucket) bool {
	return a.TicketsSold == b.TicketsSold &&
		a.TicketsRefunded == b.TicketsRefunded &&
		math.Abs(a.TotalRevenue-b.TotalRevenue) < 1e-6 &&
		math.Abs(a.TotalRefund-b.TotalRefund) < 1e-6
}
