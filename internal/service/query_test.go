package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"railbook/internal/ledger"
	"railbook/internal/model"
)

func TestAvailability(t *testing.T) {
	c := newTestCore(t)
	ctx := context.Background()

	avail, err := c.query.Availability(ctx, "G100")
	if err != nil {
		t.Fatalf("Availability: %v", err)
	}
	if avail != 400 {
		t.Errorf("initial availability = %d, want 400", avail)
	}

	c.mustBook(t, "G100", "A", "id-a")
	avail, err = c.query.Availability(ctx, "G100")
	if err != nil {
		t.Fatalf("Availability: %v", err)
	}
	if avail != 399 {
		t.Errorf("availability after booking = %d, want 399", avail)
	}
}

func TestAvailability_Errors(t *testing.T) {
	c := newTestCore(t)
	ctx := context.Background()

	if _, err := c.query.Availability(ctx, ""); !errors.Is(err, ledger.ErrValidation) {
		t.Errorf("empty train_id: err = %v, want ErrValidation", err)
	}
	if _, err := c.query.Availability(ctx, "Z999"); !errors.Is(err, ledger.ErrTrainNotFound) {
		t.Errorf("unknown train: err = %v, want ErrTrainNotFound", err)
	}
}

func TestAvailabilityAll(t *testing.T) {
	c := newTestCore(t)
	ctx := context.Background()
	c.mustBook(t, "G100", "A", "id-a")

	listing, err := c.query.AvailabilityAll(ctx)
	if err != nil {
		t.Fatalf("AvailabilityAll: %v", err)
	}
	if len(listing) != 15 {
		t.Fatalf("listing size = %d, want 15", len(listing))
	}
	for _, entry := range listing {
		want := entry.TotalSeats
		if entry.TrainID == "G100" {
			want--
		}
		if entry.AvailableSeats != want {
			t.Errorf("%s available = %d, want %d", entry.TrainID, entry.AvailableSeats, want)
		}
	}
}

func TestGetTicketInfo_JoinsRoute(t *testing.T) {
	c := newTestCore(t)
	tk := c.mustBook(t, "G100", "Zhang San", "110101199001011234")

	order, err := c.query.GetTicketInfo(context.Background(), tk.TicketID)
	if err != nil {
		t.Fatalf("GetTicketInfo: %v", err)
	}
	if order.Departure != "Beijing" || order.Destination != "Shanghai" {
		t.Errorf("route = %s→%s, want Beijing→Shanghai", order.Departure, order.Destination)
	}
	if order.PassengerName != "Zhang San" || order.SeatNumber != tk.SeatNumber {
		t.Errorf("order %+v does not match ticket %+v", order, tk)
	}
}

func TestPassengerOrders_NewestFirst(t *testing.T) {
	c := newTestCore(t)
	ctx := context.Background()

	const pid = "110101199001011234"
	first := c.mustBook(t, "G100", "Zhang San", pid)
	second := c.mustBook(t, "G200", "Zhang San", pid)
	c.mustBook(t, "G300", "Somebody Else", "other-id")

	orders, err := c.query.PassengerOrders(ctx, pid)
	if err != nil {
		t.Fatalf("PassengerOrders: %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("got %d orders, want 2", len(orders))
	}
	// Newest first; equal timestamps fall back to ticket id descending.
	if orders[0].TicketID != second.TicketID || orders[1].TicketID != first.TicketID {
		t.Errorf("order ids = [%d, %d], want [%d, %d]",
			orders[0].TicketID, orders[1].TicketID, second.TicketID, first.TicketID)
	}

	if _, err := c.query.PassengerOrders(ctx, ""); !errors.Is(err, ledger.ErrValidation) {
		t.Errorf("empty passenger_id: err = %v, want ErrValidation", err)
	}
}

func TestPassengerOrders_IncludesRefunded(t *testing.T) {
	c := newTestCore(t)
	ctx := context.Background()

	tk := c.mustBook(t, "G100", "A", "id-a")
	if err := c.engine.Refund(ctx, tk.TicketID); err != nil {
		t.Fatalf("Refund: %v", err)
	}

	orders, err := c.query.PassengerOrders(ctx, "id-a")
	if err != nil {
		t.Fatalf("PassengerOrders: %v", err)
	}
	if len(orders) != 1 || orders[0].Status != model.StatusRefunded {
		t.Errorf("orders = %+v, want one refunded order", orders)
	}
}

func TestSearchTicketsByPerson(t *testing.T) {
	c := newTestCore(t)
	ctx := context.Background()

	c.mustBook(t, "G100", "Zhang San", "id-1")
	c.mustBook(t, "G200", "Zhang Wei", "id-2")
	c.mustBook(t, "G300", "Li Si", "id-3")

	// Substring match on name.
	byName, err := c.query.SearchTicketsByPerson(ctx, "Zhang", "")
	if err != nil {
		t.Fatalf("SearchTicketsByPerson: %v", err)
	}
	if len(byName) != 2 {
		t.Errorf("name search got %d tickets, want 2", len(byName))
	}

	// Exact match on id number.
	byID, err := c.query.SearchTicketsByPerson(ctx, "", "id-3")
	if err != nil {
		t.Fatalf("SearchTicketsByPerson: %v", err)
	}
	if len(byID) != 1 || byID[0].PassengerName != "Li Si" {
		t.Errorf("id search = %+v, want Li Si's ticket", byID)
	}

	// Both given: AND semantics.
	both, err := c.query.SearchTicketsByPerson(ctx, "Zhang", "id-2")
	if err != nil {
		t.Fatalf("SearchTicketsByPerson: %v", err)
	}
	if len(both) != 1 || both[0].PassengerName != "Zhang Wei" {
		t.Errorf("combined search = %+v, want Zhang Wei's ticket", both)
	}
}

func TestSalesReport(t *testing.T) {
	c := newTestCore(t)
	ctx := context.Background()

	c.mustBook(t, "G100", "A", "id-a")
	c.mustBook(t, "G100", "B", "id-b")
	refunded := c.mustBook(t, "G100", "C", "id-c")
	c.mustBook(t, "G300", "D", "id-d")
	if err := c.engine.Refund(ctx, refunded.TicketID); err != nil {
		t.Fatalf("Refund: %v", err)
	}

	today := time.Now()
	report, err := c.query.SalesReport(ctx, today, today)
	if err != nil {
		t.Fatalf("SalesReport: %v", err)
	}
	if len(report) != 2 {
		t.Fatalf("report rows = %d, want 2", len(report))
	}
	// Sorted by train_id; refunded tickets excluded.
	if report[0].TrainID != "G100" || report[0].TicketsSold != 2 || report[0].Revenue != 2*553.0 {
		t.Errorf("G100 row = %+v, want 2 sold / 1106.00", report[0])
	}
	if report[1].TrainID != "G300" || report[1].TicketsSold != 1 || report[1].Revenue != 863.0 {
		t.Errorf("G300 row = %+v, want 1 sold / 863.00", report[1])
	}
}

func TestSalesReport_InvalidRange(t *testing.T) {
	c := newTestCore(t)
	start := time.Now()
	end := start.AddDate(0, 0, -1)
	if _, err := c.query.SalesReport(context.Background(), start, end); !errors.Is(err, ledger.ErrValidation) {
		t.Errorf("end before start: err = %v, want ErrValidation", err)
	}
}

func TestStatistics_DailyRange(t *testing.T) {
	c := newTestCore(t)
	ctx := context.Background()

	c.mustBook(t, "G100", "A", "id-a")
	c.mustBook(t, "G100", "B", "id-b")

	today := model.PeriodDaily.Key(time.Now())
	stats, err := c.query.Statistics(ctx, model.PeriodDaily, today, today)
	if err != nil {
		t.Fatalf("Statistics: %v", err)
	}
	if len(stats) != 1 {
		t.Fatalf("buckets = %d, want 1", len(stats))
	}
	b := stats[0]
	if b.Key != today || b.TicketsSold != 2 || b.TotalRevenue != 2*553.0 {
		t.Errorf("daily bucket = %+v, want 2 sold / 1106.00 on %s", b, today)
	}
	// Daily buckets carry no sub-period enrichment.
	if b.AvgSubSales != 0 || b.PeakSubKey != "" {
		t.Errorf("daily bucket unexpectedly enriched: %+v", b)
	}
}

func TestStatistics_MonthlyEnrichment(t *testing.T) {
	c := newTestCore(t)
	ctx := context.Background()

	c.mustBook(t, "G100", "A", "id-a")
	c.mustBook(t, "G200", "B", "id-b")

	now := time.Now()
	monthKey := model.PeriodMonthly.Key(now)
	dayKey := model.PeriodDaily.Key(now)

	stats, err := c.query.Statistics(ctx, model.PeriodMonthly, monthKey, monthKey)
	if err != nil {
		t.Fatalf("Statistics: %v", err)
	}
	if len(stats) != 1 {
		t.Fatalf("buckets = %d, want 1", len(stats))
	}
	m := stats[0]
	if m.TicketsSold != 2 {
		t.Errorf("monthly sold = %d, want 2", m.TicketsSold)
	}
	// All sales landed on one day: that day is the peak and the average
	// over active days equals the month total.
	if m.PeakSubKey != dayKey || m.PeakSubSales != 2 {
		t.Errorf("peak = %s/%d, want %s/2", m.PeakSubKey, m.PeakSubSales, dayKey)
	}
	if m.AvgSubSales != 2.0 {
		t.Errorf("avg daily sales = %.2f, want 2.00", m.AvgSubSales)
	}
}

// Enrichment of a monthly bucket must only consider that month's daily
// buckets, even when adjacent months hold busier days.
func TestStatistics_EnrichmentIgnoresAdjacentPeriods(t *testing.T) {
	c := newTestCore(t)
	ctx := context.Background()

	put := func(p model.Period, key string, sold int) {
		t.Helper()
		if err := c.store.PutBucket(ctx, &model.StatisticsBucket{
			Period: p, Key: key, TicketsSold: sold,
		}); err != nil {
			t.Fatalf("PutBucket(%s, %s): %v", p, key, err)
		}
	}
	put(model.PeriodMonthly, "2026-08", 3)
	put(model.PeriodDaily, "2026-08-05", 3)
	put(model.PeriodDaily, "2026-07-31", 9)
	put(model.PeriodDaily, "2026-09-01", 7)

	stats, err := c.query.Statistics(ctx, model.PeriodMonthly, "2026-08", "2026-08")
	if err != nil {
		t.Fatalf("Statistics: %v", err)
	}
	if len(stats) != 1 {
		t.Fatalf("buckets = %d, want 1", len(stats))
	}
	m := stats[0]
	if m.PeakSubKey != "2026-08-05" || m.PeakSubSales != 3 {
		t.Errorf("peak = %s/%d, want 2026-08-05/3", m.PeakSubKey, m.PeakSubSales)
	}
	if m.AvgSubSales != 3.0 {
		t.Errorf("avg daily sales = %.2f, want 3.00 (one active day)", m.AvgSubSales)
	}
}

func TestStatistics_UnknownPeriod(t *testing.T) {
	c := newTestCore(t)
	if _, err := c.query.Statistics(context.Background(), model.Period("hourly"), "", ""); !errors.Is(err, ledger.ErrValidation) {
		t.Errorf("unknown period: err = %v, want ErrValidation", err)
	}
}
