package ledger

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"railbook/internal/model"
)

func seededStore(t *testing.T) *MemoryStore {
	t.Helper()
	s := NewMemoryStore()
	if err := SeedDemo(context.Background(), s); err != nil {
		t.Fatalf("SeedDemo: %v", err)
	}
	return s
}

func TestSeedDemo_Idempotent(t *testing.T) {
	s := seededStore(t)
	if err := SeedDemo(context.Background(), s); err != nil {
		t.Fatalf("second SeedDemo: %v", err)
	}
	routes, err := s.SearchTrains(context.Background(), "", "")
	if err != nil {
		t.Fatalf("SearchTrains: %v", err)
	}
	if len(routes) != len(DemoRoutes()) {
		t.Errorf("catalog size after reseed = %d, want %d", len(routes), len(DemoRoutes()))
	}
}

// A failing transaction body must leave no trace: no ticket, no bucket
// increment, no idempotency mapping.
func TestWithTrainTx_DiscardsJournalOnError(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithTrainTx(ctx, []string{"G100"}, func(tx Tx) error {
		tk := &model.Ticket{
			TrainID: "G100", PassengerName: "A", PassengerID: "id-a",
			SeatNumber: 1, BookingTime: time.Now(),
			Status: model.StatusSold, Price: 553.0,
			IdempotencyKey: "key-1",
		}
		if err := tx.InsertTicket(ctx, tk); err != nil {
			return err
		}
		if err := tx.BumpBucket(ctx, model.PeriodDaily, "2026-08-30", BucketDelta{Sold: 1, Revenue: 553.0}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithTrainTx err = %v, want boom", err)
	}

	if n, _ := s.CountSold(ctx, "G100"); n != 0 {
		t.Errorf("sold count after aborted tx = %d, want 0", n)
	}
	if _, err := s.TicketByIdempotencyKey(ctx, "key-1"); !errors.Is(err, ErrTicketNotFound) {
		t.Errorf("idempotency key visible after aborted tx: err = %v", err)
	}
	b, _ := s.GetBucket(ctx, model.PeriodDaily, "2026-08-30")
	if b.TicketsSold != 0 {
		t.Errorf("bucket bumped by aborted tx: %+v", b)
	}
}

func TestWithTrainTx_CommitsJournal(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()

	var id int64
	err := s.WithTrainTx(ctx, []string{"G100"}, func(tx Tx) error {
		tk := &model.Ticket{
			TrainID: "G100", PassengerName: "A", PassengerID: "id-a",
			SeatNumber: 1, BookingTime: time.Now(),
			Status: model.StatusSold, Price: 553.0,
			IdempotencyKey: "key-1",
		}
		if err := tx.InsertTicket(ctx, tk); err != nil {
			return err
		}
		id = tk.TicketID
		return tx.BumpBucket(ctx, model.PeriodDaily, "2026-08-30", BucketDelta{Sold: 1, Revenue: 553.0})
	})
	if err != nil {
		t.Fatalf("WithTrainTx: %v", err)
	}

	got, err := s.GetTicket(ctx, id)
	if err != nil {
		t.Fatalf("GetTicket: %v", err)
	}
	if got.Status != model.StatusSold || got.SeatNumber != 1 {
		t.Errorf("committed ticket = %+v", got)
	}
	byKey, err := s.TicketByIdempotencyKey(ctx, "key-1")
	if err != nil || byKey.TicketID != id {
		t.Errorf("TicketByIdempotencyKey = %+v, %v; want ticket %d", byKey, err, id)
	}
	b, _ := s.GetBucket(ctx, model.PeriodDaily, "2026-08-30")
	if b.TicketsSold != 1 || b.TotalRevenue != 553.0 {
		t.Errorf("bucket = %+v, want 1 sold / 553.00", b)
	}
}

// SoldSeats inside a transaction must see the transaction's own journaled
// inserts, or a two-leg change could hand out the same seat twice.
func TestWithTrainTx_SoldSeatsSeesJournal(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()

	err := s.WithTrainTx(ctx, []string{"G100"}, func(tx Tx) error {
		tk := &model.Ticket{
			TrainID: "G100", PassengerName: "A", PassengerID: "id-a",
			SeatNumber: 1, BookingTime: time.Now(),
			Status: model.StatusSold, Price: 553.0,
		}
		if err := tx.InsertTicket(ctx, tk); err != nil {
			return err
		}
		seats, err := tx.SoldSeats(ctx, "G100")
		if err != nil {
			return err
		}
		if !reflect.DeepEqual(seats, []int{1}) {
			t.Errorf("SoldSeats = %v, want [1]", seats)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithTrainTx: %v", err)
	}
}

// A committed idempotency key is unique ledger-wide: a later transaction
// inserting the same key aborts at commit with nothing applied.
func TestWithTrainTx_IdempotencyKeyConflict(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()

	insert := func(trainID string) error {
		return s.WithTrainTx(ctx, []string{trainID}, func(tx Tx) error {
			return tx.InsertTicket(ctx, &model.Ticket{
				TrainID: trainID, PassengerName: "A", PassengerID: "id-a",
				SeatNumber: 1, BookingTime: time.Now(),
				Status: model.StatusSold, Price: 553.0,
				IdempotencyKey: "key-1",
			})
		})
	}
	if err := insert("G100"); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if err := insert("G200"); !errors.Is(err, ErrIdempotencyConflict) {
		t.Fatalf("second insert with same key: err = %v, want ErrIdempotencyConflict", err)
	}
	if n, _ := s.CountSold(ctx, "G200"); n != 0 {
		t.Errorf("losing insert left a ticket: sold = %d, want 0", n)
	}
	winner, err := s.TicketByIdempotencyKey(ctx, "key-1")
	if err != nil {
		t.Fatalf("TicketByIdempotencyKey: %v", err)
	}
	if winner.TrainID != "G100" {
		t.Errorf("key maps to %s ticket, want the G100 winner", winner.TrainID)
	}
}

func TestWithTrainTx_TicketByIdempotencyKeySeesJournal(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()

	err := s.WithTrainTx(ctx, []string{"G100"}, func(tx Tx) error {
		tk := &model.Ticket{
			TrainID: "G100", PassengerName: "A", PassengerID: "id-a",
			SeatNumber: 1, BookingTime: time.Now(),
			Status: model.StatusSold, Price: 553.0,
			IdempotencyKey: "key-1",
		}
		if err := tx.InsertTicket(ctx, tk); err != nil {
			return err
		}
		got, err := tx.TicketByIdempotencyKey(ctx, "key-1")
		if err != nil {
			return err
		}
		if got.TicketID != tk.TicketID {
			t.Errorf("in-tx lookup = #%d, want journaled #%d", got.TicketID, tk.TicketID)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithTrainTx: %v", err)
	}
}

func TestMarkRefunded_GuardsDoubleRefundInOneTx(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()

	var id int64
	err := s.WithTrainTx(ctx, []string{"G100"}, func(tx Tx) error {
		tk := &model.Ticket{
			TrainID: "G100", PassengerName: "A", PassengerID: "id-a",
			SeatNumber: 1, BookingTime: time.Now(),
			Status: model.StatusSold, Price: 553.0,
		}
		if err := tx.InsertTicket(ctx, tk); err != nil {
			return err
		}
		id = tk.TicketID
		return nil
	})
	if err != nil {
		t.Fatalf("setup tx: %v", err)
	}

	err = s.WithTrainTx(ctx, []string{"G100"}, func(tx Tx) error {
		if err := tx.MarkRefunded(ctx, id); err != nil {
			return err
		}
		return tx.MarkRefunded(ctx, id)
	})
	if !errors.Is(err, ErrNotSold) {
		t.Errorf("double refund in one tx: err = %v, want ErrNotSold", err)
	}
	// The whole transaction aborted, so the ticket is still sold.
	got, _ := s.GetTicket(ctx, id)
	if got.Status != model.StatusSold {
		t.Errorf("status after aborted refund tx = %s, want %s", got.Status, model.StatusSold)
	}
}

func TestDedupSorted(t *testing.T) {
	cases := []struct {
		in, want []string
	}{
		{[]string{"G200", "G100"}, []string{"G100", "G200"}},
		{[]string{"G100", "G100"}, []string{"G100"}},
		{[]string{"G100"}, []string{"G100"}},
		{nil, nil},
	}
	for _, tc := range cases {
		if got := dedupSorted(tc.in); !reflect.DeepEqual(got, tc.want) {
			t.Errorf("dedupSorted(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestGetBucket_AbsentIsZero(t *testing.T) {
	s := NewMemoryStore()
	b, err := s.GetBucket(context.Background(), model.PeriodYearly, "1999")
	if err != nil {
		t.Fatalf("GetBucket: %v", err)
	}
	if b.Period != model.PeriodYearly || b.Key != "1999" {
		t.Errorf("zero bucket identity = %s/%s", b.Period, b.Key)
	}
	if b.TicketsSold != 0 || b.TotalRevenue != 0 {
		t.Errorf("zero bucket has counts: %+v", b)
	}
}
