package service

import (
	"context"
	"errors"
	"testing"

	"railbook/internal/ledger"
	"railbook/internal/model"
)

func TestAddTrain_Duplicate(t *testing.T) {
	c := newTestCore(t)
	err := c.catalog.AddTrain(context.Background(), &model.TrainRoute{
		TrainID: "G100", Departure: "X", Destination: "Y",
		DepartureTime: "10:00", ArrivalTime: "11:00",
		TotalSeats: 10, Price: 1.0,
	})
	if !errors.Is(err, ledger.ErrDuplicateTrain) {
		t.Errorf("duplicate AddTrain: err = %v, want ErrDuplicateTrain", err)
	}
}

func TestAddTrain_Validation(t *testing.T) {
	c := newTestCore(t)
	ctx := context.Background()

	cases := []struct {
		name  string
		route model.TrainRoute
	}{
		{"empty train_id", model.TrainRoute{TotalSeats: 10, Price: 1.0}},
		{"zero seats", model.TrainRoute{TrainID: "Z1", TotalSeats: 0, Price: 1.0}},
		{"negative seats", model.TrainRoute{TrainID: "Z2", TotalSeats: -5, Price: 1.0}},
		{"negative price", model.TrainRoute{TrainID: "Z3", TotalSeats: 10, Price: -1.0}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			route := tc.route
			if err := c.catalog.AddTrain(ctx, &route); !errors.Is(err, ledger.ErrValidation) {
				t.Errorf("err = %v, want ErrValidation", err)
			}
		})
	}
}

func TestUpdatePrice(t *testing.T) {
	c := newTestCore(t)
	ctx := context.Background()

	if err := c.catalog.UpdatePrice(ctx, "G100", 600.0); err != nil {
		t.Fatalf("UpdatePrice: %v", err)
	}
	route, err := c.catalog.GetTrain(ctx, "G100")
	if err != nil {
		t.Fatalf("GetTrain: %v", err)
	}
	if route.Price != 600.0 {
		t.Errorf("price = %.2f, want 600.00", route.Price)
	}

	// Future bookings see the new price.
	tk := c.mustBook(t, "G100", "A", "id-a")
	if tk.Price != 600.0 {
		t.Errorf("ticket price = %.2f, want 600.00", tk.Price)
	}
}

func TestUpdatePrice_DoesNotTouchSoldTickets(t *testing.T) {
	c := newTestCore(t)
	ctx := context.Background()

	tk := c.mustBook(t, "G100", "A", "id-a")
	if err := c.catalog.UpdatePrice(ctx, "G100", 600.0); err != nil {
		t.Fatalf("UpdatePrice: %v", err)
	}
	got, err := c.store.GetTicket(ctx, tk.TicketID)
	if err != nil {
		t.Fatalf("GetTicket: %v", err)
	}
	if got.Price != 553.0 {
		t.Errorf("sold ticket price = %.2f, want 553.00 (snapshot)", got.Price)
	}
}

func TestUpdatePrice_Errors(t *testing.T) {
	c := newTestCore(t)
	ctx := context.Background()

	if err := c.catalog.UpdatePrice(ctx, "Z999", 10.0); !errors.Is(err, ledger.ErrTrainNotFound) {
		t.Errorf("unknown train: err = %v, want ErrTrainNotFound", err)
	}
	if err := c.catalog.UpdatePrice(ctx, "G100", -1.0); !errors.Is(err, ledger.ErrValidation) {
		t.Errorf("negative price: err = %v, want ErrValidation", err)
	}
}

func TestSearchTrains_Filters(t *testing.T) {
	c := newTestCore(t)
	ctx := context.Background()

	all, err := c.catalog.SearchTrains(ctx, "", "")
	if err != nil {
		t.Fatalf("SearchTrains: %v", err)
	}
	if len(all) != 15 {
		t.Fatalf("catalog size = %d, want 15 demo routes", len(all))
	}

	fromBeijing, err := c.catalog.SearchTrains(ctx, "Beijing", "")
	if err != nil {
		t.Fatalf("SearchTrains(Beijing): %v", err)
	}
	if len(fromBeijing) == 0 {
		t.Fatal("no routes departing Beijing in demo catalog")
	}
	for _, r := range fromBeijing {
		if r.Departure != "Beijing" {
			t.Errorf("route %s departs %s, want Beijing", r.TrainID, r.Departure)
		}
	}

	both, err := c.catalog.SearchTrains(ctx, "Beijing", "Shanghai")
	if err != nil {
		t.Fatalf("SearchTrains(Beijing, Shanghai): %v", err)
	}
	for _, r := range both {
		if r.Departure != "Beijing" || r.Destination != "Shanghai" {
			t.Errorf("route %s is %s→%s, want Beijing→Shanghai", r.TrainID, r.Departure, r.Destination)
		}
	}

	none, err := c.catalog.SearchTrains(ctx, "Atlantis", "")
	if err != nil {
		t.Fatalf("SearchTrains(Atlantis): %v", err)
	}
	if len(none) != 0 {
		t.Errorf("got %d routes from Atlantis, want 0", len(none))
	}
}
