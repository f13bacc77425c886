package service

import (
	"context"
	"fmt"
	"log"

	"railbook/internal/ledger"
	"railbook/internal/model"
)

// CatalogService manages the read-mostly train catalog. Routes are
// immutable after creation except for price.
type CatalogService struct {
	store ledger.Store
}

// NewCatalogService creates the catalog over the given ledger.
func NewCatalogService(store ledger.Store) *CatalogService {
	return &CatalogService{store: store}
}

// AddTrain registers a new route. The train_id must be unused.
func (c *CatalogService) AddTrain(ctx context.Context, route *model.TrainRoute) error {
	if route.TrainID == "" {
		return fmt.Errorf("%w: train_id is required", ledger.ErrValidation)
	}
	if route.TotalSeats <= 0 {
		return fmt.Errorf("%w: total_seats must be positive, got %d", ledger.ErrValidation, route.TotalSeats)
	}
	if route.Price < 0 {
		return fmt.Errorf("%w: price must be non-negative, got %.2f", ledger.ErrValidation, route.Price)
	}
	if err := c.store.AddTrain(ctx, route); err != nil {
		return err
	}
	log.Printf("[catalog] added train %s %s→%s (%d seats, %.2f)",
		route.TrainID, route.Departure, route.Destination, route.TotalSeats, route.Price)
	return nil
}

// GetTrain returns a route by train_id.
func (c *CatalogService) GetTrain(ctx context.Context, trainID string) (*model.TrainRoute, error) {
	if trainID == "" {
		return nil, fmt.Errorf("%w: train_id is required", ledger.ErrValidation)
	}
	return c.store.GetTrain(ctx, trainID)
}

// SearchTrains returns routes matching the supplied non-empty filters
// (AND semantics); no filters returns the whole catalog.
func (c *CatalogService) SearchTrains(ctx context.Context, departure, destination string) ([]model.TrainRoute, error) {
	return c.store.SearchTrains(ctx, departure, destination)
}

// UpdatePrice replaces a route's price. Bookings in flight keep the price
// they were sold at; only future bookings see the new price.
func (c *CatalogService) UpdatePrice(ctx context.Context, trainID string, price float64) error {
	if trainID == "" {
		return fmt.Errorf("%w: train_id is required", ledger.ErrValidation)
	}
	if price < 0 {
		return fmt.Errorf("%w: price must be non-negative, got %.2f", ledger.ErrValidation, price)
	}
	if err := c.store.UpdateTrainPrice(ctx, trainID, price); err != nil {
		return err
	}
	log.Printf("[catalog] updated price of %s to %.2f", trainID, price)
	return nil
}
