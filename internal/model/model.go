// Package model contains domain models for the train ticketing core.
// These structs map to the PostgreSQL schema defined in migrations/001_create_schema.up.sql.
package model

import "time"

// ─── Enums ──────────────────────────────────────────────────

// TicketStatus is the lifecycle state of a ticket. The only legal
// transition is Sold → Refunded; a ticket is never deleted.
type TicketStatus string

const (
	StatusSold     TicketStatus = "sold"
	StatusRefunded TicketStatus = "refunded"
)

// Period is the granularity of a statistics bucket.
type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodMonthly Period = "monthly"
	PeriodYearly  Period = "yearly"
)

// Valid reports whether p is one of the three known granularities.
func (p Period) Valid() bool {
	return p == PeriodDaily || p == PeriodMonthly || p == PeriodYearly
}

// Key formats t as the bucket key for this period
// ("2006-01-02", "2006-01", or "2006").
func (p Period) Key(t time.Time) string {
	switch p {
	case PeriodDaily:
		return t.Format("2006-01-02")
	case PeriodMonthly:
		return t.Format("2006-01")
	default:
		return t.Format("2006")
	}
}

// ─── Domain Models ──────────────────────────────────────────

// TrainRoute maps to the `trains` table. Immutable once created except
// Price, which only the catalog's UpdatePrice may replace.
type TrainRoute struct {
	TrainID       string    `json:"train_id"`
	Departure     string    `json:"departure"`
	Destination   string    `json:"destination"`
	DepartureTime string    `json:"departure_time"`
	ArrivalTime   string    `json:"arrival_time"`
	TotalSeats    int       `json:"total_seats"`
	Price         float64   `json:"price"`
	CreatedAt     time.Time `json:"created_at"`
}

// Ticket maps to the `tickets` table. Created by Book with status Sold;
// Refund/Change flip the status, nothing else is ever mutated.
//
// Price is the train's price at booking time. Revenue and refund figures
// are computed from this snapshot, so later UpdatePrice calls cannot make
// the statistics buckets drift from what a ledger scan reproduces.
type Ticket struct {
	TicketID       int64        `json:"ticket_id"`
	TrainID        string       `json:"train_id"`
	PassengerName  string       `json:"passenger_name"`
	PassengerID    string       `json:"passenger_id"`
	SeatNumber     int          `json:"seat_number"`
	BookingTime    time.Time    `json:"booking_time"`
	Status         TicketStatus `json:"status"`
	IsGroup        bool         `json:"is_group"`
	Price          float64      `json:"price"`
	IdempotencyKey string       `json:"-"`
}

// StatisticsBucket maps to the daily/monthly/yearly statistics tables.
// Derived data: always reproducible by scanning tickets for the period.
type StatisticsBucket struct {
	Period          Period    `json:"period"`
	Key             string    `json:"key"`
	TicketsSold     int       `json:"tickets_sold"`
	TicketsRefunded int       `json:"tickets_refunded"`
	TotalRevenue    float64   `json:"total_revenue"`
	TotalRefund     float64   `json:"total_refund"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ─── Query projections ──────────────────────────────────────

// PassengerOrder is a ticket joined with its route, as returned by
// PassengerOrders and SearchTicketsByPerson.
type PassengerOrder struct {
	TicketID      int64        `json:"ticket_id"`
	TrainID       string       `json:"train_id"`
	Departure     string       `json:"departure"`
	Destination   string       `json:"destination"`
	DepartureTime string       `json:"departure_time"`
	ArrivalTime   string       `json:"arrival_time"`
	SeatNumber    int          `json:"seat_number"`
	BookingTime   time.Time    `json:"booking_time"`
	Status        TicketStatus `json:"status"`
	Price         float64      `json:"price"`
	PassengerName string       `json:"passenger_name"`
	PassengerID   string       `json:"passenger_id"`
}

// TrainSales is one row of a sales report: sold tickets and revenue for
// a single train over the requested date range.
type TrainSales struct {
	TrainID     string  `json:"train_id"`
	TicketsSold int     `json:"tickets_sold"`
	Revenue     float64 `json:"revenue"`
}

// TrainAvailability pairs a route with its remaining seat count.
type TrainAvailability struct {
	TrainRoute
	AvailableSeats int `json:"available_seats"`
}

// PeriodStats is a statistics bucket enriched with figures derived from
// the next-finer granularity (average and peak sub-period sales).
// Avg/Peak fields are zero for daily buckets.
type PeriodStats struct {
	StatisticsBucket
	AvgSubSales  float64 `json:"avg_sub_sales,omitempty"`
	PeakSubKey   string  `json:"peak_sub_key,omitempty"`
	PeakSubSales int     `json:"peak_sub_sales,omitempty"`
}

// ─── Booking events ─────────────────────────────────────────

// TicketEventKind distinguishes the two ledger events that feed statistics.
type TicketEventKind int

const (
	EventSold TicketEventKind = iota
	EventRefunded
)

// TicketEvent is emitted by the booking engine for every committed ledger
// write and consumed by the statistics aggregator within the same
// transaction. BookingTime is always the ticket's original booking time:
// refund counters land in the bucket the sale landed in.
type TicketEvent struct {
	Kind        TicketEventKind
	TrainID     string
	BookingTime time.Time
	Price       float64
}
