package ledger

import (
	"context"
	"errors"

	"railbook/internal/model"
)

// DemoRoutes returns the canonical demo catalog: the fifteen routes the
// system has always shipped with for demos and tests.
func DemoRoutes() []model.TrainRoute {
	return []model.TrainRoute{
		{TrainID: "G100", Departure: "Beijing", Destination: "Shanghai", DepartureTime: "08:00", ArrivalTime: "13:00", TotalSeats: 400, Price: 553.0},
		{TrainID: "G200", Departure: "Guangzhou", Destination: "Wuhan", DepartureTime: "09:30", ArrivalTime: "14:30", TotalSeats: 350, Price: 463.0},
		{TrainID: "D100", Departure: "Shenzhen", Destination: "Xiamen", DepartureTime: "10:00", ArrivalTime: "16:00", TotalSeats: 300, Price: 363.0},
		{TrainID: "K100", Departure: "Xian", Destination: "Chengdu", DepartureTime: "20:00", ArrivalTime: "08:00", TotalSeats: 200, Price: 263.0},
		{TrainID: "G300", Departure: "Beijing", Destination: "Guangzhou", DepartureTime: "08:30", ArrivalTime: "16:30", TotalSeats: 400, Price: 863.0},
		{TrainID: "G101", Departure: "Shanghai", Destination: "Beijing", DepartureTime: "09:00", ArrivalTime: "14:00", TotalSeats: 400, Price: 553.0},
		{TrainID: "G201", Departure: "Wuhan", Destination: "Guangzhou", DepartureTime: "10:30", ArrivalTime: "15:30", TotalSeats: 350, Price: 463.0},
		{TrainID: "D101", Departure: "Xiamen", Destination: "Shenzhen", DepartureTime: "11:00", ArrivalTime: "17:00", TotalSeats: 300, Price: 363.0},
		{TrainID: "K101", Departure: "Chengdu", Destination: "Xian", DepartureTime: "21:00", ArrivalTime: "09:00", TotalSeats: 200, Price: 263.0},
		{TrainID: "G301", Departure: "Guangzhou", Destination: "Beijing", DepartureTime: "09:30", ArrivalTime: "17:30", TotalSeats: 400, Price: 863.0},
		{TrainID: "D200", Departure: "Nanjing", Destination: "Hangzhou", DepartureTime: "08:30", ArrivalTime: "10:30", TotalSeats: 300, Price: 213.0},
		{TrainID: "D201", Departure: "Hangzhou", Destination: "Nanjing", DepartureTime: "09:30", ArrivalTime: "11:30", TotalSeats: 300, Price: 213.0},
		{TrainID: "G400", Departure: "Tianjin", Destination: "Jinan", DepartureTime: "10:00", ArrivalTime: "12:00", TotalSeats: 350, Price: 323.0},
		{TrainID: "G401", Departure: "Jinan", Destination: "Tianjin", DepartureTime: "13:00", ArrivalTime: "15:00", TotalSeats: 350, Price: 323.0},
		{TrainID: "K200", Departure: "Changsha", Destination: "Guiyang", DepartureTime: "19:00", ArrivalTime: "06:00", TotalSeats: 250, Price: 243.0},
	}
}

// SeedDemo loads the demo catalog into the store, skipping routes that
// already exist so it is safe to run on every startup.
func SeedDemo(ctx context.Context, store Store) error {
	for _, r := range DemoRoutes() {
		route := r
		if err := store.AddTrain(ctx, &route); err != nil {
			if errors.Is(err, ErrDuplicateTrain) {
				continue
			}
			return err
		}
	}
	return nil
}
