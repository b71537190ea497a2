package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rideya/rideya-backend/internal/config"
	"github.com/rideya/rideya-backend/internal/models"
)

func point(lng, lat float64) models.Location {
	return models.Location{Type: "Point", Coordinates: [2]float64{lng, lat}}
}

func testFareConfig() config.FareConfig {
	return config.FareConfig{BaseFare: 2.5, PerKm: 1.2, MinimumFare: 5, Currency: "USD"}
}

func TestHaversineKm(t *testing.T) {
	// Один градус широты примерно 111.19 км.
	assert.InDelta(t, 111.19, HaversineKm(point(0, 0), point(0, 1)), 0.01)
	assert.Zero(t, HaversineKm(point(37.6, 55.7), point(37.6, 55.7)))
}

func TestFareCalculator_Calculate(t *testing.T) {
	calc := NewFareCalculator(testFareConfig())

	fare := calc.Calculate(point(0, 0), point(0, 0.1), 0)
	assert.InDelta(t, 11.12, fare.DistanceKm, 0.01)
	assert.InDelta(t, 2.5+13.34, fare.TotalFare, 0.02)
	assert.Equal(t, "USD", fare.Currency)
	assert.Equal(t, 1.0, fare.SurgePricing)
}

func TestFareCalculator_SurgeAndDiscount(t *testing.T) {
	calc := NewFareCalculator(testFareConfig())
	calc.SetSurge(2)

	fare := calc.Calculate(point(0, 0), point(0, 0.1), 3)
	assert.InDelta(t, (2.5+13.34)*2-3, fare.TotalFare, 0.02)
	assert.Equal(t, 3.0, fare.Discount)

	calc.SetSurge(0.5)
	assert.Equal(t, 2.0, calc.surge)
}

func TestFareCalculator_MinimumFare(t *testing.T) {
	calc := NewFareCalculator(testFareConfig())

	fare := calc.Calculate(point(0, 0), point(0, 0.001), 0)
	assert.Equal(t, 5.0, fare.TotalFare)
}
