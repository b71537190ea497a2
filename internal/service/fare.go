package service

import (
	"math"

	"github.com/rideya/rideya-backend/internal/config"
	"github.com/rideya/rideya-backend/internal/models"
)

const earthRadiusKm = 6371.0

// FareCalculator считает стоимость поездки: подача плюс километраж, умноженные на surge, минус скидка.
type FareCalculator struct {
	cfg   config.FareConfig
	surge float64
}

// NewFareCalculator создаёт калькулятор с коэффициентом surge 1.
func NewFareCalculator(cfg config.FareConfig) *FareCalculator {
	return &FareCalculator{cfg: cfg, surge: 1}
}

// SetSurge задаёт коэффициент повышенного спроса. Значения меньше 1 игнорируются.
func (f *FareCalculator) SetSurge(multiplier float64) {
	if multiplier >= 1 {
		f.surge = multiplier
	}
}

// Calculate возвращает детализацию стоимости между двумя точками.
func (f *FareCalculator) Calculate(pickup, dropoff models.Location, discount float64) models.FareCalculation {
	distance := roundMoney(HaversineKm(pickup, dropoff))
	distanceFare := roundMoney(distance * f.cfg.PerKm)

	total := (f.cfg.BaseFare+distanceFare)*f.surge - math.Max(discount, 0)
	if total < f.cfg.MinimumFare {
		total = f.cfg.MinimumFare
	}

	return models.FareCalculation{
		BaseFare:     f.cfg.BaseFare,
		DistanceFare: distanceFare,
		SurgePricing: f.surge,
		Discount:     math.Max(discount, 0),
		TotalFare:    roundMoney(total),
		Currency:     f.cfg.Currency,
		DistanceKm:   distance,
	}
}

// HaversineKm расстояние по дуге большого круга в километрах.
func HaversineKm(a, b models.Location) float64 {
	lat1 := a.Lat() * math.Pi / 180
	lat2 := b.Lat() * math.Pi / 180
	dLat := (b.Lat() - a.Lat()) * math.Pi / 180
	dLng := (b.Lng() - a.Lng()) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}

func roundMoney(v float64) float64 {
	return math.Round(v*100) / 100
}
