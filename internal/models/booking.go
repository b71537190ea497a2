package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Location точка на карте: координаты в порядке [долгота, широта] и адрес.
type Location struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
	Address     string     `json:"address,omitempty"`
}

func (l Location) Lng() float64 { return l.Coordinates[0] }
func (l Location) Lat() float64 { return l.Coordinates[1] }

// Value сохраняет точку в JSONB.
func (l Location) Value() (driver.Value, error) {
	if l.Type == "" {
		l.Type = "Point"
	}
	return json.Marshal(l)
}

// Scan читает точку из JSONB.
func (l *Location) Scan(src interface{}) error {
	return scanJSON(src, l)
}

// FareCalculation детализация стоимости поездки.
type FareCalculation struct {
	BaseFare     float64 `json:"baseFare"`
	DistanceFare float64 `json:"distanceFare"`
	TimeFare     float64 `json:"timeFare"`
	SurgePricing float64 `json:"surgePricing"`
	Discount     float64 `json:"discount"`
	TotalFare    float64 `json:"totalFare"`
	Currency     string  `json:"currency"`
	DistanceKm   float64 `json:"distanceKm"`
}

func (f FareCalculation) Value() (driver.Value, error) {
	return json.Marshal(f)
}

func (f *FareCalculation) Scan(src interface{}) error {
	return scanJSON(src, f)
}

// RideBooking заказ поездки пассажиром.
type RideBooking struct {
	ID              uuid.UUID       `db:"id" json:"id"`
	PassengerID     uuid.UUID       `db:"passenger_id" json:"passengerId"`
	DriverID        *uuid.UUID      `db:"driver_id" json:"driverId,omitempty"`
	PickupLocation  Location        `db:"pickup_location" json:"pickupLocation"`
	DropoffLocation Location        `db:"dropoff_location" json:"dropoffLocation"`
	Status          string          `db:"status" json:"status"`
	Fare            FareCalculation `db:"fare" json:"fare"`
	ScheduledTime   *time.Time      `db:"scheduled_time" json:"scheduledTime,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updatedAt"`
}

// IsParticipant сообщает, является ли пользователь пассажиром или водителем поездки.
func (b *RideBooking) IsParticipant(userID uuid.UUID) bool {
	if b.PassengerID == userID {
		return true
	}
	return b.DriverID != nil && *b.DriverID == userID
}

// Vehicle автомобиль водителя.
type Vehicle struct {
	ID           uuid.UUID `db:"id" json:"id"`
	DriverID     uuid.UUID `db:"driver_id" json:"driverId"`
	Make         string    `db:"make" json:"make"`
	Model        string    `db:"model" json:"model"`
	Year         int       `db:"year" json:"year"`
	LicensePlate string    `db:"license_plate" json:"licensePlate"`
	Color        string    `db:"color" json:"color"`
	VehicleType  string    `db:"vehicle_type" json:"vehicleType"`
	Seats        int       `db:"seats" json:"seats"`
	IsActive     bool      `db:"is_active" json:"isActive"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}

func scanJSON(src interface{}, dst interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("models: неподдерживаемый тип %T для JSONB", src)
	}
}
