package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/rideya/rideya-backend/internal/models"
	"github.com/rideya/rideya-backend/internal/repository/common"
)

// ErrVehicleExists возвращается при повторной регистрации госномера.
var ErrVehicleExists = errors.New("vehicle with this license plate already exists")

// VehicleRepository отвечает за автомобили водителей.
type VehicleRepository struct {
	db *sqlx.DB
}

func NewVehicleRepository(db *sqlx.DB) *VehicleRepository {
	return &VehicleRepository{db: db}
}

func (r *VehicleRepository) Create(ctx context.Context, v *models.Vehicle) error {
	query := `
		INSERT INTO vehicles (driver_id, make, model, year, license_plate, color, vehicle_type, seats, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE)
		RETURNING id, is_active, created_at
	`
	if err := r.db.QueryRowxContext(ctx, query,
		v.DriverID, v.Make, v.Model, v.Year, v.LicensePlate, v.Color, v.VehicleType, v.Seats,
	).Scan(&v.ID, &v.IsActive, &v.CreatedAt); err != nil {
		if common.IsUniqueViolation(err) {
			return ErrVehicleExists
		}
		return fmt.Errorf("vehicle repository: create %w", err)
	}
	return nil
}

func (r *VehicleRepository) ListByDriver(ctx context.Context, driverID uuid.UUID) ([]models.Vehicle, error) {
	vehicles := []models.Vehicle{}
	err := r.db.SelectContext(ctx, &vehicles, `
		SELECT id, driver_id, make, model, year, license_plate, color, vehicle_type, seats, is_active, created_at
		FROM vehicles
		WHERE driver_id = $1
		ORDER BY created_at DESC
	`, driverID)
	if err != nil {
		return nil, fmt.Errorf("vehicle repository: list by driver %w", err)
	}
	return vehicles, nil
}
