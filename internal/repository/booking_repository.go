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

var (
	// ErrBookingNotFound возвращается, когда поездка не найдена.
	ErrBookingNotFound = errors.New("booking not found")
	// ErrBookingStatusChanged возвращается, когда статус поездки изменился параллельно.
	ErrBookingStatusChanged = errors.New("booking status changed concurrently")
)

const bookingColumns = `id, passenger_id, driver_id, pickup_location, dropoff_location, status, fare,
	scheduled_time, created_at, updated_at`

// BookingRepository отвечает за таблицу ride_bookings.
type BookingRepository struct {
	db *sqlx.DB
}

func NewBookingRepository(db *sqlx.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

// Create сохраняет новую поездку в статусе REQUESTED.
func (r *BookingRepository) Create(ctx context.Context, b *models.RideBooking) error {
	query := `
		INSERT INTO ride_bookings (passenger_id, pickup_location, dropoff_location, status, fare, scheduled_time)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`
	if err := r.db.QueryRowxContext(ctx, query,
		b.PassengerID, b.PickupLocation, b.DropoffLocation, b.Status, b.Fare, b.ScheduledTime,
	).Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return fmt.Errorf("booking repository: create %w", err)
	}
	return nil
}

// GetByID возвращает поездку по идентификатору.
func (r *BookingRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.RideBooking, error) {
	b, err := common.GetByField[models.RideBooking](ctx, r.db, "ride_bookings", bookingColumns, "id", id, ErrBookingNotFound)
	if err != nil {
		if errors.Is(err, ErrBookingNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("booking repository: get by id %w", err)
	}
	return b, nil
}

// ListByUser возвращает поездки, где пользователь пассажир или водитель.
func (r *BookingRepository) ListByUser(ctx context.Context, userID uuid.UUID, status string, limit, offset int) ([]models.RideBooking, int, error) {
	where := `WHERE (passenger_id = $1 OR driver_id = $1)`
	args := []interface{}{userID}
	if status != "" {
		where += ` AND status = $2`
		args = append(args, status)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM ride_bookings `+where, args...); err != nil {
		return nil, 0, fmt.Errorf("booking repository: count %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM ride_bookings %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		bookingColumns, where, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	bookings := []models.RideBooking{}
	if err := r.db.SelectContext(ctx, &bookings, query, args...); err != nil {
		return nil, 0, fmt.Errorf("booking repository: list %w", err)
	}
	return bookings, total, nil
}

// UpdateStatus меняет статус, только если текущий статус равен from.
func (r *BookingRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to string) (*models.RideBooking, error) {
	var b models.RideBooking
	err := r.db.GetContext(ctx, &b, `
		UPDATE ride_bookings SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING `+bookingColumns, id, from, to)
	if err != nil {
		return nil, r.statusErr("update status", err)
	}
	return &b, nil
}

// AssignDriver назначает водителя на поездку в статусе REQUESTED.
func (r *BookingRepository) AssignDriver(ctx context.Context, id, driverID uuid.UUID) (*models.RideBooking, error) {
	var b models.RideBooking
	err := r.db.GetContext(ctx, &b, `
		UPDATE ride_bookings SET driver_id = $2, status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $4 AND driver_id IS NULL
		RETURNING `+bookingColumns, id, driverID, models.RideStatusAccepted, models.RideStatusRequested)
	if err != nil {
		return nil, r.statusErr("assign driver", err)
	}
	return &b, nil
}

func (r *BookingRepository) statusErr(op string, err error) error {
	if isNoRows(err) {
		return ErrBookingStatusChanged
	}
	return fmt.Errorf("booking repository: %s %w", op, err)
}
