package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rideya/rideya-backend/internal/logger"
	"github.com/rideya/rideya-backend/internal/models"
	"github.com/rideya/rideya-backend/internal/pkg/apperror"
	"github.com/rideya/rideya-backend/internal/repository"
	"github.com/rideya/rideya-backend/internal/validation"
	"github.com/rideya/rideya-backend/internal/ws"
)

// BookingRepository описывает хранилище поездок.
type BookingRepository interface {
	Create(ctx context.Context, b *models.RideBooking) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.RideBooking, error)
	ListByUser(ctx context.Context, userID uuid.UUID, status string, limit, offset int) ([]models.RideBooking, int, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to string) (*models.RideBooking, error)
	AssignDriver(ctx context.Context, id, driverID uuid.UUID) (*models.RideBooking, error)
}

// VehicleRepository описывает хранилище автомобилей.
type VehicleRepository interface {
	Create(ctx context.Context, v *models.Vehicle) error
	ListByDriver(ctx context.Context, driverID uuid.UUID) ([]models.Vehicle, error)
}

// RideBroadcaster доставляет события поездки подключённым клиентам.
type RideBroadcaster interface {
	BroadcastToRide(rideID uuid.UUID, event string, data any) error
	BroadcastToUser(userID uuid.UUID, event string, data any) error
}

// BookingService управляет заказами поездок и их статусами.
type BookingService struct {
	repo        BookingRepository
	vehicles    VehicleRepository
	fare        *FareCalculator
	broadcaster RideBroadcaster
	now         func() time.Time
}

// CreateBookingInput данные нового заказа.
type CreateBookingInput struct {
	Pickup        models.Location
	Dropoff       models.Location
	ScheduledTime *time.Time
}

// RegisterVehicleInput данные автомобиля водителя.
type RegisterVehicleInput struct {
	Make         string
	Model        string
	Year         int
	LicensePlate string
	Color        string
	VehicleType  string
	Seats        int
}

// RideStatusEvent полезная нагрузка события ride:status.
type RideStatusEvent struct {
	RideID    uuid.UUID  `json:"rideId"`
	Status    string     `json:"status"`
	DriverID  *uuid.UUID `json:"driverId,omitempty"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// DriverLocationEvent полезная нагрузка события driver:location:update.
type DriverLocationEvent struct {
	RideID    uuid.UUID       `json:"rideId"`
	DriverID  uuid.UUID       `json:"driverId"`
	Location  models.Location `json:"location"`
	Heading   *float64        `json:"heading,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

var validVehicleTypes = map[string]struct{}{
	models.VehicleTypeSedan: {},
	models.VehicleTypeSUV:   {},
	models.VehicleTypeVan:   {},
	models.VehicleTypeBike:  {},
}

// NewBookingService создаёт сервис поездок. broadcaster может быть nil.
func NewBookingService(repo BookingRepository, vehicles VehicleRepository, fare *FareCalculator, broadcaster RideBroadcaster) *BookingService {
	return &BookingService{
		repo:        repo,
		vehicles:    vehicles,
		fare:        fare,
		broadcaster: broadcaster,
		now:         time.Now,
	}
}

// CreateBooking рассчитывает стоимость и создаёт поездку в статусе REQUESTED.
func (s *BookingService) CreateBooking(ctx context.Context, passengerID uuid.UUID, in CreateBookingInput) (*models.RideBooking, error) {
	if err := firstError(
		validation.ValidateCoordinates(in.Pickup.Lng(), in.Pickup.Lat()),
		validation.ValidateCoordinates(in.Dropoff.Lng(), in.Dropoff.Lat()),
	); err != nil {
		return nil, apperror.New(apperror.ErrCodeValidation, err.Error())
	}
	if in.ScheduledTime != nil && in.ScheduledTime.Before(s.now()) {
		return nil, apperror.New(apperror.ErrCodeValidation, "время подачи не может быть в прошлом")
	}

	booking := &models.RideBooking{
		PassengerID:     passengerID,
		PickupLocation:  withPointType(in.Pickup),
		DropoffLocation: withPointType(in.Dropoff),
		Status:          models.RideStatusRequested,
		Fare:            s.fare.Calculate(in.Pickup, in.Dropoff, 0),
		ScheduledTime:   in.ScheduledTime,
	}

	if err := s.repo.Create(ctx, booking); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "не удалось создать поездку")
	}

	logger.Log.WithFields(logrus.Fields{
		"booking_id":   booking.ID.String(),
		"passenger_id": passengerID.String(),
		"total_fare":   booking.Fare.TotalFare,
	}).Info("booking service: поездка создана")

	return booking, nil
}

// GetBooking возвращает поездку участнику или администратору.
func (s *BookingService) GetBooking(ctx context.Context, id, userID uuid.UUID, role string) (*models.RideBooking, error) {
	booking, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !booking.IsParticipant(userID) && !models.IsAdminRole(role) {
		return nil, apperror.ErrForbidden
	}
	return booking, nil
}

// ListBookings возвращает поездки пользователя постранично.
func (s *BookingService) ListBookings(ctx context.Context, userID uuid.UUID, status string, limit, offset int) ([]models.RideBooking, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	status = strings.ToUpper(status)
	if status != "" && !isRideStatus(status) {
		return nil, 0, apperror.New(apperror.ErrCodeValidation, "неизвестный статус поездки")
	}

	bookings, total, err := s.repo.ListByUser(ctx, userID, status, limit, offset)
	if err != nil {
		return nil, 0, apperror.Wrap(err, apperror.ErrCodeInternal, "не удалось получить список поездок")
	}
	return bookings, total, nil
}

// AcceptBooking назначает водителя на поездку. Принять можно только поездку в статусе REQUESTED.
func (s *BookingService) AcceptBooking(ctx context.Context, id, driverID uuid.UUID) (*models.RideBooking, error) {
	booking, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !models.CanTransition(booking.Status, models.RideStatusAccepted) || booking.DriverID != nil {
		return nil, apperror.ErrInvalidTransition
	}

	updated, err := s.repo.AssignDriver(ctx, id, driverID)
	if err != nil {
		if errors.Is(err, repository.ErrBookingStatusChanged) {
			return nil, apperror.ErrInvalidTransition
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "не удалось принять поездку")
	}

	s.publishStatus(updated)
	return updated, nil
}

// UpdateStatus переводит поездку в новый статус.
// Отменить может любой участник, остальные переходы выполняет водитель поездки.
func (s *BookingService) UpdateStatus(ctx context.Context, id, userID uuid.UUID, role, to string) (*models.RideBooking, error) {
	to = strings.ToUpper(to)
	if !isRideStatus(to) {
		return nil, apperror.New(apperror.ErrCodeValidation, "неизвестный статус поездки")
	}

	booking, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	admin := models.IsAdminRole(role)
	if !booking.IsParticipant(userID) && !admin {
		return nil, apperror.ErrForbidden
	}
	if to == models.RideStatusAccepted {
		// Принятие идёт через AcceptBooking, чтобы назначить водителя.
		return nil, apperror.ErrInvalidTransition
	}
	isDriver := booking.DriverID != nil && *booking.DriverID == userID
	if to != models.RideStatusCancelled && !isDriver && !admin {
		return nil, apperror.ErrForbidden
	}
	if !models.CanTransition(booking.Status, to) {
		return nil, apperror.ErrInvalidTransition.WithDetails(map[string]string{
			"from": booking.Status,
			"to":   to,
		})
	}

	updated, err := s.repo.UpdateStatus(ctx, id, booking.Status, to)
	if err != nil {
		if errors.Is(err, repository.ErrBookingStatusChanged) {
			return nil, apperror.ErrInvalidTransition
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "не удалось обновить статус поездки")
	}

	s.publishStatus(updated)
	return updated, nil
}

// JoinRide разрешает вход в комнату поездки только её участникам.
func (s *BookingService) JoinRide(ctx context.Context, userID, rideID uuid.UUID) error {
	booking, err := s.load(ctx, rideID)
	if err != nil {
		return err
	}
	if !booking.IsParticipant(userID) {
		return apperror.ErrForbidden
	}
	return nil
}

// DriverLocation рассылает координаты водителя участникам активной поездки.
func (s *BookingService) DriverLocation(ctx context.Context, driverID uuid.UUID, loc ws.DriverLocation) error {
	if err := validation.ValidateCoordinates(loc.Lng, loc.Lat); err != nil {
		return apperror.New(apperror.ErrCodeValidation, err.Error())
	}

	booking, err := s.load(ctx, loc.RideID)
	if err != nil {
		return err
	}
	if booking.DriverID == nil || *booking.DriverID != driverID {
		return apperror.ErrForbidden
	}
	if !isActiveRide(booking.Status) {
		return apperror.New(apperror.ErrCodeConflict, "поездка не активна")
	}

	if s.broadcaster == nil {
		return nil
	}
	event := DriverLocationEvent{
		RideID:    booking.ID,
		DriverID:  driverID,
		Location:  models.Location{Type: "Point", Coordinates: [2]float64{loc.Lng, loc.Lat}},
		Heading:   loc.Heading,
		Timestamp: s.now(),
	}
	if err := s.broadcaster.BroadcastToRide(booking.ID, ws.EventDriverLocationUpdate, event); err != nil {
		return apperror.Wrap(err, apperror.ErrCodeInternal, "не удалось отправить координаты")
	}
	return nil
}

// RegisterVehicle добавляет автомобиль водителю.
func (s *BookingService) RegisterVehicle(ctx context.Context, driverID uuid.UUID, in RegisterVehicleInput) (*models.Vehicle, error) {
	vehicleType := strings.ToUpper(in.VehicleType)
	if _, ok := validVehicleTypes[vehicleType]; !ok {
		return nil, apperror.New(apperror.ErrCodeValidation, "неизвестный тип автомобиля")
	}
	if err := firstError(
		validation.ValidateLength("марка", in.Make, 1, 50),
		validation.ValidateLength("модель", in.Model, 1, 50),
		validation.ValidateLength("госномер", in.LicensePlate, 2, 20),
	); err != nil {
		return nil, apperror.New(apperror.ErrCodeValidation, err.Error())
	}
	if in.Year < 1990 || in.Year > s.now().Year()+1 {
		return nil, apperror.New(apperror.ErrCodeValidation, "некорректный год выпуска")
	}
	if in.Seats < 1 || in.Seats > 20 {
		return nil, apperror.New(apperror.ErrCodeValidation, "некорректное число мест")
	}

	vehicle := &models.Vehicle{
		DriverID:     driverID,
		Make:         strings.TrimSpace(in.Make),
		Model:        strings.TrimSpace(in.Model),
		Year:         in.Year,
		LicensePlate: strings.ToUpper(strings.TrimSpace(in.LicensePlate)),
		Color:        strings.TrimSpace(in.Color),
		VehicleType:  vehicleType,
		Seats:        in.Seats,
	}

	if err := s.vehicles.Create(ctx, vehicle); err != nil {
		if errors.Is(err, repository.ErrVehicleExists) {
			return nil, apperror.New(apperror.ErrCodeConflict, "автомобиль с таким госномером уже зарегистрирован")
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "не удалось зарегистрировать автомобиль")
	}
	return vehicle, nil
}

// ListVehicles возвращает автомобили водителя.
func (s *BookingService) ListVehicles(ctx context.Context, driverID uuid.UUID) ([]models.Vehicle, error) {
	vehicles, err := s.vehicles.ListByDriver(ctx, driverID)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "не удалось получить автомобили")
	}
	return vehicles, nil
}

func (s *BookingService) load(ctx context.Context, id uuid.UUID) (*models.RideBooking, error) {
	booking, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrBookingNotFound) {
			return nil, apperror.ErrBookingNotFound
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "не удалось получить поездку")
	}
	return booking, nil
}

// publishStatus уведомляет комнату поездки и пассажира. Ошибки доставки только логируются.
func (s *BookingService) publishStatus(b *models.RideBooking) {
	if s.broadcaster == nil {
		return
	}
	event := RideStatusEvent{RideID: b.ID, Status: b.Status, DriverID: b.DriverID, UpdatedAt: b.UpdatedAt}

	if err := s.broadcaster.BroadcastToRide(b.ID, ws.EventRideStatus, event); err != nil {
		logger.Log.WithError(err).WithField("booking_id", b.ID.String()).Warn("booking service: не удалось разослать статус")
	}
	if err := s.broadcaster.BroadcastToUser(b.PassengerID, ws.EventRideStatus, event); err != nil {
		logger.Log.WithError(err).WithField("booking_id", b.ID.String()).Warn("booking service: не удалось уведомить пассажира")
	}
}

func withPointType(l models.Location) models.Location {
	l.Type = "Point"
	return l
}

func isRideStatus(status string) bool {
	switch status {
	case models.RideStatusRequested, models.RideStatusAccepted, models.RideStatusDriverArrived,
		models.RideStatusInProgress, models.RideStatusCompleted, models.RideStatusCancelled:
		return true
	}
	return false
}

func isActiveRide(status string) bool {
	switch status {
	case models.RideStatusAccepted, models.RideStatusDriverArrived, models.RideStatusInProgress:
		return true
	}
	return false
}
