package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rideya/rideya-backend/internal/models"
	"github.com/rideya/rideya-backend/internal/pkg/apperror"
	"github.com/rideya/rideya-backend/internal/repository"
	"github.com/rideya/rideya-backend/internal/ws"
)

type mockBookingRepository struct {
	mu       sync.Mutex
	bookings map[uuid.UUID]*models.RideBooking
}

func newMockBookingRepository() *mockBookingRepository {
	return &mockBookingRepository{bookings: make(map[uuid.UUID]*models.RideBooking)}
}

func (m *mockBookingRepository) Create(ctx context.Context, b *models.RideBooking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b.ID = uuid.New()
	b.CreatedAt = time.Now()
	b.UpdatedAt = b.CreatedAt
	cp := *b
	m.bookings[b.ID] = &cp
	return nil
}

func (m *mockBookingRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.RideBooking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil, repository.ErrBookingNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *mockBookingRepository) ListByUser(ctx context.Context, userID uuid.UUID, status string, limit, offset int) ([]models.RideBooking, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.RideBooking
	for _, b := range m.bookings {
		if b.IsParticipant(userID) && (status == "" || b.Status == status) {
			out = append(out, *b)
		}
	}
	total := len(out)
	if offset >= len(out) {
		return []models.RideBooking{}, total, nil
	}
	end := offset + limit
	if end > len(out) {
		end = len(out)
	}
	return out[offset:end], total, nil
}

func (m *mockBookingRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to string) (*models.RideBooking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok || b.Status != from {
		return nil, repository.ErrBookingStatusChanged
	}
	b.Status = to
	b.UpdatedAt = time.Now()
	cp := *b
	return &cp, nil
}

func (m *mockBookingRepository) AssignDriver(ctx context.Context, id, driverID uuid.UUID) (*models.RideBooking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok || b.Status != models.RideStatusRequested || b.DriverID != nil {
		return nil, repository.ErrBookingStatusChanged
	}
	b.DriverID = &driverID
	b.Status = models.RideStatusAccepted
	cp := *b
	return &cp, nil
}

type mockVehicleRepository struct {
	mu       sync.Mutex
	vehicles []models.Vehicle
}

func (m *mockVehicleRepository) Create(ctx context.Context, v *models.Vehicle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.vehicles {
		if existing.LicensePlate == v.LicensePlate {
			return repository.ErrVehicleExists
		}
	}
	v.ID = uuid.New()
	v.IsActive = true
	m.vehicles = append(m.vehicles, *v)
	return nil
}

func (m *mockVehicleRepository) ListByDriver(ctx context.Context, driverID uuid.UUID) ([]models.Vehicle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Vehicle
	for _, v := range m.vehicles {
		if v.DriverID == driverID {
			out = append(out, v)
		}
	}
	return out, nil
}

type broadcastRecord struct {
	rideID uuid.UUID
	userID uuid.UUID
	event  string
	data   any
}

type recordingBroadcaster struct {
	mu      sync.Mutex
	records []broadcastRecord
}

func (r *recordingBroadcaster) BroadcastToRide(rideID uuid.UUID, event string, data any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, broadcastRecord{rideID: rideID, event: event, data: data})
	return nil
}

func (r *recordingBroadcaster) BroadcastToUser(userID uuid.UUID, event string, data any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, broadcastRecord{userID: userID, event: event, data: data})
	return nil
}

func (r *recordingBroadcaster) events(event string) []broadcastRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []broadcastRecord
	for _, rec := range r.records {
		if rec.event == event {
			out = append(out, rec)
		}
	}
	return out
}

func newTestBookingService() (*BookingService, *recordingBroadcaster) {
	b := &recordingBroadcaster{}
	svc := NewBookingService(newMockBookingRepository(), &mockVehicleRepository{}, NewFareCalculator(testFareConfig()), b)
	return svc, b
}

func createTestBooking(t *testing.T, svc *BookingService, passengerID uuid.UUID) *models.RideBooking {
	t.Helper()
	booking, err := svc.CreateBooking(context.Background(), passengerID, CreateBookingInput{
		Pickup:  point(37.6173, 55.7558),
		Dropoff: point(37.6400, 55.7600),
	})
	require.NoError(t, err)
	return booking
}

func TestBookingService_CreateBooking(t *testing.T) {
	svc, _ := newTestBookingService()
	passengerID := uuid.New()

	booking := createTestBooking(t, svc, passengerID)
	assert.Equal(t, models.RideStatusRequested, booking.Status)
	assert.Equal(t, passengerID, booking.PassengerID)
	assert.Equal(t, "Point", booking.PickupLocation.Type)
	assert.Greater(t, booking.Fare.TotalFare, 0.0)
	assert.Nil(t, booking.DriverID)
}

func TestBookingService_CreateBookingValidation(t *testing.T) {
	svc, _ := newTestBookingService()

	_, err := svc.CreateBooking(context.Background(), uuid.New(), CreateBookingInput{
		Pickup:  point(200, 0),
		Dropoff: point(0, 0),
	})
	assert.Equal(t, apperror.ErrCodeValidation, apperror.CodeOf(err))

	past := time.Now().Add(-time.Hour)
	_, err = svc.CreateBooking(context.Background(), uuid.New(), CreateBookingInput{
		Pickup:        point(0, 0),
		Dropoff:       point(0, 1),
		ScheduledTime: &past,
	})
	assert.Equal(t, apperror.ErrCodeValidation, apperror.CodeOf(err))
}

func TestBookingService_GetBookingAccess(t *testing.T) {
	svc, _ := newTestBookingService()
	passengerID := uuid.New()
	booking := createTestBooking(t, svc, passengerID)
	ctx := context.Background()

	_, err := svc.GetBooking(ctx, booking.ID, passengerID, models.RolePassenger)
	assert.NoError(t, err)

	_, err = svc.GetBooking(ctx, booking.ID, uuid.New(), models.RolePassenger)
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	_, err = svc.GetBooking(ctx, booking.ID, uuid.New(), models.RoleSuperAdmin)
	assert.NoError(t, err)

	_, err = svc.GetBooking(ctx, uuid.New(), passengerID, models.RolePassenger)
	assert.Equal(t, apperror.ErrCodeNotFound, apperror.CodeOf(err))
}

func TestBookingService_FullRideLifecycle(t *testing.T) {
	svc, broadcaster := newTestBookingService()
	ctx := context.Background()
	passengerID, driverID := uuid.New(), uuid.New()
	booking := createTestBooking(t, svc, passengerID)

	accepted, err := svc.AcceptBooking(ctx, booking.ID, driverID)
	require.NoError(t, err)
	assert.Equal(t, models.RideStatusAccepted, accepted.Status)
	require.NotNil(t, accepted.DriverID)
	assert.Equal(t, driverID, *accepted.DriverID)

	for _, status := range []string{models.RideStatusDriverArrived, models.RideStatusInProgress, models.RideStatusCompleted} {
		updated, err := svc.UpdateStatus(ctx, booking.ID, driverID, models.RoleDriver, status)
		require.NoError(t, err)
		assert.Equal(t, status, updated.Status)
	}

	// Каждое изменение уходит в комнату поездки и пассажиру.
	assert.Len(t, broadcaster.events(ws.EventRideStatus), 8)

	_, err = svc.UpdateStatus(ctx, booking.ID, driverID, models.RoleDriver, models.RideStatusCancelled)
	assert.ErrorIs(t, err, apperror.ErrInvalidTransition)
}

func TestBookingService_InvalidTransitions(t *testing.T) {
	svc, _ := newTestBookingService()
	ctx := context.Background()
	passengerID, driverID := uuid.New(), uuid.New()
	booking := createTestBooking(t, svc, passengerID)

	_, err := svc.UpdateStatus(ctx, booking.ID, passengerID, models.RolePassenger, models.RideStatusCompleted)
	assert.ErrorIs(t, err, apperror.ErrForbidden, "пассажир не завершает поездку")

	_, err = svc.UpdateStatus(ctx, booking.ID, uuid.New(), models.RoleSuperAdmin, models.RideStatusInProgress)
	assert.ErrorIs(t, err, apperror.ErrInvalidTransition)

	_, err = svc.UpdateStatus(ctx, booking.ID, passengerID, models.RolePassenger, "FLYING")
	assert.Equal(t, apperror.ErrCodeValidation, apperror.CodeOf(err))

	_, err = svc.AcceptBooking(ctx, booking.ID, driverID)
	require.NoError(t, err)
	_, err = svc.AcceptBooking(ctx, booking.ID, uuid.New())
	assert.ErrorIs(t, err, apperror.ErrInvalidTransition, "второй водитель не может принять поездку")
}

func TestBookingService_PassengerCancels(t *testing.T) {
	svc, _ := newTestBookingService()
	ctx := context.Background()
	passengerID := uuid.New()
	booking := createTestBooking(t, svc, passengerID)

	updated, err := svc.UpdateStatus(ctx, booking.ID, passengerID, models.RolePassenger, "cancelled")
	require.NoError(t, err)
	assert.Equal(t, models.RideStatusCancelled, updated.Status)

	_, err = svc.AcceptBooking(ctx, booking.ID, uuid.New())
	assert.ErrorIs(t, err, apperror.ErrInvalidTransition)
}

func TestBookingService_ListBookings(t *testing.T) {
	svc, _ := newTestBookingService()
	passengerID := uuid.New()
	for i := 0; i < 3; i++ {
		createTestBooking(t, svc, passengerID)
	}
	createTestBooking(t, svc, uuid.New())

	items, total, err := svc.ListBookings(context.Background(), passengerID, "", 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, items, 2)

	_, _, err = svc.ListBookings(context.Background(), passengerID, "unknown", 10, 0)
	assert.Equal(t, apperror.ErrCodeValidation, apperror.CodeOf(err))
}

func TestBookingService_DriverLocation(t *testing.T) {
	svc, broadcaster := newTestBookingService()
	ctx := context.Background()
	passengerID, driverID := uuid.New(), uuid.New()
	booking := createTestBooking(t, svc, passengerID)

	loc := ws.DriverLocation{RideID: booking.ID, Lng: 37.62, Lat: 55.75}

	assert.Error(t, svc.DriverLocation(ctx, driverID, loc), "водитель ещё не назначен")

	_, err := svc.AcceptBooking(ctx, booking.ID, driverID)
	require.NoError(t, err)

	require.NoError(t, svc.DriverLocation(ctx, driverID, loc))
	updates := broadcaster.events(ws.EventDriverLocationUpdate)
	require.Len(t, updates, 1)
	assert.Equal(t, booking.ID, updates[0].rideID)
	event := updates[0].data.(DriverLocationEvent)
	assert.Equal(t, 37.62, event.Location.Lng())

	assert.ErrorIs(t, svc.DriverLocation(ctx, uuid.New(), loc), apperror.ErrForbidden)

	loc.Lat = 120
	assert.Equal(t, apperror.ErrCodeValidation, apperror.CodeOf(svc.DriverLocation(ctx, driverID, loc)))
}

func TestBookingService_JoinRide(t *testing.T) {
	svc, _ := newTestBookingService()
	passengerID := uuid.New()
	booking := createTestBooking(t, svc, passengerID)

	assert.NoError(t, svc.JoinRide(context.Background(), passengerID, booking.ID))
	assert.ErrorIs(t, svc.JoinRide(context.Background(), uuid.New(), booking.ID), apperror.ErrForbidden)
}

func TestBookingService_Vehicles(t *testing.T) {
	svc, _ := newTestBookingService()
	ctx := context.Background()
	driverID := uuid.New()
	in := RegisterVehicleInput{
		Make: "Toyota", Model: "Camry", Year: 2020, LicensePlate: "a123bc", Color: "white",
		VehicleType: "sedan", Seats: 4,
	}

	v, err := svc.RegisterVehicle(ctx, driverID, in)
	require.NoError(t, err)
	assert.Equal(t, "A123BC", v.LicensePlate)
	assert.Equal(t, models.VehicleTypeSedan, v.VehicleType)

	_, err = svc.RegisterVehicle(ctx, driverID, in)
	assert.Equal(t, apperror.ErrCodeConflict, apperror.CodeOf(err))

	in.LicensePlate = "B555OP"
	in.VehicleType = "rocket"
	_, err = svc.RegisterVehicle(ctx, driverID, in)
	assert.Equal(t, apperror.ErrCodeValidation, apperror.CodeOf(err))

	list, err := svc.ListVehicles(ctx, driverID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
