package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/rideya/rideya-backend/internal/http/handlers/common"
	"github.com/rideya/rideya-backend/internal/http/response"
	"github.com/rideya/rideya-backend/internal/models"
	"github.com/rideya/rideya-backend/internal/service"
	"github.com/rideya/rideya-backend/internal/ws"
)

// BookingHandler обслуживает поездки, координаты водителей и автомобили.
type BookingHandler struct {
	bookings *service.BookingService
}

// NewBookingHandler создаёт хэндлер поездок.
func NewBookingHandler(bookings *service.BookingService) *BookingHandler {
	return &BookingHandler{bookings: bookings}
}

// CreateBooking обрабатывает POST /api/bookings.
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.Fail(c, err)
		return
	}

	var req struct {
		PickupLocation  models.Location `json:"pickupLocation" binding:"required"`
		DropoffLocation models.Location `json:"dropoffLocation" binding:"required"`
		ScheduledTime   *time.Time      `json:"scheduledTime"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, err)
		return
	}

	booking, err := h.bookings.CreateBooking(c.Request.Context(), userID, service.CreateBookingInput{
		Pickup:        req.PickupLocation,
		Dropoff:       req.DropoffLocation,
		ScheduledTime: req.ScheduledTime,
	})
	if err != nil {
		common.Fail(c, err)
		return
	}

	response.Created(c, booking)
}

// GetBooking обрабатывает GET /api/bookings/:id.
func (h *BookingHandler) GetBooking(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.Fail(c, err)
		return
	}
	id, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.Fail(c, err)
		return
	}

	booking, err := h.bookings.GetBooking(c.Request.Context(), id, userID, common.CurrentUserRole(c))
	if err != nil {
		common.Fail(c, err)
		return
	}

	response.Success(c, booking)
}

// ListBookings обрабатывает GET /api/bookings?status=&limit=&offset=.
func (h *BookingHandler) ListBookings(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.Fail(c, err)
		return
	}

	limit, offset := common.Pagination(c)
	items, total, err := h.bookings.ListBookings(c.Request.Context(), userID, c.Query("status"), limit, offset)
	if err != nil {
		common.Fail(c, err)
		return
	}

	response.Paginated(c, items, total, limit, offset)
}

// AcceptBooking обрабатывает POST /api/bookings/:id/accept.
func (h *BookingHandler) AcceptBooking(c *gin.Context) {
	driverID, err := common.CurrentUserID(c)
	if err != nil {
		common.Fail(c, err)
		return
	}
	id, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.Fail(c, err)
		return
	}

	booking, err := h.bookings.AcceptBooking(c.Request.Context(), id, driverID)
	if err != nil {
		common.Fail(c, err)
		return
	}

	response.Success(c, booking)
}

// UpdateStatus обрабатывает POST /api/bookings/:id/status.
func (h *BookingHandler) UpdateStatus(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.Fail(c, err)
		return
	}
	id, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.Fail(c, err)
		return
	}

	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, err)
		return
	}

	booking, err := h.bookings.UpdateStatus(c.Request.Context(), id, userID, common.CurrentUserRole(c), req.Status)
	if err != nil {
		common.Fail(c, err)
		return
	}

	response.Success(c, booking)
}

// DriverLocation обрабатывает POST /api/drivers/location.
func (h *BookingHandler) DriverLocation(c *gin.Context) {
	driverID, err := common.CurrentUserID(c)
	if err != nil {
		common.Fail(c, err)
		return
	}

	var req struct {
		RideID  uuid.UUID `json:"rideId" binding:"required"`
		Lng     *float64  `json:"lng" binding:"required"`
		Lat     *float64  `json:"lat" binding:"required"`
		Heading *float64  `json:"heading"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, err)
		return
	}

	err = h.bookings.DriverLocation(c.Request.Context(), driverID, ws.DriverLocation{
		RideID:  req.RideID,
		Lng:     *req.Lng,
		Lat:     *req.Lat,
		Heading: req.Heading,
	})
	if err != nil {
		common.Fail(c, err)
		return
	}

	response.SuccessMessage(c, "координаты обновлены", nil)
}

// RegisterVehicle обрабатывает POST /api/drivers/vehicles.
func (h *BookingHandler) RegisterVehicle(c *gin.Context) {
	driverID, err := common.CurrentUserID(c)
	if err != nil {
		common.Fail(c, err)
		return
	}

	var req struct {
		Make         string `json:"make" binding:"required"`
		Model        string `json:"model" binding:"required"`
		Year         int    `json:"year" binding:"required"`
		LicensePlate string `json:"licensePlate" binding:"required"`
		Color        string `json:"color"`
		VehicleType  string `json:"vehicleType" binding:"required"`
		Seats        int    `json:"seats"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, err)
		return
	}

	vehicle, err := h.bookings.RegisterVehicle(c.Request.Context(), driverID, service.RegisterVehicleInput{
		Make:         req.Make,
		Model:        req.Model,
		Year:         req.Year,
		LicensePlate: req.LicensePlate,
		Color:        req.Color,
		VehicleType:  req.VehicleType,
		Seats:        req.Seats,
	})
	if err != nil {
		common.Fail(c, err)
		return
	}

	response.Created(c, vehicle)
}

// ListVehicles обрабатывает GET /api/drivers/vehicles.
func (h *BookingHandler) ListVehicles(c *gin.Context) {
	driverID, err := common.CurrentUserID(c)
	if err != nil {
		common.Fail(c, err)
		return
	}

	vehicles, err := h.bookings.ListVehicles(c.Request.Context(), driverID)
	if err != nil {
		common.Fail(c, err)
		return
	}

	response.Success(c, vehicles)
}
