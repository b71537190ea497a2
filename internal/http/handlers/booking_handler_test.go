package handlers

import (
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/rideya/rideya-backend/internal/models"
)

func TestBookingHandler_CreateBooking_Unauthorized(t *testing.T) {
	r := newTestEngine()
	handler := &BookingHandler{bookings: nil}
	r.POST("/bookings", handler.CreateBooking)

	w, resp := performJSON(t, r, http.MethodPost, "/bookings", map[string]interface{}{})

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHORIZED", code(resp))
}

func TestBookingHandler_GetBooking_InvalidID(t *testing.T) {
	r := newTestEngine()
	handler := &BookingHandler{bookings: nil}
	r.GET("/bookings/:id", asUser(uuid.New(), models.RolePassenger), handler.GetBooking)

	w, resp := performJSON(t, r, http.MethodGet, "/bookings/invalid-uuid", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", code(resp))
}

func TestBookingHandler_UpdateStatus_RequiresStatus(t *testing.T) {
	r := newTestEngine()
	handler := &BookingHandler{bookings: nil}
	r.POST("/bookings/:id/status", asUser(uuid.New(), models.RoleDriver), handler.UpdateStatus)

	w, resp := performJSON(t, r, http.MethodPost, "/bookings/"+uuid.NewString()+"/status", map[string]string{})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", code(resp))
}

func TestBookingHandler_DriverLocation_MissingCoordinates(t *testing.T) {
	r := newTestEngine()
	handler := &BookingHandler{bookings: nil}
	r.POST("/drivers/location", asUser(uuid.New(), models.RoleDriver), handler.DriverLocation)

	w, resp := performJSON(t, r, http.MethodPost, "/drivers/location", map[string]interface{}{
		"rideId": uuid.NewString(),
		"lng":    30.3,
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", code(resp))
}

func TestBookingHandler_RegisterVehicle_MalformedJSON(t *testing.T) {
	r := newTestEngine()
	handler := &BookingHandler{bookings: nil}
	r.POST("/drivers/vehicles", asUser(uuid.New(), models.RoleDriver), handler.RegisterVehicle)

	w, resp := performJSON(t, r, http.MethodPost, "/drivers/vehicles", "not an object")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", code(resp))
}
