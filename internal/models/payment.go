package models

import (
	"time"

	"github.com/google/uuid"
)

// PaymentTransaction платёж за поездку, привязанный к PaymentIntent в Stripe.
type PaymentTransaction struct {
	ID                    uuid.UUID  `db:"id" json:"id"`
	BookingID             *uuid.UUID `db:"booking_id" json:"bookingId,omitempty"`
	PassengerID           uuid.UUID  `db:"passenger_id" json:"passengerId"`
	DriverID              *uuid.UUID `db:"driver_id" json:"driverId,omitempty"`
	Amount                float64    `db:"amount" json:"amount"`
	Currency              string     `db:"currency" json:"currency"`
	Method                string     `db:"method" json:"method"`
	Status                string     `db:"status" json:"status"`
	StripePaymentIntentID *string    `db:"stripe_payment_intent_id" json:"stripePaymentIntentId,omitempty"`
	CreatedAt             time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt             time.Time  `db:"updated_at" json:"updatedAt"`
}

// RevenueSharing распределение суммы поездки между платформой, водителем и партнёром.
type RevenueSharing struct {
	TotalAmount      float64 `json:"totalAmount"`
	PlatformFee      float64 `json:"platformFee"`
	DriverEarnings   float64 `json:"driverEarnings"`
	ClientCommission float64 `json:"clientCommission"`
}
