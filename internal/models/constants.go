package models

// Роли пользователей
const (
	RoleSuperAdmin  = "SUPER_ADMIN"
	RoleClientAdmin = "CLIENT_ADMIN"
	RoleDriver      = "DRIVER"
	RolePassenger   = "PASSENGER"
	RoleTourist     = "TOURIST"
)

// ValidRoles список допустимых ролей
var ValidRoles = map[string]struct{}{
	RoleSuperAdmin:  {},
	RoleClientAdmin: {},
	RoleDriver:      {},
	RolePassenger:   {},
	RoleTourist:     {},
}

// SelfAssignableRoles роли, которые можно указать при регистрации
var SelfAssignableRoles = map[string]struct{}{
	RoleDriver:    {},
	RolePassenger: {},
	RoleTourist:   {},
}

// IsAdminRole сообщает, относится ли роль к администраторам.
func IsAdminRole(role string) bool {
	return role == RoleSuperAdmin || role == RoleClientAdmin
}

// Статусы поездки
const (
	RideStatusRequested     = "REQUESTED"
	RideStatusAccepted      = "ACCEPTED"
	RideStatusDriverArrived = "DRIVER_ARRIVED"
	RideStatusInProgress    = "IN_PROGRESS"
	RideStatusCompleted     = "COMPLETED"
	RideStatusCancelled     = "CANCELLED"
)

// RideTransitions допустимые переходы статусов поездки
var RideTransitions = map[string][]string{
	RideStatusRequested:     {RideStatusAccepted, RideStatusCancelled},
	RideStatusAccepted:      {RideStatusDriverArrived, RideStatusCancelled},
	RideStatusDriverArrived: {RideStatusInProgress, RideStatusCancelled},
	RideStatusInProgress:    {RideStatusCompleted},
}

// CanTransition проверяет, разрешён ли переход из from в to.
func CanTransition(from, to string) bool {
	for _, next := range RideTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Типы транспорта
const (
	VehicleTypeSedan = "SEDAN"
	VehicleTypeSUV   = "SUV"
	VehicleTypeVan   = "VAN"
	VehicleTypeBike  = "BIKE"
)

// Способы оплаты
const (
	PaymentMethodCard   = "CARD"
	PaymentMethodCash   = "CASH"
	PaymentMethodWallet = "WALLET"
)

// Статусы платежа
const (
	PaymentStatusPending    = "PENDING"
	PaymentStatusProcessing = "PROCESSING"
	PaymentStatusCompleted  = "COMPLETED"
	PaymentStatusFailed     = "FAILED"
	PaymentStatusRefunded   = "REFUNDED"
)

// Типы уведомлений
const (
	NotificationTypeEmail = "EMAIL"
	NotificationTypeSMS   = "SMS"
	NotificationTypePush  = "PUSH"
)
