package domain

type OrderStatus byte

const (
	OrderStatusCreated OrderStatus = iota
	OrderStatusVerified
	OrderStatusCompleted
)

func (s OrderStatus) String() string {
	switch s {
	case OrderStatusCreated:
		return "created"
	case OrderStatusVerified:
		return "verified"
	case OrderStatusCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Order is a landing-page request left by a user.
type Order struct {
	ID     int    `json:"id"`
	UserID int    `json:"userId"`
	Note   string `json:"extraInformation"`
	// The orders server emits this field as "Status"; decoding is case-insensitive.
	Status OrderStatus `json:"status"`
}

type CreateOrderRequest struct {
	Note string `json:"extraInformation"`
}
