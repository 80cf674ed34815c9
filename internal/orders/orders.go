// Package orders is the sample service wired into the example binaries. It
// stores orders in a repository, publishes an event for every new order and
// confirms orders when those events come back through a queue.
package orders

import (
	_ "embed"
	"time"

	"fnkit/schema"
)

// OpenAPIDocument describes the HTTP routes of the service.
//
//go:embed openapi.yaml
var OpenAPIDocument []byte

// Event types published and consumed by the service.
const (
	EventOrderCreated = "order.created"

	// ServiceName is the container name of *Service.
	ServiceName = "orders"
)

// Order status values.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
)

// CreateOrderRequest is the body of POST /orders.
type CreateOrderRequest struct {
	Customer string `json:"customer" validate:"required" jsonschema:"minLength=1"`
	Email    string `json:"email" validate:"required,email" jsonschema:"format=email"`
	Items    []Item `json:"items" validate:"required,min=1,dive" jsonschema:"minItems=1"`
}

// Item is one order line.
type Item struct {
	SKU      string `json:"sku" validate:"required"`
	Quantity int    `json:"quantity" validate:"gte=1,lte=100" jsonschema:"minimum=1,maximum=100"`
}

// Order is the stored order.
type Order struct {
	ID        string    `json:"id"`
	Customer  string    `json:"customer"`
	Email     string    `json:"email"`
	Items     []Item    `json:"items"`
	Status    string    `json:"status"`
	CreatedBy string    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OrderCreated is the data of an order.created event.
type OrderCreated struct {
	OrderID string `json:"order_id" validate:"required"`
}

func init() {
	schema.Register[CreateOrderRequest]("createOrder")
	schema.Register[OrderCreated](EventOrderCreated)
}
