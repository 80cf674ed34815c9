package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"fnkit/container"
	apperrors "fnkit/errors"
	"fnkit/handler"
	"fnkit/messaging"
	"fnkit/observability"
	"fnkit/observability/types"
	"fnkit/repository"
	"fnkit/validation"
)

// Service implements the order operations.
type Service struct {
	orders    *repository.Repository[Order]
	publisher messaging.Publisher
	logger    types.Logger
	metrics   types.Metrics
	now       func() time.Time
}

// NewService creates the service over its repository and publisher.
func NewService(orders *repository.Repository[Order], publisher messaging.Publisher, provider observability.Provider) *Service {
	return &Service{
		orders:    orders,
		publisher: publisher,
		logger:    provider.Logger("orders"),
		metrics:   provider.Metrics("orders"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Registry returns a container registry exposing the service under
// ServiceName.
func Registry(svc *Service) *container.Registry {
	return container.NewRegistry().Register(ServiceName, container.Value(svc))
}

// Routes returns the terminal handler dispatching to the order operations:
// batch deliveries go to the event consumer, POST /orders creates and
// GET /orders/{id} reads.
func Routes() handler.HandlerFunc {
	create := handler.Build([]handler.Middleware{
		handler.ValidateEvent(validation.For[CreateOrderRequest]()),
	}, Create)
	consume := handler.BatchEvent(Confirm, nil)

	return func(ctx context.Context, inv *handler.Invocation) (handler.Response, error) {
		event := inv.Event
		if len(event.Records) > 0 || event.Type == "batch" {
			return consume(ctx, inv)
		}

		path := strings.Trim(event.Path, "/")
		switch {
		case event.Method == "POST" && path == "orders":
			return create(ctx, inv)
		case event.Method == "GET" && strings.HasPrefix(path, "orders/"):
			return Get(ctx, inv)
		}
		return handler.Response{}, apperrors.NotFound(fmt.Sprintf("no route for %s %s", event.Method, event.Path))
	}
}

// Create stores a new pending order and publishes order.created.
func Create(ctx context.Context, inv *handler.Invocation) (handler.Response, error) {
	svc, err := handler.Service[*Service](ctx, inv, ServiceName)
	if err != nil {
		return handler.Response{}, err
	}

	var req CreateOrderRequest
	if err := inv.Event.Unmarshal(&req); err != nil {
		return handler.Response{}, err
	}

	p, err := inv.Event.Principal()
	if err != nil {
		return handler.Response{}, err
	}

	now := svc.now()
	order := Order{
		ID:        uuid.New().String(),
		Customer:  req.Customer,
		Email:     req.Email,
		Items:     req.Items,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if p != nil {
		order.CreatedBy = p.ID
	}

	if err := svc.orders.Set(ctx, order.ID, order); err != nil {
		return handler.Response{}, apperrors.Internal("failed to store order", err)
	}

	msg := messaging.NewMessage(EventOrderCreated, OrderCreated{OrderID: order.ID})
	if err := svc.publisher.Publish(ctx, msg); err != nil {
		svc.metrics.RecordError("create_order", "publish_failed")
		return handler.Response{}, err
	}

	svc.metrics.RecordSuccess("create_order")
	svc.logger.Info(ctx, "Order created", types.Fields{
		"order_id": order.ID,
		"items":    len(order.Items),
	})
	return handler.JSON(201, order)
}

// Get returns the order named by the last path segment.
func Get(ctx context.Context, inv *handler.Invocation) (handler.Response, error) {
	svc, err := handler.Service[*Service](ctx, inv, ServiceName)
	if err != nil {
		return handler.Response{}, err
	}

	id := inv.Event.PathParameters["id"]
	if id == "" {
		id = inv.Event.Path[strings.LastIndexByte(inv.Event.Path, '/')+1:]
	}

	order, found, err := svc.orders.Get(ctx, id)
	if err != nil {
		return handler.Response{}, apperrors.Internal("failed to load order", err)
	}
	if !found {
		return handler.Response{}, apperrors.NotFound("order not found").WithData("order_id", id)
	}
	return handler.OK(order)
}

// Confirm handles one order.created record by marking the order confirmed.
// Confirming an already confirmed order is a no-op.
func Confirm(ctx context.Context, inv *handler.Invocation) (handler.Response, error) {
	svc, err := handler.Service[*Service](ctx, inv, ServiceName)
	if err != nil {
		return handler.Response{}, err
	}

	if inv.Event.Type != EventOrderCreated {
		return handler.Response{}, apperrors.Application(apperrors.CodeUnsupportedEvent,
			fmt.Sprintf("unexpected event type %q", inv.Event.Type), 400)
	}

	var data OrderCreated
	if err := inv.Event.Unmarshal(&data); err != nil {
		return handler.Response{}, err
	}
	if err := validation.Validate(data); err != nil {
		return handler.Response{}, err
	}

	order, found, err := svc.orders.Get(ctx, data.OrderID)
	if err != nil {
		return handler.Response{}, apperrors.Internal("failed to load order", err)
	}
	if !found {
		return handler.Response{}, apperrors.NotFound("order not found").WithData("order_id", data.OrderID)
	}

	if order.Status != StatusConfirmed {
		order.Status = StatusConfirmed
		order.UpdatedAt = svc.now()
		if err := svc.orders.Set(ctx, order.ID, order); err != nil {
			return handler.Response{}, apperrors.Internal("failed to store order", err)
		}
	}

	svc.logger.Debug(ctx, "Order confirmed", types.Fields{"order_id": order.ID})
	return handler.NoContent(), nil
}
