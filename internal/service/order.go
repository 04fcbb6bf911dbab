package service

import (
	"context"
	nethttp "net/http"

	"OrderSaga/internal/biz"
	"OrderSaga/internal/data"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/transport/http"
)

// Operation names reported to middleware.
const (
	OperationCreateOrder     = "/ordersaga.Order/CreateOrder"
	OperationGetOrder        = "/ordersaga.Order/GetOrder"
	OperationListTransitions = "/ordersaga.Order/ListTransitions"
	OperationCancelOrder     = "/ordersaga.Order/CancelOrder"
)

// orderUsecase is the part of biz.SagaUsecase the HTTP layer needs.
type orderUsecase interface {
	CreateOrder(ctx context.Context, req *biz.CreateOrderRequest) (*biz.SagaResult, error)
	GetOrder(ctx context.Context, orderID string) (*data.Order, error)
	ListTransitions(ctx context.Context, orderID string) ([]*data.Transition, error)
	CancelOrder(ctx context.Context, orderID, reason string) (*data.Order, error)
}

// CreateOrderReply is the body of a deferred order creation.
type CreateOrderReply struct {
	Order *data.Order `json:"order"`
	Note  string      `json:"note,omitempty"`
}

// ListTransitionsReply wraps an order's saga steps.
type ListTransitionsReply struct {
	Transitions []*data.Transition `json:"transitions"`
}

// CancelOrderRequest is the optional cancel body.
type CancelOrderRequest struct {
	Reason string `json:"reason"`
}

// CancelOrderReply confirms a cancellation.
type CancelOrderReply struct {
	Message string      `json:"message"`
	Order   *data.Order `json:"order"`
}

// OrderService exposes the order saga over HTTP.
type OrderService struct {
	uc     orderUsecase
	logger *log.Helper
}

// NewOrderService creates a new OrderService instance.
func NewOrderService(uc *biz.SagaUsecase, logger log.Logger) *OrderService {
	return &OrderService{
		uc:     uc,
		logger: log.NewHelper(logger),
	}
}

// CreateOrder runs the saga. Completed orders are returned as-is; deferred
// ones carry a note.
func (s *OrderService) CreateOrder(ctx context.Context, req *biz.CreateOrderRequest) (*biz.SagaResult, error) {
	s.logger.Infow("msg", "CreateOrder called", "customer_id", req.CustomerID, "items", len(req.Items))

	res, err := s.uc.CreateOrder(ctx, req)
	if err != nil {
		s.logger.Warnw("msg", "order saga did not complete", "customer_id", req.CustomerID, "error", err)
		return nil, err
	}
	return res, nil
}

// GetOrder retrieves an order by ID.
func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*data.Order, error) {
	s.logger.Debugw("msg", "GetOrder called", "order_id", orderID)
	return s.uc.GetOrder(ctx, orderID)
}

// ListTransitions returns the saga transitions of an order.
func (s *OrderService) ListTransitions(ctx context.Context, orderID string) (*ListTransitionsReply, error) {
	s.logger.Debugw("msg", "ListTransitions called", "order_id", orderID)

	rows, err := s.uc.ListTransitions(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []*data.Transition{}
	}
	return &ListTransitionsReply{Transitions: rows}, nil
}

// CancelOrder cancels an order that has not been paid yet.
func (s *OrderService) CancelOrder(ctx context.Context, orderID string, req *CancelOrderRequest) (*CancelOrderReply, error) {
	s.logger.Infow("msg", "CancelOrder called", "order_id", orderID, "reason", req.Reason)

	order, err := s.uc.CancelOrder(ctx, orderID, req.Reason)
	if err != nil {
		s.logger.Warnw("msg", "failed to cancel order", "order_id", orderID, "error", err)
		return nil, err
	}
	return &CancelOrderReply{Message: "Order cancelled", Order: order}, nil
}

// RegisterOrderHTTPServer mounts the order routes on srv.
func RegisterOrderHTTPServer(srv *http.Server, s *OrderService) {
	r := srv.Route("/")
	r.POST("/api/orders", _Order_CreateOrder_HTTP_Handler(s))
	r.GET("/api/orders/{id}", _Order_GetOrder_HTTP_Handler(s))
	r.GET("/api/orders/{id}/transitions", _Order_ListTransitions_HTTP_Handler(s))
	r.POST("/api/orders/{id}/cancel", _Order_CancelOrder_HTTP_Handler(s))
}

func _Order_CreateOrder_HTTP_Handler(s *OrderService) func(ctx http.Context) error {
	return func(ctx http.Context) error {
		var in biz.CreateOrderRequest
		if err := ctx.Bind(&in); err != nil {
			return biz.ErrValidationRejected("customerId and items are required")
		}
		http.SetOperation(ctx, OperationCreateOrder)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return s.CreateOrder(ctx, req.(*biz.CreateOrderRequest))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}

		res := out.(*biz.SagaResult)
		if res.Outcome == biz.OutcomeDeferred {
			return ctx.JSON(nethttp.StatusAccepted, &CreateOrderReply{Order: res.Order, Note: res.Note})
		}
		return ctx.JSON(nethttp.StatusCreated, res.Order)
	}
}

func _Order_GetOrder_HTTP_Handler(s *OrderService) func(ctx http.Context) error {
	return func(ctx http.Context) error {
		id := ctx.Vars().Get("id")
		http.SetOperation(ctx, OperationGetOrder)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return s.GetOrder(ctx, req.(string))
		})
		out, err := h(ctx, id)
		if err != nil {
			return err
		}
		return ctx.JSON(nethttp.StatusOK, out)
	}
}

func _Order_ListTransitions_HTTP_Handler(s *OrderService) func(ctx http.Context) error {
	return func(ctx http.Context) error {
		id := ctx.Vars().Get("id")
		http.SetOperation(ctx, OperationListTransitions)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return s.ListTransitions(ctx, req.(string))
		})
		out, err := h(ctx, id)
		if err != nil {
			return err
		}
		return ctx.JSON(nethttp.StatusOK, out)
	}
}

func _Order_CancelOrder_HTTP_Handler(s *OrderService) func(ctx http.Context) error {
	return func(ctx http.Context) error {
		id := ctx.Vars().Get("id")
		var in CancelOrderRequest
		// the body is optional
		if ctx.Request().ContentLength != 0 {
			if err := ctx.Bind(&in); err != nil {
				return biz.ErrValidationRejected("invalid cancel request")
			}
		}
		http.SetOperation(ctx, OperationCancelOrder)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return s.CancelOrder(ctx, id, req.(*CancelOrderRequest))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		return ctx.JSON(nethttp.StatusOK, out)
	}
}
