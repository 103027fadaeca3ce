package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/vaidashi/trust-trace-api/internal/models"
	"github.com/vaidashi/trust-trace-api/internal/service"
	apperrors "github.com/vaidashi/trust-trace-api/pkg/errors"
)

type createOrderRequest struct {
	GoodID               string         `json:"good_id"`
	Quantity             int            `json:"quantity"`
	ShippingAddress      models.Address `json:"shipping_address"`
	ExpectedDeliveryDate *time.Time     `json:"expected_delivery_date,omitempty"`
}

type updateStatusRequest struct {
	Status models.OrderStatus `json:"status"`
}

// createOrderHandler places an order for the caller
func (s *Server) createOrderHandler(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r.Context())

	var req createOrderRequest
	if err := s.decode(r, &req); err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	order, err := s.deps.Orders.CreateOrder(r.Context(), actor, service.CreateOrderInput{
		GoodID:               req.GoodID,
		Quantity:             req.Quantity,
		ShippingAddress:      req.ShippingAddress,
		ExpectedDeliveryDate: req.ExpectedDeliveryDate,
	})
	if err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusCreated, ApiResponse{Success: true, Data: order})
}

// getOrdersHandler lists the orders the caller takes part in
func (s *Server) getOrdersHandler(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r.Context())
	q := r.URL.Query()

	limit, err := intParam(q.Get("limit"))
	if err != nil {
		s.respondWithAppError(w, r, err)
		return
	}
	offset, err := intParam(q.Get("offset"))
	if err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	orders, err := s.deps.Orders.ListOrders(r.Context(), actor, models.OrderStatus(q.Get("status")), limit, offset)
	if err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	if orders == nil {
		orders = []*models.Order{}
	}
	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: orders})
}

// getOrderByIDHandler returns an order to one of its parties
func (s *Server) getOrderByIDHandler(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r.Context())

	order, err := s.deps.Orders.GetOrder(r.Context(), actor, mux.Vars(r)["id"])
	if err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: order})
}

// updateOrderStatusHandler moves an order along the status graph
func (s *Server) updateOrderStatusHandler(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r.Context())

	var req updateStatusRequest
	if err := s.decode(r, &req); err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	order, err := s.deps.Orders.Transition(r.Context(), mux.Vars(r)["id"], actor, req.Status)
	if err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: order})
}

func intParam(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}

	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperrors.NewInvalidInputError("Pagination parameters must be non-negative integers")
	}
	return n, nil
}
