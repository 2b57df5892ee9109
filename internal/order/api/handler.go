package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"dryclean/internal/auth"
	"dryclean/internal/errs"
	"dryclean/internal/models"
	"dryclean/internal/order"
	"dryclean/internal/utils"
)

type Handler struct {
	Orders *order.OrderService
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/orders", h.CreateOrder)
	r.Get("/orders", h.ListOrders)
	r.Get("/orders/{orderId}", h.GetOrder)
	r.Post("/orders/{orderId}/cancel", h.CancelOrder)
	r.Post("/orders/{orderId}/items", h.AddItem)
	r.Delete("/orders/{orderId}/items/{itemId}", h.RemoveItem)
	r.Get("/orders/track/{orderNumber}", h.TrackOrder)
	r.Get("/orders/stats", h.Stats)
	r.Get("/orders/{orderId}/handoff-qr", h.HandoffQR)
}

// RegisterStaffRoutes mounts lifecycle endpoints; callers wrap them in the
// staff-only middleware.
func (h *Handler) RegisterStaffRoutes(r chi.Router) {
	r.Put("/orders/{orderId}/status", h.UpdateStatus)
	r.Post("/orders/{orderId}/recompute-totals", h.RecomputeTotals)
	r.Post("/orders/{orderId}/pickup/assign", h.AssignPickupAgent)
	r.Post("/orders/{orderId}/pickup/complete", h.CompletePickup)
	r.Post("/orders/{orderId}/delivery/assign", h.AssignDeliveryAgent)
	r.Post("/orders/{orderId}/delivery/complete", h.CompleteDelivery)
}

func writeJSON(w http.ResponseWriter, status int, body utils.APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, message string, err error) {
	writeJSON(w, errs.HTTPStatus(err), utils.ErrorResponse(message, err.Error()))
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req models.CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.Orders.PlaceOrder(r.Context(), auth.UserID(r.Context()), req)
	if err != nil {
		writeError(w, "Could not place order", err)
		return
	}
	writeJSON(w, http.StatusCreated, utils.SuccessResponse("Order placed", result))
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	result, err := h.Orders.GetOrder(r.Context(), chi.URLParam(r, "orderId"))
	if err != nil {
		writeError(w, "Order not found", err)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("Order retrieved", result))
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := models.OrderFilter{
		Status:        models.OrderStatus(query.Get("status")),
		OrderType:     models.OrderType(query.Get("order_type")),
		PaymentStatus: models.OrderPaymentStatus(query.Get("payment_status")),
		DateFrom:      query.Get("date_from"),
		DateTo:        query.Get("date_to"),
	}
	if limit, err := strconv.Atoi(query.Get("limit")); err == nil {
		filter.Limit = limit
	}
	if offset, err := strconv.Atoi(query.Get("offset")); err == nil {
		filter.Offset = offset
	}

	// Customers see their own orders; staff can query any customer.
	if auth.Role(r.Context()) == auth.RoleStaff {
		filter.CustomerID = query.Get("customer_id")
	} else {
		filter.CustomerID = auth.UserID(r.Context())
	}

	orders, err := h.Orders.ListOrders(r.Context(), filter)
	if err != nil {
		writeError(w, "Could not list orders", err)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("Orders retrieved", orders))
}

func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateOrderStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.Orders.UpdateStatus(r.Context(), chi.URLParam(r, "orderId"), req, auth.UserID(r.Context()))
	if err != nil {
		writeError(w, "Could not update order status", err)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("Order status updated", result))
}

func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	// Body is optional for cancellation.
	_ = json.NewDecoder(r.Body).Decode(&req)

	result, err := h.Orders.CancelOrder(r.Context(), chi.URLParam(r, "orderId"), req.Reason, auth.UserID(r.Context()))
	if err != nil {
		writeError(w, "Could not cancel order", err)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("Order cancelled", result))
}

func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	var item models.EstimateItem
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.Orders.AddItem(r.Context(), chi.URLParam(r, "orderId"), item)
	if err != nil {
		writeError(w, "Could not add item", err)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("Item added", result))
}

func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	result, err := h.Orders.RemoveItem(r.Context(), chi.URLParam(r, "orderId"), chi.URLParam(r, "itemId"))
	if err != nil {
		writeError(w, "Could not remove item", err)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("Item removed", result))
}

func (h *Handler) RecomputeTotals(w http.ResponseWriter, r *http.Request) {
	result, err := h.Orders.RecomputeTotals(r.Context(), chi.URLParam(r, "orderId"))
	if err != nil {
		writeError(w, "Could not recompute totals", err)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("Totals recomputed", result))
}

func (h *Handler) TrackOrder(w http.ResponseWriter, r *http.Request) {
	result, err := h.Orders.Tracking(r.Context(), chi.URLParam(r, "orderNumber"))
	if err != nil {
		writeError(w, "Order not found", err)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("Order tracking retrieved", result))
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	customerID := auth.UserID(r.Context())
	if auth.Role(r.Context()) == auth.RoleStaff {
		if id := r.URL.Query().Get("customer_id"); id != "" {
			customerID = id
		}
	}

	stats, err := h.Orders.Stats(r.Context(), customerID)
	if err != nil {
		writeError(w, "Could not compute stats", err)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("Order stats retrieved", stats))
}

func (h *Handler) AssignPickupAgent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AgentID string `json:"agent_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	schedule, err := h.Orders.AssignPickupAgent(r.Context(), chi.URLParam(r, "orderId"), req.AgentID)
	if err != nil {
		writeError(w, "Could not assign pickup agent", err)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("Pickup agent assigned", schedule))
}

func (h *Handler) CompletePickup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Notes string `json:"notes"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	schedule, err := h.Orders.CompletePickup(r.Context(), chi.URLParam(r, "orderId"), auth.UserID(r.Context()), req.Notes)
	if err != nil {
		writeError(w, "Could not complete pickup", err)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("Pickup completed", schedule))
}

func (h *Handler) AssignDeliveryAgent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AgentID string `json:"agent_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	schedule, err := h.Orders.AssignDeliveryAgent(r.Context(), chi.URLParam(r, "orderId"), req.AgentID)
	if err != nil {
		writeError(w, "Could not assign delivery agent", err)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("Delivery agent assigned", schedule))
}

func (h *Handler) CompleteDelivery(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Notes string `json:"notes"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	schedule, err := h.Orders.CompleteDelivery(r.Context(), chi.URLParam(r, "orderId"), auth.UserID(r.Context()), req.Notes)
	if err != nil {
		writeError(w, "Could not complete delivery", err)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("Delivery completed", schedule))
}

func (h *Handler) HandoffQR(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Query().Get("kind")
	if kind == "" {
		kind = "pickup"
	}

	png, err := h.Orders.HandoffQR(r.Context(), chi.URLParam(r, "orderId"), kind)
	if err != nil {
		writeError(w, "Could not generate handoff QR", err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}
