package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/zyfzsi/ldc-shop/internal/domain"
	"github.com/zyfzsi/ldc-shop/internal/service/aggregates"
	"github.com/zyfzsi/ldc-shop/internal/service/lifecycle"
	"github.com/zyfzsi/ldc-shop/internal/service/reservation"
	"github.com/zyfzsi/ldc-shop/internal/service/sweeper"
)

const defaultOrderListLimit = 50

// Handler связывает HTTP-маршруты с сервисами движка.
type Handler struct {
	reservation *reservation.Engine
	lifecycle   *lifecycle.Machine
	sweeper     *sweeper.Sweeper
	aggregates  *aggregates.Engine
	orders      domain.OrderRepository
	products    domain.ProductRepository
	reviews     domain.ReviewRepository
	logger      *log.Entry
}

// NewHandler создаёт HTTP-обработчик поверх сервисов движка.
func NewHandler(
	reservationEngine *reservation.Engine,
	machine *lifecycle.Machine,
	sweep *sweeper.Sweeper,
	aggregatesEngine *aggregates.Engine,
	orders domain.OrderRepository,
	products domain.ProductRepository,
	reviews domain.ReviewRepository,
	logger *log.Entry,
) *Handler {
	if logger == nil {
		logger = log.WithField("component", "httpapi")
	}
	return &Handler{
		reservation: reservationEngine,
		lifecycle:   machine,
		sweeper:     sweep,
		aggregates:  aggregatesEngine,
		orders:      orders,
		products:    products,
		reviews:     reviews,
		logger:      logger,
	}
}

type createOrderRequest struct {
	ProductID   string `json:"product_id"`
	UserID      string `json:"user_id"`
	Quantity    int    `json:"quantity"`
	PointsToUse int    `json:"points_to_use"`
}

type orderResponse struct {
	OrderID       string    `json:"order_id"`
	ProductID     string    `json:"product_id"`
	ProductName   string    `json:"product_name"`
	Status        string    `json:"status"`
	AmountMinor   int64     `json:"amount_minor"`
	Quantity      int       `json:"quantity"`
	PointsUsed    int       `json:"points_used"`
	PointsAwarded int       `json:"points_awarded"`
	CardKey       string    `json:"card_key,omitempty"`
	CardIDs       []int64   `json:"card_ids,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type paymentCallbackRequest struct {
	OrderID   string `json:"order_id"`
	TradeNo   string `json:"trade_no"`
	PaidMinor int64  `json:"paid_minor"`
	Success   bool   `json:"success"`
}

type reviewRequest struct {
	UserID  string `json:"user_id"`
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

type sweepRequest struct {
	ProductID string `json:"product_id"`
	UserID    string `json:"user_id"`
	OrderID   string `json:"order_id"`
}

type recomputeRequest struct {
	ProductIDs []string `json:"product_ids"`
}

type sweepResponse struct {
	Expired  int      `json:"expired"`
	OrderIDs []string `json:"order_ids"`
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.ProductID == "" || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "product_id and user_id are required")
		return
	}

	order, err := h.reservation.Reserve(r.Context(), reservation.Request{
		ProductID:   req.ProductID,
		UserID:      req.UserID,
		Quantity:    req.Quantity,
		PointsToUse: req.PointsToUse,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResponse(order))
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) listUserOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListByUser(chi.URLParam(r, "id"), defaultOrderListLimit)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	result := make([]orderResponse, 0, len(orders))
	for _, order := range orders {
		result = append(result, toOrderResponse(order))
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) listProducts(w http.ResponseWriter, _ *http.Request) {
	products, err := h.products.List()
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

// paymentCallback обрабатывает уведомление платёжного шлюза. Повторный
// колбэк отвечает 200 без побочных эффектов; доставка после оплаты —
// best-effort, колбэк не проваливается из-за её ошибки.
func (h *Handler) paymentCallback(w http.ResponseWriter, r *http.Request) {
	var req paymentCallbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.OrderID == "" || req.TradeNo == "" {
		writeError(w, http.StatusBadRequest, "order_id and trade_no are required")
		return
	}

	err := h.lifecycle.MarkPaid(r.Context(), req.OrderID, domain.PaymentProof{
		TradeNo:   req.TradeNo,
		PaidMinor: req.PaidMinor,
		Success:   req.Success,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	if req.Success {
		if _, err := h.lifecycle.Deliver(r.Context(), req.OrderID); err != nil {
			h.logger.WithError(err).WithField("order_id", req.OrderID).Warn("delivery after payment failed")
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

func (h *Handler) deliverOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.lifecycle.Deliver(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) refundOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.lifecycle.Refund(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "refunded"})
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.lifecycle.Cancel(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// reviewOrder принимает отзыв по доставленному заказу и пересчитывает
// рейтинг товара.
func (h *Handler) reviewOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Rating < 1 || req.Rating > 5 {
		writeError(w, http.StatusBadRequest, "rating must be between 1 and 5")
		return
	}

	order, err := h.orders.Get(orderID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if order.Status != domain.OrderStatusDelivered {
		writeError(w, http.StatusConflict, "only delivered orders can be reviewed")
		return
	}
	if order.UserID != req.UserID {
		writeError(w, http.StatusForbidden, "order belongs to another user")
		return
	}

	err = h.reviews.Add(domain.Review{
		ProductID: order.ProductID,
		OrderID:   order.OrderID,
		UserID:    req.UserID,
		Rating:    req.Rating,
		Comment:   req.Comment,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	if err := h.aggregates.Recompute(r.Context(), order.ProductID); err != nil {
		h.logger.WithError(err).WithField("product_id", order.ProductID).Warn("recompute after review failed")
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "accepted"})
}

func (h *Handler) adminSweep(w http.ResponseWriter, r *http.Request) {
	var req sweepRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json")
			return
		}
	}

	expired, err := h.sweeper.SweepFiltered(r.Context(), domain.SweepFilter{
		ProductID: req.ProductID,
		UserID:    req.UserID,
		OrderID:   req.OrderID,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if expired == nil {
		expired = []string{}
	}
	writeJSON(w, http.StatusOK, sweepResponse{Expired: len(expired), OrderIDs: expired})
}

// adminRecompute пересчитывает агрегаты перечисленных товаров; пустой
// список запускает одноразовый бэкфилл по всем товарам.
func (h *Handler) adminRecompute(w http.ResponseWriter, r *http.Request) {
	var req recomputeRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json")
			return
		}
	}

	var err error
	if len(req.ProductIDs) == 0 {
		err = h.aggregates.Backfill(r.Context())
	} else {
		err = h.aggregates.RecomputeMany(r.Context(), req.ProductIDs)
	}
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeServiceError переводит доменные ошибки в HTTP-статусы.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrProductNotFound),
		errors.Is(err, domain.ErrUserNotFound),
		errors.Is(err, domain.ErrCardNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case domain.IsInsufficientStock(err),
		domain.IsInvalidTransition(err),
		errors.Is(err, domain.ErrInsufficientPoints):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrUserBlocked):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrQuantityInvalid),
		errors.Is(err, domain.ErrPointsNegative),
		errors.Is(err, domain.ErrPurchaseLimitExceeded):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.WithError(err).Error("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func toOrderResponse(order domain.Order) orderResponse {
	return orderResponse{
		OrderID:       order.OrderID,
		ProductID:     order.ProductID,
		ProductName:   order.ProductName,
		Status:        string(order.Status),
		AmountMinor:   order.AmountMinor,
		Quantity:      order.Quantity,
		PointsUsed:    order.PointsUsed,
		PointsAwarded: order.PointsAwarded,
		CardKey:       order.CardKey,
		CardIDs:       order.CardIDs,
		CreatedAt:     order.CreatedAt,
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}
