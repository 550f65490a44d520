package api

import (
	"net/http"
	"time"

	"github.com/Domenick1991/busticketing/internal/domain"
	"github.com/Domenick1991/busticketing/internal/service/payment"
	"github.com/gin-gonic/gin"
)

type PaymentHandler struct {
	service payment.PaymentUseCase
}

type pendingDetailsRequest struct {
	TripID          int64     `json:"trip_id"`
	From            string    `json:"from"`
	To              string    `json:"to"`
	Departure       time.Time `json:"departure"`
	DurationMinutes int       `json:"duration_minutes"`
	PriceMinor      int64     `json:"price_minor"`
	Passengers      []string  `json:"passengers"`
}

type initiatePaymentRequest struct {
	AmountMinor   int64                  `json:"amount_minor"`
	ReservationID string                 `json:"reservation_id"`
	Pending       *pendingDetailsRequest `json:"pending"`
	ReturnURL     string                 `json:"return_url"`
}

type initiatePaymentResponse struct {
	PaymentURL    string `json:"payment_url"`
	TransactionID string `json:"transaction_id"`
}

type reconcileResponse struct {
	Success       bool   `json:"success"`
	ReservationID string `json:"reservation_id,omitempty"`
	GatewayStatus string `json:"gateway_status"`
	Reason        string `json:"reason"`
}

func NewPaymentHandler(service payment.PaymentUseCase) *PaymentHandler {
	return &PaymentHandler{service: service}
}

func (h *PaymentHandler) Register(router *gin.RouterGroup) {
	router.POST("/", h.initiate)
	router.GET("/verify/:transaction_id", h.verify)
	// The gateway's redirect lands here; it runs the same reconciliation as
	// a verify poll.
	router.GET("/callback", h.callback)
}

func (h *PaymentHandler) initiate(c *gin.Context) {
	var req initiatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	input := payment.InitiatePaymentInput{
		AmountMinor:   req.AmountMinor,
		ReservationID: req.ReservationID,
		ReturnURL:     req.ReturnURL,
	}
	if req.Pending != nil {
		input.Pending = &domain.PendingReservation{
			TripID:          req.Pending.TripID,
			FromStop:        req.Pending.From,
			ToStop:          req.Pending.To,
			Departure:       req.Pending.Departure,
			DurationMinutes: req.Pending.DurationMinutes,
			PriceMinor:      req.Pending.PriceMinor,
			Passengers:      req.Pending.Passengers,
			OwnerID:         c.GetHeader("X-Owner-ID"),
		}
	}

	result, err := h.service.InitiatePayment(c.Request.Context(), input)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, initiatePaymentResponse{
		PaymentURL:    result.PaymentURL,
		TransactionID: result.TransactionID,
	})
}

func (h *PaymentHandler) verify(c *gin.Context) {
	h.reconcile(c, c.Param("transaction_id"))
}

func (h *PaymentHandler) callback(c *gin.Context) {
	h.reconcile(c, c.Query("transaction_id"))
}

func (h *PaymentHandler) reconcile(c *gin.Context, transactionID string) {
	result, err := h.service.Reconcile(c.Request.Context(), transactionID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, reconcileResponse{
		Success:       result.Success,
		ReservationID: result.ReservationID,
		GatewayStatus: string(result.GatewayStatus),
		Reason:        result.Reason,
	})
}
