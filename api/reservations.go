package api

import (
	"net/http"
	"time"

	"github.com/Domenick1991/busticketing/internal/domain"
	"github.com/Domenick1991/busticketing/internal/service/reservation"
	"github.com/gin-gonic/gin"
)

type ReservationHandler struct {
	service reservation.ReservationUseCase
}

type createReservationRequest struct {
	TripID          int64     `json:"trip_id"`
	From            string    `json:"from"`
	To              string    `json:"to"`
	Departure       time.Time `json:"departure"`
	DurationMinutes int       `json:"duration_minutes"`
	PriceMinor      int64     `json:"price_minor"`
	Passengers      []string  `json:"passengers"`
}

type overrideStatusRequest struct {
	Status   string `json:"status"`
	Operator string `json:"operator"`
}

type reservationResponse struct {
	ID              string   `json:"id"`
	TripID          int64    `json:"trip_id,omitempty"`
	From            string   `json:"from"`
	To              string   `json:"to"`
	Departure       string   `json:"departure"`
	DurationMinutes int      `json:"duration_minutes"`
	PriceMinor      int64    `json:"price_minor"`
	Passengers      []string `json:"passengers"`
	Status          string   `json:"status"`
	ExpiresAt       string   `json:"expires_at"`
	CreatedAt       string   `json:"created_at"`
}

func NewReservationHandler(service reservation.ReservationUseCase) *ReservationHandler {
	return &ReservationHandler{service: service}
}

func (h *ReservationHandler) Register(router *gin.RouterGroup) {
	router.POST("/", h.create)
	router.GET("/:id", h.get)
	router.DELETE("/:id", h.cancel)
	router.PUT("/:id/status", h.overrideStatus)
}

func (h *ReservationHandler) create(c *gin.Context) {
	var req createReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Owner identity is issued by the auth module and forwarded as a header.
	ownerID := c.GetHeader("X-Owner-ID")

	res, err := h.service.CreateReservation(c.Request.Context(), reservation.CreateReservationInput{
		TripID:          req.TripID,
		FromStop:        req.From,
		ToStop:          req.To,
		Departure:       req.Departure,
		DurationMinutes: req.DurationMinutes,
		PriceMinor:      req.PriceMinor,
		Passengers:      req.Passengers,
		OwnerID:         ownerID,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, h.toResponse(res))
}

func (h *ReservationHandler) get(c *gin.Context) {
	res, err := h.service.GetReservation(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.toResponse(res))
}

func (h *ReservationHandler) cancel(c *gin.Context) {
	res, err := h.service.CancelReservation(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.toResponse(res))
}

func (h *ReservationHandler) overrideStatus(c *gin.Context) {
	var req overrideStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	operator := req.Operator
	if operator == "" {
		operator = c.GetHeader("X-Operator-ID")
	}

	res, err := h.service.OverrideStatus(c.Request.Context(), c.Param("id"), domain.ReservationStatus(req.Status), operator)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.toResponse(res))
}

func (h *ReservationHandler) toResponse(res *domain.Reservation) reservationResponse {
	return reservationResponse{
		ID:              res.ID,
		TripID:          res.TripID,
		From:            res.FromStop,
		To:              res.ToStop,
		Departure:       res.Departure.Format(time.RFC3339),
		DurationMinutes: res.DurationMinutes,
		PriceMinor:      res.PriceMinor,
		Passengers:      res.Passengers,
		Status:          string(res.Status),
		ExpiresAt:       res.ExpiresAt(h.service.TTL()).Format(time.RFC3339),
		CreatedAt:       res.CreatedAt.Format(time.RFC3339),
	}
}
