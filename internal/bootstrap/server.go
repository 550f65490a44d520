package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Domenick1991/busticketing/api"
	"github.com/Domenick1991/busticketing/config"
	"github.com/Domenick1991/busticketing/internal/service/payment"
	"github.com/Domenick1991/busticketing/internal/service/reservation"
	"github.com/Domenick1991/busticketing/internal/service/trips"
	"github.com/gin-gonic/gin"
	httpSwagger "github.com/swaggo/http-swagger"
)

// Run starts the HTTP server (gin API + swagger UI) and blocks until the
// context is canceled or the server fails.
func Run(ctx context.Context, cfg *config.Config, tripSvc trips.TripUseCase, reservationSvc reservation.ReservationUseCase, paymentSvc payment.PaymentUseCase) error {
	router := gin.Default()

	api.NewTripHandler(tripSvc).Register(router.Group("/trips"))
	api.NewReservationHandler(reservationSvc).Register(router.Group("/reservations"))
	api.NewPaymentHandler(paymentSvc).Register(router.Group("/payments"))

	handler := http.NewServeMux()
	handler.Handle("/", router)

	if cfg.HTTP.SwaggerDir != "" {
		fs := http.FileServer(http.Dir(cfg.HTTP.SwaggerDir))
		handler.Handle("/swagger/", http.StripPrefix("/swagger/", fs))
		handler.Handle("/docs/", httpSwagger.Handler(httpSwagger.URL("/swagger/openapi.json")))
	}

	httpSrv := &http.Server{
		Addr:    cfg.HTTP.Address,
		Handler: handler,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- httpSrv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	}
}
