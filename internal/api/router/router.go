package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/smileclinic/booking-bot/internal/http/handlers"
	httpmiddleware "github.com/smileclinic/booking-bot/internal/http/middleware"
	"github.com/smileclinic/booking-bot/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger         *logging.Logger
	WebhookHandler *handlers.WebhookHandler
	AdminHandler   *handlers.AdminHandler
	MetricsHandler http.Handler

	// WebhookRate/WebhookBurst bound the public webhook endpoint per IP.
	WebhookRate  float64
	WebhookBurst int
}

// New creates a chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if cfg.WebhookHandler != nil {
		rate, burst := cfg.WebhookRate, cfg.WebhookBurst
		if rate <= 0 {
			rate = 50
		}
		if burst <= 0 {
			burst = 100
		}
		r.With(httpmiddleware.RateLimit(rate, burst)).
			Post("/webhooks/{provider}", cfg.WebhookHandler.HandleInbound)
	}

	if cfg.AdminHandler != nil {
		r.Route("/api", func(api chi.Router) {
			api.Get("/availability", cfg.AdminHandler.GetAvailability)
			api.Get("/doctors", cfg.AdminHandler.ListDoctors)
			api.Get("/services", cfg.AdminHandler.ListServices)

			api.Route("/appointments", func(appts chi.Router) {
				appts.Get("/upcoming", cfg.AdminHandler.GetUpcoming)
				appts.Post("/", cfg.AdminHandler.CreateAppointment)
				appts.Route("/{id}", func(one chi.Router) {
					one.Post("/cancel", cfg.AdminHandler.CancelAppointment)
					one.Post("/reschedule", cfg.AdminHandler.RescheduleAppointment)
					one.Post("/complete", cfg.AdminHandler.CompleteAppointment)
					one.Post("/no-show", cfg.AdminHandler.MarkNoShow)
					one.Post("/payment", cfg.AdminHandler.RecordPayment)
					one.Post("/follow-up", cfg.AdminHandler.ScheduleFollowUp)
				})
			})

			api.Post("/absences", cfg.AdminHandler.DeclareAbsence)
			api.Post("/clients/{phone}/block", cfg.AdminHandler.BlockClient)
			api.Post("/clients/{phone}/unblock", cfg.AdminHandler.UnblockClient)
			api.Put("/hours/{weekday}", cfg.AdminHandler.SetHoursOverride)
		})
	}

	return r
}
