package app

import (
	"net/http"
	"time"

	"github.com/floorreports/internal/handler"
	"github.com/floorreports/internal/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

func (app *App) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.SecurityHeaders)

	r.Get("/api/health", handler.Health(app.db, app.production))
	r.Handle("/metrics", promhttp.HandlerFor(app.registry, promhttp.HandlerOpts{}))

	authHandler := handler.NewAuthHandler(app.logger, app.userStore, app.sessionStore, []byte(app.config.PinHMACKey), app.config.SecureCookies)
	r.With(middleware.RateLimit(rate.Every(time.Minute/10), 5)).Post("/api/login", authHandler.Login)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Session(app.sessionStore, app.userStore))

		r.Post("/api/logout", authHandler.Logout)
		r.Get("/api/me", authHandler.Me)

		r.Route("/api/admin", func(r chi.Router) {
			r.Use(middleware.RequireAdmin())

			settingsHandler := handler.NewSettingsHandler(app.logger, app.settingsStore, app.mailer)
			r.Get("/report-settings", settingsHandler.Get)
			r.Put("/report-settings", settingsHandler.Update)
			r.Post("/report-settings/test-email", settingsHandler.TestEmail)
			r.Get("/report-settings/validate", settingsHandler.Validate)

			reportsHandler := handler.NewReportsHandler(app.logger, app.scheduler, app.emailLogStore, app.generator, app.loc)
			r.Get("/reports/status", reportsHandler.Status)
			r.Get("/reports/history", reportsHandler.History)
			r.Post("/reports/{type}/send", reportsHandler.Send)
			r.Get("/reports/{type}/preview", reportsHandler.Preview)
			r.Post("/scheduler/start", reportsHandler.StartScheduler)
			r.Post("/scheduler/stop", reportsHandler.StopScheduler)
		})
	})
	return r
}
