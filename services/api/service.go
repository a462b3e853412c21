// Package api is the HTTP surface of the tracker: a JSON API for
// product management, history, exports, settings and scheduler control,
// guarded by the IP allowlist and the session cookie.
package api

import (
	"context"
	"net/http"

	"github.com/Ropaxyz/CostcoUKTracker/lib/secrets"
	"github.com/Ropaxyz/CostcoUKTracker/services/auth"
	"github.com/Ropaxyz/CostcoUKTracker/services/notify"
	"github.com/Ropaxyz/CostcoUKTracker/services/settings"
	"github.com/Ropaxyz/CostcoUKTracker/services/tracker"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Scheduler is the slice of the poll loop the HTTP surface needs.
type Scheduler interface {
	RunNow(ctx context.Context) error
	Running() bool
}

// Notifier sends a one-off message on a single channel. The test
// notification endpoint uses it to exercise exactly one channel at a
// time instead of the usual fan out.
type Notifier interface {
	SendEmail(ctx context.Context, config settings.Config, subject, body string) notify.Result
	SendTelegram(ctx context.Context, config settings.Config, message string) notify.Result
	SendDiscord(ctx context.Context, config settings.Config, subject, body string) notify.Result
	SendPushover(ctx context.Context, config settings.Config, subject, body string) notify.Result
}

type Options struct {
	Auth      auth.Service
	Tracker   tracker.Service
	Settings  settings.Service
	Notifier  Notifier
	Scheduler Scheduler
	Secrets   secrets.Box
}

type Service struct {
	auth      auth.Service
	tracker   tracker.Service
	settings  settings.Service
	notifier  Notifier
	scheduler Scheduler
	secrets   secrets.Box
}

func NewService(options Options) Service {
	return Service{
		auth:      options.Auth,
		tracker:   options.Tracker,
		settings:  options.Settings,
		notifier:  options.Notifier,
		scheduler: options.Scheduler,
		secrets:   options.Secrets,
	}
}

// Handler builds the route tree. The IP allowlist covers everything,
// including login; the session check covers everything except login so
// an operator can still sign in.
func (s Service) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.checkClientIp)

	r.Post("/api/login", s.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)

		r.Post("/api/logout", s.handleLogout)
		r.Post("/api/change-password", s.handleChangePassword)

		r.Route("/api/products", func(r chi.Router) {
			r.Get("/", s.handleListProducts)
			r.Post("/", s.handleAddProduct)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetProduct)
				r.Patch("/", s.handleUpdateProduct)
				r.Delete("/", s.handleDeleteProduct)
				r.Post("/refresh", s.handleRefreshProduct)
				r.Get("/history", s.handleProductHistory)
			})
		})

		r.Get("/api/export", s.handleExport)
		r.Get("/api/alerts", s.handleRecentAlerts)

		r.Post("/api/scheduler/run", s.handleRunScheduler)
		r.Get("/api/scheduler/status", s.handleSchedulerStatus)
		r.Get("/api/scheduler/runs", s.handleSchedulerRuns)
		r.Post("/api/kill-switch/{state}", s.handleKillSwitch)

		r.Get("/api/settings", s.handleGetSettings)
		r.Post("/api/settings/notifications", s.handleSaveNotificationSettings)
		r.Post("/api/settings/scheduler", s.handleSaveSchedulerSettings)
		r.Post("/api/settings/checkout", s.handleSaveCheckoutSettings)
		r.Post("/api/test-notification/{channel}", s.handleTestNotification)
	})

	return r
}
