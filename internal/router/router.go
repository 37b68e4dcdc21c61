package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"pet-health-sync/internal/controller"
	_ "pet-health-sync/internal/docs" // registra la doc de swagger
	"pet-health-sync/internal/middleware"
	"pet-health-sync/internal/platform/logger"
	"pet-health-sync/internal/ports/auth"
)

type Options struct {
	Controller   *controller.Controller
	AuthVerifier auth.AuthVerifier // puede ser nil (modo dev)

	Logger logger.Logger

	// Opcional: si viene, se expone en /metrics.
	Metrics *prometheus.Registry

	// Límite del form multipart de /media/upload (default 32MB).
	MaxUploadBytes int64
	Now            func() time.Time
}

func NewRouter(opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 32 << 20
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLog(opts.Logger))
	r.Use(middleware.Recover(opts.Logger))

	r.Use(middleware.AuthContext(opts.AuthVerifier))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if opts.Metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Metrics, promhttp.HandlerOpts{}))
	}
	r.Get("/swagger/*", httpSwagger.WrapHandler)

	h := &handlers{ctl: opts.Controller, log: opts.Logger, now: opts.Now, maxUpload: opts.MaxUploadBytes}

	r.Route("/session", func(sr chi.Router) {
		sr.Get("/", h.getSession)
		sr.Post("/", h.startSession)
		sr.Post("/refresh", h.refreshSession)
	})

	r.Route("/entities/{type}", func(er chi.Router) {
		er.Get("/", h.listEntities)
		er.Post("/", h.createEntity)
		er.Get("/{id}", h.getEntity)
		er.Patch("/{id}", h.updateEntity)
		er.Delete("/{id}", h.deleteEntity)
		er.Get("/{id}/children/{childType}", h.listChildren)
	})

	r.Get("/contacts/emergency", h.emergencyContacts)
	r.Get("/contacts/regular", h.regularContacts)
	r.Get("/canines/{canineID}/appointments", h.canineAppointments)

	r.Post("/media/upload", h.uploadMedia)

	return r
}
