// Package httpapi is the HTTP and websocket gateway in front of the Campus
// service. It shares the Service with the gRPC server, so both transports
// see the same validation and errors.
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oggyb/campus-connect/internal/app"
	"github.com/oggyb/campus-connect/internal/service/campus"
)

// Handler serves the gateway routes.
type Handler struct {
	appCtx *app.AppContext
	svc    *campus.Service
	log    *slog.Logger
}

func NewHandler(appCtx *app.AppContext) *Handler {
	return &Handler{
		appCtx: appCtx,
		svc:    campus.NewService(appCtx),
		log:    appCtx.Logger.With("component", "http"),
	}
}

// Routes builds the chi router with every gateway endpoint mounted.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   h.appCtx.Config.HTTP.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", h.healthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(pr chi.Router) {
		pr.Use(h.appCtx.Auth.Middleware)

		pr.Get("/ws", h.serveWS)

		pr.Route("/api", func(api chi.Router) {
			api.Post("/swipe", h.swipe())
			api.Post("/blocks", h.block())
			api.Delete("/blocks/{targetID}", h.unblock())
			api.Get("/recommendations", h.recommend())
			api.Get("/unread-counts", h.unreadCounts())
			api.Get("/rooms/{roomID}/messages", h.listMessages())

			api.Route("/messages", func(m chi.Router) {
				m.Post("/direct", h.sendDirect())
				m.Post("/group", h.sendGroup())
				m.Post("/direct/{counterpartID}/read", h.markDirectRead())
			})

			api.Route("/groups", func(g chi.Router) {
				g.Post("/", h.createGroup())
				g.Post("/{groupID}/read", h.markGroupRead())
				g.Post("/{groupID}/members", h.addGroupMember())
			})
		})
	})

	return r
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		}
		if ww.Status() >= http.StatusInternalServerError {
			h.log.Error("http request", attrs...)
			return
		}
		h.log.Debug("http request", attrs...)
	})
}
