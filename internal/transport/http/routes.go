package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "transcription-service/docs"
)

func Routes(h *Handler, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// после RequestID, чтобы в логе был req_id
	r.Use(RequestLogger(logger))

	r.Get("/health", h.Health)

	r.Route("/transcribe", func(r chi.Router) {
		r.Post("/", h.Transcribe)
		r.Post("/srt", h.TranscribeSRT)
		r.Post("/sync", h.TranscribeSync)
	})
	r.Get("/task/{id}", h.GetTask)

	r.Route("/history", func(r chi.Router) {
		r.Get("/", h.History)
		r.Get("/{id}", h.HistoryEntry)
	})

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	return r
}
