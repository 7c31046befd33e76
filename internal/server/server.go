package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"coursedeck/internal/api"
	"coursedeck/internal/config"
	"coursedeck/internal/fsys"
	"coursedeck/internal/library"
	"coursedeck/internal/media"
	"coursedeck/internal/progress"
	"coursedeck/internal/storage"
)

type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	httpServer *http.Server
	router     *chi.Mux
	handler    *api.Handler
}

func New(
	cfg *config.Config,
	logger zerolog.Logger,
	store *storage.SQLiteStorage,
	importer *library.Importer,
	player *progress.Player,
	files fsys.Service,
) *Server {
	s := &Server{
		cfg:     cfg,
		logger:  logger,
		handler: api.NewHandler(store, importer, player, files, cfg, logger),
	}

	s.router = chi.NewRouter()
	s.setupMiddleware()
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         cfg.Addr(),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(CORSMiddleware)
	s.router.Use(LoggingMiddleware(s.logger))
}

func (s *Server) setupRoutes() {
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handler.Health)
		r.Get("/settings", s.handler.GetSettings)

		r.Get("/courses", s.handler.ListCourses)
		r.Post("/courses", s.handler.ImportCourse)
		r.Get("/courses/{id}", s.handler.GetCourse)
		r.Delete("/courses/{id}", s.handler.DeleteCourse)
		r.Get("/courses/{id}/progress", s.handler.GetCourseProgress)
		r.Get("/courses/{id}/durations", s.handler.GetCourseDurations)
		r.Get("/courses/{id}/last-played", s.handler.GetLastPlayed)
		r.Post("/courses/{id}/refresh-durations", s.handler.RefreshDurations)

		r.Get("/sections/{id}/progress", s.handler.GetSectionProgress)

		// Playback
		r.Post("/lectures/{id}/open", s.handler.OpenLecture)
		r.Post("/lectures/{id}/playback", s.handler.PlaybackEvent)
		r.Post("/lectures/{id}/complete", s.handler.MarkComplete)
		r.Get("/lectures/{id}/progress", s.handler.GetLectureProgress)
		r.Get("/lectures/{id}/next", s.handler.NextLecture)
		r.Get("/lectures/{id}/previous", s.handler.PreviousLecture)

		r.Get("/lectures/{id}/stream", s.handler.StreamLecture)
		r.Get("/lectures/{id}/subtitle", s.handler.GetSubtitle)
	})
}

func (s *Server) SetDurationService(service *media.DurationService) {
	s.handler.SetDurationService(service)
}

func (s *Server) SetBaseContext(ctx context.Context) {
	s.handler.SetBaseContext(ctx)
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.logger.Info().
		Str("addr", s.httpServer.Addr).
		Msg("starting server")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return s.httpServer.Shutdown(shutdownCtx)
}
