package media

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"coursedeck/internal/storage"
)

type DurationProber interface {
	ProbeDuration(ctx context.Context, path string) (int64, error)
}

type DurationStore interface {
	LecturesWithoutDuration(ctx context.Context, courseID string, limit int) ([]storage.Lecture, error)
	UpdateLectureDuration(ctx context.Context, lectureID string, seconds int64) error
}

type fileChecker interface {
	FileExists(path string) bool
}

// DurationService fills in lecture durations that are still unknown.
type DurationService struct {
	prober  DurationProber
	store   DurationStore
	files   fileChecker
	workers int
	logger  zerolog.Logger

	processing   map[string]bool
	processingMu sync.Mutex
}

func NewDurationService(
	prober DurationProber,
	store DurationStore,
	files fileChecker,
	workers int,
	logger zerolog.Logger,
) *DurationService {
	if workers < 1 {
		workers = 1
	}
	return &DurationService{
		prober:     prober,
		store:      store,
		files:      files,
		workers:    workers,
		logger:     logger,
		processing: make(map[string]bool),
	}
}

// RefreshCourse probes every lecture of a course whose duration is unknown
// and returns how many were updated.
func (s *DurationService) RefreshCourse(ctx context.Context, courseID string) (int, error) {
	return s.refresh(ctx, courseID)
}

// RefreshPending does the same across all courses.
func (s *DurationService) RefreshPending(ctx context.Context) (int, error) {
	return s.refresh(ctx, "")
}

func (s *DurationService) refresh(ctx context.Context, courseID string) (int, error) {
	lectures, err := s.store.LecturesWithoutDuration(ctx, courseID, 0)
	if err != nil {
		return 0, err
	}
	if len(lectures) == 0 {
		return 0, nil
	}

	var updated atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for _, lecture := range lectures {
		g.Go(func() error {
			ok, err := s.processLecture(gctx, lecture)
			if ok {
				updated.Add(1)
			}
			return err
		})
	}

	err = g.Wait()
	n := int(updated.Load())
	s.logger.Info().
		Str("course", courseID).
		Int("pending", len(lectures)).
		Int("updated", n).
		Msg("duration refresh finished")
	return n, err
}

// processLecture returns an error only when the refresh should stop. Missing
// files and failed probes are logged and skipped.
func (s *DurationService) processLecture(ctx context.Context, lecture storage.Lecture) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.processingMu.Lock()
	if s.processing[lecture.ID] {
		s.processingMu.Unlock()
		return false, nil
	}
	s.processing[lecture.ID] = true
	s.processingMu.Unlock()

	defer func() {
		s.processingMu.Lock()
		delete(s.processing, lecture.ID)
		s.processingMu.Unlock()
	}()

	if !s.files.FileExists(lecture.VideoPath) {
		s.logger.Debug().Str("id", lecture.ID).Str("path", lecture.VideoPath).Msg("video missing, skipping duration")
		return false, nil
	}

	seconds, err := s.prober.ProbeDuration(ctx, lecture.VideoPath)
	if errors.Is(err, ErrProbeUnavailable) {
		return false, err
	}
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		s.logger.Warn().Err(err).Str("id", lecture.ID).Msg("failed to probe duration")
		return false, nil
	}
	if seconds <= 0 {
		return false, nil
	}

	if err := s.store.UpdateLectureDuration(ctx, lecture.ID, seconds); err != nil {
		s.logger.Error().Err(err).Str("id", lecture.ID).Msg("failed to update duration")
		return false, nil
	}

	s.logger.Debug().Str("id", lecture.ID).Int64("duration", seconds).Msg("duration updated")
	return true, nil
}

// Schedule registers a periodic RefreshPending run. An empty spec leaves
// the schedule untouched.
func (s *DurationService) Schedule(ctx context.Context, c *cron.Cron, spec string) error {
	if spec == "" {
		return nil
	}

	var running atomic.Bool
	_, err := c.AddFunc(spec, func() {
		if !running.CompareAndSwap(false, true) {
			return
		}
		defer running.Store(false)

		if _, err := s.RefreshPending(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn().Err(err).Msg("scheduled duration refresh failed")
		}
	})
	return err
}
