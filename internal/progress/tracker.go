// Package progress tracks per-lecture watch state and resume positions.
//
// Store failures never interrupt playback: writes become no-ops and reads
// fall back to zero values, both with a warning in the log.
package progress

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"coursedeck/internal/cache"
	"coursedeck/internal/storage"
)

var (
	ErrLectureNotFound = errors.New("lecture not found")
	ErrFileMissing     = errors.New("lecture file missing")
)

type Store interface {
	GetLecture(ctx context.Context, id string) (*storage.Lecture, error)
	CourseLectures(ctx context.Context, courseID string) ([]storage.Lecture, error)
	UpdateLectureDuration(ctx context.Context, lectureID string, seconds int64) error

	GetProgress(ctx context.Context, lectureID string) (*storage.Progress, error)
	SaveProgress(ctx context.Context, p *storage.Progress) error
	CourseLectureStates(ctx context.Context, courseID string) ([]storage.LectureState, error)
	SectionLectureStates(ctx context.Context, sectionID string) ([]storage.LectureState, error)

	SetLastPlayed(ctx context.Context, courseID, lectureID string) error
	GetLastPlayed(ctx context.Context, courseID string) (string, error)
}

type FileChecker interface {
	FileExists(path string) bool
}

type Options struct {
	SaveInterval        time.Duration
	CompletionThreshold float64
	AutoMarkCompleted   bool
	AutoPlayNext        bool
	RememberPosition    bool
}

func DefaultOptions() Options {
	return Options{
		SaveInterval:        5 * time.Second,
		CompletionThreshold: 0.98,
		AutoMarkCompleted:   true,
		AutoPlayNext:        true,
		RememberPosition:    true,
	}
}

// Summary is the derived completion of a course or section.
type Summary struct {
	TotalLectures        int `json:"total_lectures"`
	WatchedCount         int `json:"watched_count"`
	PartialCount         int `json:"partial_count"`
	CompletionPercentage int `json:"completion_percentage"`
}

// Summarize counts completed lectures fully and partial ones by half.
func Summarize(states []storage.LectureState) Summary {
	s := Summary{TotalLectures: len(states)}
	for _, st := range states {
		switch {
		case st.WatchedState >= storage.Completed:
			s.WatchedCount++
		case st.WatchedState > storage.Unwatched:
			s.PartialCount++
		}
	}
	if s.TotalLectures > 0 {
		done := float64(s.WatchedCount) + 0.5*float64(s.PartialCount)
		s.CompletionPercentage = int(math.Round(done / float64(s.TotalLectures) * 100))
	}
	return s
}

type Tracker struct {
	store      Store
	files      FileChecker
	lastPlayed *cache.LRUCache
	opts       Options
	logger     zerolog.Logger
	now        func() time.Time
}

func NewTracker(store Store, files FileChecker, lastPlayed *cache.LRUCache, opts Options, logger zerolog.Logger) *Tracker {
	if opts.SaveInterval <= 0 {
		opts.SaveInterval = DefaultOptions().SaveInterval
	}
	if opts.CompletionThreshold <= 0 || opts.CompletionThreshold > 1 {
		opts.CompletionThreshold = DefaultOptions().CompletionThreshold
	}
	if lastPlayed == nil {
		lastPlayed = cache.NewLRUCache(256)
	}
	return &Tracker{
		store:      store,
		files:      files,
		lastPlayed: lastPlayed,
		opts:       opts,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (t *Tracker) Options() Options {
	return t.opts
}

// load returns the stored record, a zero record when there is none, and
// false when the store could not be read.
func (t *Tracker) load(ctx context.Context, lectureID string) (storage.Progress, bool) {
	p, err := t.store.GetProgress(ctx, lectureID)
	if err != nil {
		t.logger.Warn().Err(err).Str("lecture", lectureID).Msg("failed to read progress")
		return storage.Progress{LectureID: lectureID}, false
	}
	if p == nil {
		return storage.Progress{LectureID: lectureID}, true
	}
	return *p, true
}

func (t *Tracker) save(ctx context.Context, p storage.Progress) {
	if err := t.store.SaveProgress(ctx, &p); err != nil {
		t.logger.Warn().Err(err).Str("lecture", p.LectureID).Msg("failed to save progress")
	}
}

// LectureProgress returns the current record, zero valued if none exists.
func (t *Tracker) LectureProgress(ctx context.Context, lectureID string) storage.Progress {
	p, _ := t.load(ctx, lectureID)
	return p
}

// RecordPosition stores a playback position. An unwatched lecture becomes
// partial once the position moves past zero. Completed lectures are left
// untouched.
func (t *Tracker) RecordPosition(ctx context.Context, lectureID string, position float64) storage.Progress {
	cur, ok := t.load(ctx, lectureID)
	if !ok || cur.WatchedState == storage.Completed {
		return cur
	}

	next := cur
	next.PositionSeconds = math.Max(position, 0)
	next.LastWatchedAt = t.now()
	if cur.WatchedState == storage.Unwatched && next.PositionSeconds > 0 {
		next.WatchedState = storage.Partial
	}

	t.save(ctx, next)
	return next
}

// MarkComplete sets a lecture completed, resetting its position, or back to
// unwatched while keeping the last position.
func (t *Tracker) MarkComplete(ctx context.Context, lectureID string, completed bool) storage.Progress {
	cur, _ := t.load(ctx, lectureID)

	next := storage.Progress{
		LectureID:     lectureID,
		LastWatchedAt: t.now(),
	}
	if completed {
		next.WatchedState = storage.Completed
	} else {
		next.WatchedState = storage.Unwatched
		next.PositionSeconds = cur.PositionSeconds
	}

	t.save(ctx, next)
	return next
}

// ResumePosition picks where playback starts: the override when given,
// otherwise 0 for completed lectures and the stored position for the rest.
func (t *Tracker) ResumePosition(ctx context.Context, lectureID string, override *float64) float64 {
	if override != nil {
		return math.Max(*override, 0)
	}
	if !t.opts.RememberPosition {
		return 0
	}

	cur, _ := t.load(ctx, lectureID)
	if cur.WatchedState == storage.Completed {
		return 0
	}
	return cur.PositionSeconds
}

func (t *Tracker) CourseProgress(ctx context.Context, courseID string) Summary {
	states, err := t.store.CourseLectureStates(ctx, courseID)
	if err != nil {
		t.logger.Warn().Err(err).Str("course", courseID).Msg("failed to read course progress")
		return Summary{}
	}
	return Summarize(states)
}

func (t *Tracker) SectionProgress(ctx context.Context, sectionID string) Summary {
	states, err := t.store.SectionLectureStates(ctx, sectionID)
	if err != nil {
		t.logger.Warn().Err(err).Str("section", sectionID).Msg("failed to read section progress")
		return Summary{}
	}
	return Summarize(states)
}

func (t *Tracker) SetLastPlayed(ctx context.Context, courseID, lectureID string) {
	t.lastPlayed.Set(courseID, lectureID)
	if err := t.store.SetLastPlayed(ctx, courseID, lectureID); err != nil {
		t.logger.Warn().Err(err).Str("course", courseID).Msg("failed to save last played lecture")
	}
}

// GetLastPlayed returns the lecture last opened in a course. ok is false
// when nothing was played yet.
func (t *Tracker) GetLastPlayed(ctx context.Context, courseID string) (string, bool) {
	if id, ok := t.lastPlayed.Get(courseID); ok {
		return id, true
	}

	id, err := t.store.GetLastPlayed(ctx, courseID)
	if err != nil {
		t.logger.Warn().Err(err).Str("course", courseID).Msg("failed to read last played lecture")
		return "", false
	}
	if id == "" {
		return "", false
	}
	t.lastPlayed.Set(courseID, id)
	return id, true
}

// ForgetCourse drops cached state of a deleted course.
func (t *Tracker) ForgetCourse(courseID string) {
	t.lastPlayed.Delete(courseID)
}

// Adjacent returns the lecture step positions away from lectureID in course
// order, or nil at either end.
func (t *Tracker) Adjacent(ctx context.Context, lectureID string, step int) (*storage.Lecture, error) {
	lecture, err := t.store.GetLecture(ctx, lectureID)
	if err != nil {
		return nil, fmt.Errorf("load lecture: %w", err)
	}
	if lecture == nil {
		return nil, ErrLectureNotFound
	}

	lectures, err := t.store.CourseLectures(ctx, lecture.CourseID)
	if err != nil {
		return nil, fmt.Errorf("load course lectures: %w", err)
	}

	for i, l := range lectures {
		if l.ID != lectureID {
			continue
		}
		j := i + step
		if j < 0 || j >= len(lectures) {
			return nil, nil
		}
		next := lectures[j]
		return &next, nil
	}
	return nil, nil
}

// Open starts a playback session. The video must exist on disk; the course's
// last-played pointer is moved to this lecture.
func (t *Tracker) Open(ctx context.Context, lectureID string, override *float64) (*Session, error) {
	lecture, err := t.store.GetLecture(ctx, lectureID)
	if err != nil {
		return nil, fmt.Errorf("load lecture: %w", err)
	}
	if lecture == nil {
		return nil, ErrLectureNotFound
	}
	if !t.files.FileExists(lecture.VideoPath) {
		return nil, fmt.Errorf("%w: %s", ErrFileMissing, lecture.VideoPath)
	}

	t.SetLastPlayed(ctx, lecture.CourseID, lecture.ID)

	cur, _ := t.load(ctx, lectureID)
	start := t.ResumePosition(ctx, lectureID, override)

	t.logger.Debug().
		Str("lecture", lecture.ID).
		Float64("start", start).
		Str("state", cur.WatchedState.String()).
		Msg("playback opened")

	return newSession(t, *lecture, start, cur.WatchedState == storage.Completed), nil
}

func (t *Tracker) storeDuration(ctx context.Context, lectureID string, seconds int64) {
	if err := t.store.UpdateLectureDuration(ctx, lectureID, seconds); err != nil {
		t.logger.Warn().Err(err).Str("lecture", lectureID).Msg("failed to store lecture duration")
	}
}
