package progress

import (
	"context"
	"math"
	"sync"
	"time"

	"coursedeck/internal/storage"
)

// Session is the playback of one lecture, driven by the player's timer and
// media events. It starts in the playing state.
type Session struct {
	tracker *Tracker
	lecture storage.Lecture
	start   float64

	mu             sync.Mutex
	position       float64
	playing        bool
	closed         bool
	completed      bool
	durationStored bool
	lastSave       time.Time
}

// TickResult reports what a tick did.
type TickResult struct {
	Saved     bool `json:"saved"`
	Completed bool `json:"completed"`
}

func newSession(t *Tracker, lecture storage.Lecture, start float64, completed bool) *Session {
	return &Session{
		tracker:        t,
		lecture:        lecture,
		start:          start,
		position:       start,
		playing:        true,
		completed:      completed,
		durationStored: lecture.DurationSeconds > 0,
	}
}

func (s *Session) Lecture() storage.Lecture {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lecture
}

// StartPosition is where playback should seek to when the session opens.
func (s *Session) StartPosition() float64 { return s.start }

func (s *Session) Position() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position
}

func (s *Session) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing && !s.closed
}

func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Tick reports the current playback time. While playing, the position is
// saved once per save interval and the lecture is completed the first time
// playback passes the completion threshold. Ticks while paused are ignored.
func (s *Session) Tick(ctx context.Context, currentTime, duration float64, now time.Time) TickResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res TickResult
	if s.closed || !s.playing {
		return res
	}
	s.position = math.Max(currentTime, 0)

	if duration > 0 && !s.durationStored {
		s.durationStored = true
		seconds := int64(math.Round(duration))
		if seconds > 0 {
			s.lecture.DurationSeconds = seconds
			s.tracker.storeDuration(ctx, s.lecture.ID, seconds)
		}
	}

	if s.pastThreshold(currentTime, duration) {
		s.completed = true
		s.lastSave = now
		s.tracker.MarkComplete(ctx, s.lecture.ID, true)
		res.Completed = true
		return res
	}

	if s.lastSave.IsZero() {
		s.lastSave = now
		return res
	}
	if now.Sub(s.lastSave) >= s.tracker.opts.SaveInterval {
		s.lastSave = now
		res.Saved = s.persist(ctx)
	}
	return res
}

// Pause takes the single snapshot allowed while paused.
func (s *Session) Pause(ctx context.Context, currentTime float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || !s.playing {
		return false
	}
	s.playing = false
	s.position = math.Max(currentTime, 0)
	return s.persist(ctx)
}

func (s *Session) Play() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.playing = true
	s.lastSave = time.Time{}
}

// Exit saves the final position and closes the session.
func (s *Session) Exit(ctx context.Context, currentTime float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	s.closed = true
	s.playing = false
	s.position = math.Max(currentTime, 0)
	return s.persist(ctx)
}

// Ended handles the end of the video. It returns the lecture to continue
// with when auto play is enabled, or nil.
func (s *Session) Ended(ctx context.Context) *storage.Lecture {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.playing = false
	if s.tracker.opts.AutoMarkCompleted && !s.completed {
		s.completed = true
		s.tracker.MarkComplete(ctx, s.lecture.ID, true)
	}
	s.mu.Unlock()

	if !s.tracker.opts.AutoPlayNext {
		return nil
	}
	next, err := s.tracker.Adjacent(ctx, s.lecture.ID, 1)
	if err != nil {
		s.tracker.logger.Warn().Err(err).Str("lecture", s.lecture.ID).Msg("failed to find next lecture")
		return nil
	}
	return next
}

// setCompleted follows an explicit completion change made while the
// session is open. Clearing it lets saving and auto-completion resume.
func (s *Session) setCompleted(completed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.completed = completed
	if !completed {
		s.lastSave = time.Time{}
	}
}

// discard closes the session without writing anything.
func (s *Session) discard() {
	s.mu.Lock()
	s.closed = true
	s.playing = false
	s.mu.Unlock()
}

func (s *Session) pastThreshold(currentTime, duration float64) bool {
	opts := s.tracker.opts
	return opts.AutoMarkCompleted && !s.completed && duration > 0 &&
		currentTime > opts.CompletionThreshold*duration
}

// persist writes the current position. Completed lectures keep their
// reset position, so nothing is written for them.
func (s *Session) persist(ctx context.Context) bool {
	if s.completed {
		return false
	}
	s.tracker.RecordPosition(ctx, s.lecture.ID, s.position)
	return true
}
