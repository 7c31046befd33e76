package progress

import (
	"context"
	"sync"

	"coursedeck/internal/storage"
)

// Player keeps at most one active playback session.
type Player struct {
	tracker *Tracker

	mu     sync.Mutex
	active *Session
}

func NewPlayer(tracker *Tracker) *Player {
	return &Player{tracker: tracker}
}

func (p *Player) Tracker() *Tracker {
	return p.tracker
}

// Open starts playback of a lecture. A session that is still running is
// exited first, saving its position.
func (p *Player) Open(ctx context.Context, lectureID string, override *float64) (*Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	session, err := p.tracker.Open(ctx, lectureID, override)
	if err != nil {
		return nil, err
	}

	if p.active != nil && !p.active.Closed() {
		p.active.Exit(ctx, p.active.Position())
	}
	p.active = session
	return session, nil
}

// Session returns the active session when it belongs to lectureID.
func (p *Player) Session(lectureID string) (*Session, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.active == nil || p.active.Closed() || p.active.Lecture().ID != lectureID {
		return nil, false
	}
	return p.active, true
}

func (p *Player) Active() *Session {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.active == nil || p.active.Closed() {
		return nil
	}
	return p.active
}

// MarkComplete changes a lecture's completion and keeps an open session of
// that lecture in step with it.
func (p *Player) MarkComplete(ctx context.Context, lectureID string, completed bool) storage.Progress {
	p.mu.Lock()
	defer p.mu.Unlock()

	updated := p.tracker.MarkComplete(ctx, lectureID, completed)
	if p.active != nil && !p.active.Closed() && p.active.Lecture().ID == lectureID {
		p.active.setCompleted(completed)
	}
	return updated
}

// Close exits the active session, if any.
func (p *Player) Close(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.active != nil {
		p.active.Exit(ctx, p.active.Position())
		p.active = nil
	}
}

// ForgetCourse stops playback of a deleted course without saving and drops
// its cached state.
func (p *Player) ForgetCourse(courseID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.active != nil && p.active.Lecture().CourseID == courseID {
		p.active.discard()
		p.active = nil
	}
	p.tracker.ForgetCourse(courseID)
}
