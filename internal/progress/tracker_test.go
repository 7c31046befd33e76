package progress

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coursedeck/internal/cache"
	"coursedeck/internal/storage"
)

func newTestTracker(t *testing.T, opts Options) (*Tracker, *memStore) {
	t.Helper()

	store := newMemStore()
	store.addLecture(storage.Lecture{ID: "l1", SectionID: "s1", CourseID: "c1", VideoPath: "/c1/01.mp4", OrderIndex: 0}, 0)
	store.addLecture(storage.Lecture{ID: "l2", SectionID: "s1", CourseID: "c1", VideoPath: "/c1/02.mp4", OrderIndex: 1}, 0)
	store.addLecture(storage.Lecture{ID: "l3", SectionID: "s2", CourseID: "c1", VideoPath: "/c1/03.mp4", OrderIndex: 0}, 1)

	files := existingFiles{"/c1/01.mp4": true, "/c1/02.mp4": true}
	return NewTracker(store, files, cache.NewLRUCache(8), opts, zerolog.Nop()), store
}

func TestTracker_RecordPosition(t *testing.T) {
	tracker, _ := newTestTracker(t, DefaultOptions())
	ctx := context.Background()

	p := tracker.RecordPosition(ctx, "l1", 0)
	assert.Equal(t, storage.Unwatched, p.WatchedState)

	p = tracker.RecordPosition(ctx, "l1", 42)
	assert.Equal(t, storage.Partial, p.WatchedState)
	assert.Equal(t, 42.0, p.PositionSeconds)

	p = tracker.RecordPosition(ctx, "l1", -3)
	assert.Equal(t, storage.Partial, p.WatchedState)
	assert.Zero(t, p.PositionSeconds)

	stored := tracker.LectureProgress(ctx, "l1")
	assert.Equal(t, storage.Partial, stored.WatchedState)
	assert.False(t, stored.LastWatchedAt.IsZero())
}

func TestTracker_RecordPositionKeepsCompleted(t *testing.T) {
	tracker, store := newTestTracker(t, DefaultOptions())
	ctx := context.Background()

	tracker.MarkComplete(ctx, "l1", true)
	saves := store.saveCount()

	p := tracker.RecordPosition(ctx, "l1", 30)
	assert.Equal(t, storage.Completed, p.WatchedState)
	assert.Zero(t, p.PositionSeconds)
	assert.Equal(t, saves, store.saveCount(), "completed lectures are not rewritten")
}

func TestTracker_MarkCompleteIdempotent(t *testing.T) {
	tracker, _ := newTestTracker(t, DefaultOptions())
	ctx := context.Background()

	tracker.RecordPosition(ctx, "l1", 50)

	for range 2 {
		p := tracker.MarkComplete(ctx, "l1", true)
		assert.Equal(t, storage.Completed, p.WatchedState)
		assert.Zero(t, p.PositionSeconds)

		stored := tracker.LectureProgress(ctx, "l1")
		assert.Equal(t, storage.Completed, stored.WatchedState)
		assert.Zero(t, stored.PositionSeconds)
	}
}

func TestTracker_MarkIncompleteKeepsPosition(t *testing.T) {
	tracker, _ := newTestTracker(t, DefaultOptions())
	ctx := context.Background()

	tracker.RecordPosition(ctx, "l1", 75)
	p := tracker.MarkComplete(ctx, "l1", false)
	assert.Equal(t, storage.Unwatched, p.WatchedState)
	assert.Equal(t, 75.0, p.PositionSeconds)

	// Unwatched again, so the next position update moves it to partial.
	p = tracker.RecordPosition(ctx, "l1", 80)
	assert.Equal(t, storage.Partial, p.WatchedState)
}

func TestTracker_ResumePosition(t *testing.T) {
	tracker, _ := newTestTracker(t, DefaultOptions())
	ctx := context.Background()

	assert.Zero(t, tracker.ResumePosition(ctx, "l1", nil))

	tracker.RecordPosition(ctx, "l1", 120)
	assert.Equal(t, 120.0, tracker.ResumePosition(ctx, "l1", nil))

	override := 15.0
	assert.Equal(t, 15.0, tracker.ResumePosition(ctx, "l1", &override))

	tracker.MarkComplete(ctx, "l1", true)
	assert.Zero(t, tracker.ResumePosition(ctx, "l1", nil))
	assert.Equal(t, 15.0, tracker.ResumePosition(ctx, "l1", &override))

	negative := -4.0
	assert.Zero(t, tracker.ResumePosition(ctx, "l1", &negative))
}

func TestTracker_ResumePositionDisabled(t *testing.T) {
	opts := DefaultOptions()
	opts.RememberPosition = false
	tracker, _ := newTestTracker(t, opts)
	ctx := context.Background()

	tracker.RecordPosition(ctx, "l1", 120)
	assert.Zero(t, tracker.ResumePosition(ctx, "l1", nil))
}

func TestSummarize(t *testing.T) {
	var states []storage.LectureState
	add := func(n int, st storage.WatchedState) {
		for range n {
			states = append(states, storage.LectureState{WatchedState: st})
		}
	}
	add(4, storage.Completed)
	add(2, storage.Partial)
	add(4, storage.Unwatched)

	s := Summarize(states)
	assert.Equal(t, Summary{TotalLectures: 10, WatchedCount: 4, PartialCount: 2, CompletionPercentage: 50}, s)

	assert.Equal(t, Summary{}, Summarize(nil))

	thirds := Summarize([]storage.LectureState{
		{WatchedState: storage.Completed},
		{WatchedState: storage.Unwatched},
		{WatchedState: storage.Unwatched},
	})
	assert.Equal(t, 33, thirds.CompletionPercentage)
}

func TestTracker_CourseAndSectionProgress(t *testing.T) {
	tracker, _ := newTestTracker(t, DefaultOptions())
	ctx := context.Background()

	tracker.MarkComplete(ctx, "l1", true)
	tracker.RecordPosition(ctx, "l2", 10)

	course := tracker.CourseProgress(ctx, "c1")
	assert.Equal(t, 3, course.TotalLectures)
	assert.Equal(t, 1, course.WatchedCount)
	assert.Equal(t, 1, course.PartialCount)
	assert.Equal(t, 50, course.CompletionPercentage)

	section := tracker.SectionProgress(ctx, "s1")
	assert.Equal(t, 2, section.TotalLectures)
	assert.Equal(t, 75, section.CompletionPercentage)

	assert.Equal(t, Summary{}, tracker.CourseProgress(ctx, "missing"))
}

func TestTracker_LastPlayed(t *testing.T) {
	tracker, store := newTestTracker(t, DefaultOptions())
	ctx := context.Background()

	_, ok := tracker.GetLastPlayed(ctx, "c1")
	assert.False(t, ok)

	tracker.SetLastPlayed(ctx, "c1", "l1")
	tracker.SetLastPlayed(ctx, "c1", "l2")

	id, ok := tracker.GetLastPlayed(ctx, "c1")
	require.True(t, ok)
	assert.Equal(t, "l2", id)
	assert.Equal(t, "l2", store.lastPlayed["c1"])

	// Served from the cache while the store is down.
	store.setDown(true)
	id, ok = tracker.GetLastPlayed(ctx, "c1")
	assert.True(t, ok)
	assert.Equal(t, "l2", id)

	tracker.ForgetCourse("c1")
	_, ok = tracker.GetLastPlayed(ctx, "c1")
	assert.False(t, ok)
}

func TestTracker_StoreUnavailableDegrades(t *testing.T) {
	tracker, store := newTestTracker(t, DefaultOptions())
	ctx := context.Background()

	tracker.RecordPosition(ctx, "l1", 30)
	store.setDown(true)

	assert.NotPanics(t, func() {
		tracker.RecordPosition(ctx, "l1", 60)
		tracker.MarkComplete(ctx, "l1", true)
		tracker.SetLastPlayed(ctx, "c1", "l1")
	})
	assert.Zero(t, tracker.ResumePosition(ctx, "l1", nil))
	assert.Equal(t, Summary{}, tracker.CourseProgress(ctx, "c1"))

	store.setDown(false)
	p := tracker.LectureProgress(ctx, "l1")
	assert.Equal(t, storage.Partial, p.WatchedState)
	assert.Equal(t, 30.0, p.PositionSeconds)
}

func TestTracker_Adjacent(t *testing.T) {
	tracker, _ := newTestTracker(t, DefaultOptions())
	ctx := context.Background()

	next, err := tracker.Adjacent(ctx, "l2", 1)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, "l3", next.ID, "next crosses into the following section")

	prev, err := tracker.Adjacent(ctx, "l2", -1)
	require.NoError(t, err)
	require.NotNil(t, prev)
	assert.Equal(t, "l1", prev.ID)

	none, err := tracker.Adjacent(ctx, "l3", 1)
	require.NoError(t, err)
	assert.Nil(t, none)

	_, err = tracker.Adjacent(ctx, "nope", 1)
	assert.ErrorIs(t, err, ErrLectureNotFound)
}

func TestTracker_Open(t *testing.T) {
	tracker, store := newTestTracker(t, DefaultOptions())
	ctx := context.Background()

	tracker.RecordPosition(ctx, "l1", 33)

	session, err := tracker.Open(ctx, "l1", nil)
	require.NoError(t, err)
	assert.Equal(t, 33.0, session.StartPosition())
	assert.True(t, session.Playing())
	assert.Equal(t, "l1", store.lastPlayed["c1"])

	_, err = tracker.Open(ctx, "l3", nil)
	assert.ErrorIs(t, err, ErrFileMissing)

	_, err = tracker.Open(ctx, "nope", nil)
	assert.ErrorIs(t, err, ErrLectureNotFound)
}
