package storage

import "time"

// WatchedState is the ternary progress marker of a lecture.
type WatchedState float64

const (
	Unwatched WatchedState = 0
	Partial   WatchedState = 0.5
	Completed WatchedState = 1
)

func (s WatchedState) String() string {
	switch s {
	case Completed:
		return "completed"
	case Partial:
		return "partial"
	default:
		return "unwatched"
	}
}

type Course struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	RootPath  string    `json:"root_path"`
	DateAdded time.Time `json:"date_added"`
	Sections  []Section `json:"sections,omitempty"`
}

type Section struct {
	ID         string    `json:"id"`
	CourseID   string    `json:"course_id"`
	Title      string    `json:"title"`
	OrderIndex int       `json:"order_index"`
	Lectures   []Lecture `json:"lectures,omitempty"`
}

type Lecture struct {
	ID              string  `json:"id"`
	SectionID       string  `json:"section_id"`
	CourseID        string  `json:"course_id"`
	Title           string  `json:"title"`
	VideoPath       string  `json:"video_path"`
	SubtitlePath    *string `json:"subtitle_path,omitempty"`
	DurationSeconds int64   `json:"duration_seconds"` // 0 = unknown
	OrderIndex      int     `json:"order_index"`
}

type Progress struct {
	LectureID       string       `json:"lecture_id"`
	WatchedState    WatchedState `json:"watched_state"`
	PositionSeconds float64      `json:"position_seconds"`
	LastWatchedAt   time.Time    `json:"last_watched_at"`
}

// LectureState pairs a lecture with its watched state for aggregation.
// Lectures without a progress record are Unwatched.
type LectureState struct {
	LectureID    string
	SectionID    string
	WatchedState WatchedState
}

// CourseDurations sums known lecture durations, in seconds.
type CourseDurations struct {
	Total    int64            `json:"total"`
	Sections map[string]int64 `json:"sections"`
}
