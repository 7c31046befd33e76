package api

import (
	"coursedeck/internal/config"
	"coursedeck/internal/progress"
	"coursedeck/internal/storage"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Settings

type SettingsResponse struct {
	Playback  PlaybackSettings       `json:"playback"`
	Subtitles config.SubtitlesConfig `json:"subtitles"`
	Shortcuts config.ShortcutsConfig `json:"shortcuts"`
}

type PlaybackSettings struct {
	DefaultSpeed        float64 `json:"default_speed"`
	AutoPlay            bool    `json:"auto_play"`
	RememberPosition    bool    `json:"remember_position"`
	AutoMarkCompleted   bool    `json:"auto_mark_completed"`
	AutoPlayNext        bool    `json:"auto_play_next"`
	SaveIntervalSeconds float64 `json:"save_interval_seconds"`
	CompletionThreshold float64 `json:"completion_threshold"`
}

// Courses

type ImportCourseRequest struct {
	Path  string `json:"path"`
	Title string `json:"title,omitempty"`
}

type CourseListItem struct {
	storage.Course
	Progress progress.Summary `json:"progress"`
}

type CoursesResponse struct {
	Courses []CourseListItem `json:"courses"`
}

type CourseResponse struct {
	Course              *storage.Course             `json:"course"`
	Progress            progress.Summary            `json:"progress"`
	SectionProgress     map[string]progress.Summary `json:"section_progress"`
	LastPlayedLectureID string                      `json:"last_played_lecture_id,omitempty"`
}

type LastPlayedResponse struct {
	CourseID string           `json:"course_id"`
	Lecture  *storage.Lecture `json:"lecture"`
}

type RefreshDurationsResponse struct {
	Updated   int                      `json:"updated"`
	Durations *storage.CourseDurations `json:"durations"`
}

// Lectures and playback

type OpenLectureRequest struct {
	StartPosition *float64 `json:"start_position,omitempty"`
}

type OpenLectureResponse struct {
	Lecture       storage.Lecture  `json:"lecture"`
	StartPosition float64          `json:"start_position"`
	Progress      storage.Progress `json:"progress"`
	StreamURL     string           `json:"stream_url"`
	SubtitleURL   string           `json:"subtitle_url,omitempty"`
}

type PlaybackEventRequest struct {
	Event    string  `json:"event"` // play, tick, pause, exit, ended
	Position float64 `json:"position"`
	Duration float64 `json:"duration"`
}

type PlaybackEventResponse struct {
	LectureID   string           `json:"lecture_id"`
	Event       string           `json:"event"`
	Saved       bool             `json:"saved"`
	Completed   bool             `json:"completed"`
	Playing     bool             `json:"playing"`
	Position    float64          `json:"position"`
	NextLecture *storage.Lecture `json:"next_lecture,omitempty"`
}

type MarkCompleteRequest struct {
	Completed bool `json:"completed"`
}

type ProgressResponse struct {
	Progress storage.Progress `json:"progress"`
	State    string           `json:"state"`
}

type AdjacentLectureResponse struct {
	Lecture *storage.Lecture `json:"lecture"`
}
