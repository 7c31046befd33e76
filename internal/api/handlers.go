package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"coursedeck/internal/config"
	"coursedeck/internal/fsys"
	"coursedeck/internal/library"
	"coursedeck/internal/media"
	"coursedeck/internal/progress"
	"coursedeck/internal/storage"
	"coursedeck/internal/streaming"
)

const Version = "0.1.0"

type Handler struct {
	storage   *storage.SQLiteStorage
	importer  *library.Importer
	player    *progress.Player
	files     fsys.Service
	durations *media.DurationService
	streamer  *streaming.Handler
	cfg       *config.Config
	logger    zerolog.Logger

	baseCtx context.Context
}

func NewHandler(
	store *storage.SQLiteStorage,
	importer *library.Importer,
	player *progress.Player,
	files fsys.Service,
	cfg *config.Config,
	logger zerolog.Logger,
) *Handler {
	return &Handler{
		storage:  store,
		importer: importer,
		player:   player,
		files:    files,
		streamer: streaming.NewHandler(),
		cfg:      cfg,
		logger:   logger,
		baseCtx:  context.Background(),
	}
}

func (h *Handler) SetDurationService(service *media.DurationService) {
	h.durations = service
}

// SetBaseContext sets the parent of work that outlives its request.
func (h *Handler) SetBaseContext(ctx context.Context) {
	h.baseCtx = ctx
}

func (h *Handler) tracker() *progress.Tracker {
	return h.player.Tracker()
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:  "ok",
		Version: Version,
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	pb := h.cfg.Playback
	writeJSON(w, http.StatusOK, SettingsResponse{
		Playback: PlaybackSettings{
			DefaultSpeed:        pb.DefaultSpeed,
			AutoPlay:            pb.AutoPlay,
			RememberPosition:    pb.RememberPosition,
			AutoMarkCompleted:   pb.AutoMarkCompleted,
			AutoPlayNext:        pb.AutoPlayNext,
			SaveIntervalSeconds: pb.SaveInterval.Seconds(),
			CompletionThreshold: pb.CompletionThreshold,
		},
		Subtitles: h.cfg.Subtitles,
		Shortcuts: h.cfg.Shortcuts,
	})
}

// Course handlers

func (h *Handler) ListCourses(w http.ResponseWriter, r *http.Request) {
	courses, err := h.storage.ListCourses(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list courses")
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list courses")
		return
	}

	items := make([]CourseListItem, 0, len(courses))
	for _, c := range courses {
		items = append(items, CourseListItem{
			Course:   c,
			Progress: h.tracker().CourseProgress(r.Context(), c.ID),
		})
	}

	writeJSON(w, http.StatusOK, CoursesResponse{Courses: items})
}

func (h *Handler) ImportCourse(w http.ResponseWriter, r *http.Request) {
	var req ImportCourseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid request body")
		return
	}

	course, err := h.importer.Import(r.Context(), req.Path, req.Title)
	switch {
	case err == nil:
	case errors.Is(err, library.ErrNoDirectory):
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "Course directory is required")
		return
	case errors.Is(err, library.ErrScanEmpty):
		writeError(w, http.StatusUnprocessableEntity, "SCAN_EMPTY", "No valid course content found")
		return
	case errors.Is(err, storage.ErrCourseExists):
		writeError(w, http.StatusConflict, "COURSE_EXISTS", "Course already imported")
		return
	default:
		h.logger.Error().Err(err).Str("path", req.Path).Msg("course import failed")
		writeError(w, http.StatusInternalServerError, "IMPORT_FAILED", "Course import failed")
		return
	}

	if h.durations != nil {
		go func(courseID string) {
			ctx, cancel := context.WithTimeout(h.baseCtx, 10*time.Minute)
			defer cancel()
			if _, err := h.durations.RefreshCourse(ctx, courseID); err != nil {
				h.logger.Warn().Err(err).Str("course", courseID).Msg("duration refresh after import failed")
			}
		}(course.ID)
	}

	writeJSON(w, http.StatusCreated, h.courseResponse(r.Context(), course))
}

func (h *Handler) GetCourse(w http.ResponseWriter, r *http.Request) {
	course, ok := h.loadCourseDetails(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.courseResponse(r.Context(), course))
}

func (h *Handler) DeleteCourse(w http.ResponseWriter, r *http.Request) {
	courseID := chi.URLParam(r, "id")

	err := h.storage.DeleteCourse(r.Context(), courseID)
	if errors.Is(err, storage.ErrCourseNotFound) {
		writeError(w, http.StatusNotFound, "COURSE_NOT_FOUND", "Course not found")
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Str("id", courseID).Msg("failed to delete course")
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to delete course")
		return
	}

	h.player.ForgetCourse(courseID)
	h.logger.Info().Str("id", courseID).Msg("course deleted")
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetCourseProgress(w http.ResponseWriter, r *http.Request) {
	course, ok := h.loadCourse(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.tracker().CourseProgress(r.Context(), course.ID))
}

func (h *Handler) GetCourseDurations(w http.ResponseWriter, r *http.Request) {
	course, ok := h.loadCourse(w, r)
	if !ok {
		return
	}

	durations, err := h.storage.CourseDurations(r.Context(), course.ID)
	if err != nil {
		h.logger.Error().Err(err).Str("id", course.ID).Msg("failed to get course durations")
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to get durations")
		return
	}
	writeJSON(w, http.StatusOK, durations)
}

func (h *Handler) GetLastPlayed(w http.ResponseWriter, r *http.Request) {
	course, ok := h.loadCourse(w, r)
	if !ok {
		return
	}

	resp := LastPlayedResponse{CourseID: course.ID}
	if lectureID, ok := h.tracker().GetLastPlayed(r.Context(), course.ID); ok {
		lecture, err := h.storage.GetLecture(r.Context(), lectureID)
		if err != nil {
			h.logger.Warn().Err(err).Str("lecture", lectureID).Msg("failed to load last played lecture")
		}
		resp.Lecture = lecture
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) RefreshDurations(w http.ResponseWriter, r *http.Request) {
	course, ok := h.loadCourse(w, r)
	if !ok {
		return
	}
	if h.durations == nil {
		writeError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Duration refresh not available")
		return
	}

	updated, err := h.durations.RefreshCourse(r.Context(), course.ID)
	if errors.Is(err, media.ErrProbeUnavailable) {
		writeError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "ffprobe not available")
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Str("id", course.ID).Msg("duration refresh failed")
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Duration refresh failed")
		return
	}

	durations, err := h.storage.CourseDurations(r.Context(), course.ID)
	if err != nil {
		h.logger.Error().Err(err).Str("id", course.ID).Msg("failed to get course durations")
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to get durations")
		return
	}
	writeJSON(w, http.StatusOK, RefreshDurationsResponse{Updated: updated, Durations: durations})
}

func (h *Handler) GetSectionProgress(w http.ResponseWriter, r *http.Request) {
	sectionID := chi.URLParam(r, "id")
	summary := h.tracker().SectionProgress(r.Context(), sectionID)
	if summary.TotalLectures == 0 {
		writeError(w, http.StatusNotFound, "SECTION_NOT_FOUND", "Section not found")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// Lecture handlers

func (h *Handler) OpenLecture(w http.ResponseWriter, r *http.Request) {
	lectureID := chi.URLParam(r, "id")

	var req OpenLectureRequest
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid request body")
		return
	}

	session, err := h.player.Open(r.Context(), lectureID, req.StartPosition)
	if err != nil {
		h.writePlaybackError(w, lectureID, err)
		return
	}

	lecture := session.Lecture()
	resp := OpenLectureResponse{
		Lecture:       lecture,
		StartPosition: session.StartPosition(),
		Progress:      h.tracker().LectureProgress(r.Context(), lectureID),
		StreamURL:     "/api/v1/lectures/" + lectureID + "/stream",
	}
	if lecture.SubtitlePath != nil {
		resp.SubtitleURL = "/api/v1/lectures/" + lectureID + "/subtitle"
		if media.NeedsVTT(*lecture.SubtitlePath) {
			resp.SubtitleURL += "?format=vtt"
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) PlaybackEvent(w http.ResponseWriter, r *http.Request) {
	lectureID := chi.URLParam(r, "id")

	var req PlaybackEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid request body")
		return
	}

	session, ok := h.player.Session(lectureID)
	if !ok {
		writeError(w, http.StatusConflict, "NOT_PLAYING", "Lecture is not open")
		return
	}

	resp := PlaybackEventResponse{LectureID: lectureID, Event: req.Event}
	ctx := r.Context()

	switch req.Event {
	case "play":
		session.Play()
	case "tick":
		res := session.Tick(ctx, req.Position, req.Duration, time.Now())
		resp.Saved = res.Saved
		resp.Completed = res.Completed
	case "pause":
		resp.Saved = session.Pause(ctx, req.Position)
	case "exit":
		resp.Saved = session.Exit(ctx, req.Position)
	case "ended":
		resp.NextLecture = session.Ended(ctx)
	default:
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "Unknown playback event")
		return
	}

	resp.Playing = session.Playing()
	resp.Position = session.Position()

	h.logger.Debug().
		Str("lecture", lectureID).
		Str("event", req.Event).
		Float64("position", resp.Position).
		Bool("saved", resp.Saved).
		Msg("playback event")

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) MarkComplete(w http.ResponseWriter, r *http.Request) {
	lecture, ok := h.loadLecture(w, r)
	if !ok {
		return
	}

	var req MarkCompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid request body")
		return
	}

	p := h.player.MarkComplete(r.Context(), lecture.ID, req.Completed)
	writeJSON(w, http.StatusOK, ProgressResponse{Progress: p, State: p.WatchedState.String()})
}

func (h *Handler) GetLectureProgress(w http.ResponseWriter, r *http.Request) {
	lecture, ok := h.loadLecture(w, r)
	if !ok {
		return
	}

	p := h.tracker().LectureProgress(r.Context(), lecture.ID)
	writeJSON(w, http.StatusOK, ProgressResponse{Progress: p, State: p.WatchedState.String()})
}

func (h *Handler) NextLecture(w http.ResponseWriter, r *http.Request) {
	h.adjacentLecture(w, r, 1)
}

func (h *Handler) PreviousLecture(w http.ResponseWriter, r *http.Request) {
	h.adjacentLecture(w, r, -1)
}

func (h *Handler) adjacentLecture(w http.ResponseWriter, r *http.Request, step int) {
	lectureID := chi.URLParam(r, "id")

	lecture, err := h.tracker().Adjacent(r.Context(), lectureID, step)
	if errors.Is(err, progress.ErrLectureNotFound) {
		writeError(w, http.StatusNotFound, "LECTURE_NOT_FOUND", "Lecture not found")
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Str("id", lectureID).Msg("failed to find adjacent lecture")
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to find lecture")
		return
	}
	writeJSON(w, http.StatusOK, AdjacentLectureResponse{Lecture: lecture})
}

func (h *Handler) StreamLecture(w http.ResponseWriter, r *http.Request) {
	lecture, ok := h.loadLecture(w, r)
	if !ok {
		return
	}

	if err := h.streamer.ServeFile(w, r, lecture.VideoPath); err != nil {
		h.writeFileError(w, lecture.ID, lecture.VideoPath, err)
	}
}

func (h *Handler) GetSubtitle(w http.ResponseWriter, r *http.Request) {
	lecture, ok := h.loadLecture(w, r)
	if !ok {
		return
	}
	if lecture.SubtitlePath == nil {
		writeError(w, http.StatusNotFound, "SUBTITLE_NOT_FOUND", "Lecture has no subtitle")
		return
	}

	path := *lecture.SubtitlePath
	if r.URL.Query().Get("format") == "vtt" && media.NeedsVTT(path) {
		text, err := h.files.ReadFileText(path)
		if err != nil {
			h.writeFileError(w, lecture.ID, path, err)
			return
		}
		w.Header().Set("Content-Type", media.ContentType(".vtt"))
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, media.SRTToVTT(text))
		return
	}

	if err := h.streamer.ServeFile(w, r, path); err != nil {
		h.writeFileError(w, lecture.ID, path, err)
	}
}

// Helpers

func (h *Handler) courseResponse(ctx context.Context, course *storage.Course) CourseResponse {
	resp := CourseResponse{
		Course:          course,
		Progress:        h.tracker().CourseProgress(ctx, course.ID),
		SectionProgress: make(map[string]progress.Summary, len(course.Sections)),
	}
	for _, s := range course.Sections {
		resp.SectionProgress[s.ID] = h.tracker().SectionProgress(ctx, s.ID)
	}
	if id, ok := h.tracker().GetLastPlayed(ctx, course.ID); ok {
		resp.LastPlayedLectureID = id
	}
	return resp
}

func (h *Handler) loadCourse(w http.ResponseWriter, r *http.Request) (*storage.Course, bool) {
	courseID := chi.URLParam(r, "id")

	course, err := h.storage.GetCourse(r.Context(), courseID)
	if err != nil {
		h.logger.Error().Err(err).Str("id", courseID).Msg("failed to get course")
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to get course")
		return nil, false
	}
	if course == nil {
		writeError(w, http.StatusNotFound, "COURSE_NOT_FOUND", "Course not found")
		return nil, false
	}
	return course, true
}

func (h *Handler) loadCourseDetails(w http.ResponseWriter, r *http.Request) (*storage.Course, bool) {
	courseID := chi.URLParam(r, "id")

	course, err := h.storage.GetCourseDetails(r.Context(), courseID)
	if err != nil {
		h.logger.Error().Err(err).Str("id", courseID).Msg("failed to get course details")
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to get course")
		return nil, false
	}
	if course == nil {
		writeError(w, http.StatusNotFound, "COURSE_NOT_FOUND", "Course not found")
		return nil, false
	}
	return course, true
}

func (h *Handler) loadLecture(w http.ResponseWriter, r *http.Request) (*storage.Lecture, bool) {
	lectureID := chi.URLParam(r, "id")

	lecture, err := h.storage.GetLecture(r.Context(), lectureID)
	if err != nil {
		h.logger.Error().Err(err).Str("id", lectureID).Msg("failed to get lecture")
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to get lecture")
		return nil, false
	}
	if lecture == nil {
		writeError(w, http.StatusNotFound, "LECTURE_NOT_FOUND", "Lecture not found")
		return nil, false
	}
	return lecture, true
}

func (h *Handler) writePlaybackError(w http.ResponseWriter, lectureID string, err error) {
	switch {
	case errors.Is(err, progress.ErrLectureNotFound):
		writeError(w, http.StatusNotFound, "LECTURE_NOT_FOUND", "Lecture not found")
	case errors.Is(err, progress.ErrFileMissing):
		h.logger.Warn().Err(err).Str("id", lectureID).Msg("lecture file missing")
		writeError(w, http.StatusNotFound, "FILE_MISSING", "Lecture video not found on disk")
	default:
		h.logger.Error().Err(err).Str("id", lectureID).Msg("failed to open lecture")
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to open lecture")
	}
}

func (h *Handler) writeFileError(w http.ResponseWriter, lectureID, path string, err error) {
	if errors.Is(err, os.ErrNotExist) {
		h.logger.Warn().Str("id", lectureID).Str("path", path).Msg("lecture file missing")
		writeError(w, http.StatusNotFound, "FILE_MISSING", "File not found on disk")
		return
	}
	h.logger.Error().Err(err).Str("id", lectureID).Str("path", path).Msg("failed to serve file")
	writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Cannot read file")
}

// decodeOptional accepts an empty body.
func decodeOptional(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}
