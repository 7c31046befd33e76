package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

var (
	ErrCourseExists   = errors.New("course already imported")
	ErrCourseNotFound = errors.New("course not found")
)

type SQLiteStorage struct {
	db *sql.DB
}

type rowScanner interface {
	Scan(dest ...any) error
}

func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// A single connection serialises writers: a course deletion and a
	// progress save never interleave.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStorage{db: db}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *SQLiteStorage) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS courses (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		root_path TEXT NOT NULL UNIQUE,
		date_added DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sections (
		id TEXT PRIMARY KEY,
		course_id TEXT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
		title TEXT NOT NULL,
		order_index INTEGER NOT NULL,
		UNIQUE(course_id, order_index)
	);

	CREATE TABLE IF NOT EXISTS lectures (
		id TEXT PRIMARY KEY,
		section_id TEXT NOT NULL REFERENCES sections(id) ON DELETE CASCADE,
		course_id TEXT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
		title TEXT NOT NULL,
		video_path TEXT NOT NULL,
		subtitle_path TEXT,
		duration_seconds INTEGER NOT NULL DEFAULT 0 CHECK (duration_seconds >= 0),
		order_index INTEGER NOT NULL,
		UNIQUE(section_id, order_index)
	);

	CREATE INDEX IF NOT EXISTS idx_sections_course ON sections(course_id, order_index);
	CREATE INDEX IF NOT EXISTS idx_lectures_section ON lectures(section_id, order_index);
	CREATE INDEX IF NOT EXISTS idx_lectures_course ON lectures(course_id);

	CREATE TABLE IF NOT EXISTS progress (
		lecture_id TEXT PRIMARY KEY REFERENCES lectures(id) ON DELETE CASCADE,
		watched_state REAL NOT NULL DEFAULT 0,
		position_seconds REAL NOT NULL DEFAULT 0,
		last_watched_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS last_played (
		course_id TEXT PRIMARY KEY REFERENCES courses(id) ON DELETE CASCADE,
		lecture_id TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// Courses

// AddCourse persists a scanned course draft with all of its sections and
// lectures in one transaction. Ids are assigned here; the order of the
// draft's slices becomes the order index.
func (s *SQLiteStorage) AddCourse(ctx context.Context, draft *Course) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin import: %w", err)
	}
	defer tx.Rollback()

	var existing string
	err = tx.QueryRowContext(ctx, "SELECT id FROM courses WHERE root_path = ?", draft.RootPath).Scan(&existing)
	if err == nil {
		return "", fmt.Errorf("%w: %s", ErrCourseExists, draft.RootPath)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("check existing course: %w", err)
	}

	courseID := uuid.NewString()
	dateAdded := draft.DateAdded
	if dateAdded.IsZero() {
		dateAdded = time.Now().UTC()
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO courses (id, title, root_path, date_added)
		VALUES (?, ?, ?, ?)
	`, courseID, draft.Title, draft.RootPath, dateAdded); err != nil {
		return "", fmt.Errorf("insert course: %w", err)
	}

	for i, section := range draft.Sections {
		sectionID := uuid.NewString()
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sections (id, course_id, title, order_index)
			VALUES (?, ?, ?, ?)
		`, sectionID, courseID, section.Title, i); err != nil {
			return "", fmt.Errorf("insert section %q: %w", section.Title, err)
		}

		for j, lecture := range section.Lectures {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO lectures (
					id, section_id, course_id, title, video_path, subtitle_path, duration_seconds, order_index
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			`,
				uuid.NewString(), sectionID, courseID, lecture.Title,
				lecture.VideoPath, lecture.SubtitlePath, max(lecture.DurationSeconds, 0), j,
			); err != nil {
				return "", fmt.Errorf("insert lecture %q: %w", lecture.Title, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit import: %w", err)
	}

	return courseID, nil
}

func (s *SQLiteStorage) ListCourses(ctx context.Context) ([]Course, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, root_path, date_added
		FROM courses ORDER BY date_added DESC, title
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var courses []Course
	for rows.Next() {
		var c Course
		if err := rows.Scan(&c.ID, &c.Title, &c.RootPath, &c.DateAdded); err != nil {
			return nil, err
		}
		courses = append(courses, c)
	}

	return courses, rows.Err()
}

// GetCourse returns the course row without its sections, or nil if it does
// not exist.
func (s *SQLiteStorage) GetCourse(ctx context.Context, id string) (*Course, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, root_path, date_added
		FROM courses WHERE id = ?
	`, id)

	var c Course
	err := row.Scan(&c.ID, &c.Title, &c.RootPath, &c.DateAdded)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &c, nil
}

// GetCourseDetails returns the course with its sections and lectures in
// order, or nil if it does not exist.
func (s *SQLiteStorage) GetCourseDetails(ctx context.Context, id string) (*Course, error) {
	course, err := s.GetCourse(ctx, id)
	if err != nil || course == nil {
		return course, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, course_id, title, order_index
		FROM sections WHERE course_id = ? ORDER BY order_index
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sectionIndex := make(map[string]int)
	course.Sections = []Section{}
	for rows.Next() {
		var sec Section
		if err := rows.Scan(&sec.ID, &sec.CourseID, &sec.Title, &sec.OrderIndex); err != nil {
			return nil, err
		}
		sec.Lectures = []Lecture{}
		sectionIndex[sec.ID] = len(course.Sections)
		course.Sections = append(course.Sections, sec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	lectures, err := s.CourseLectures(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, l := range lectures {
		if i, ok := sectionIndex[l.SectionID]; ok {
			course.Sections[i].Lectures = append(course.Sections[i].Lectures, l)
		}
	}

	return course, nil
}

// DeleteCourse removes the course and everything below it. Dependents are
// deleted first so no orphaned progress, lecture or section row is ever
// visible.
func (s *SQLiteStorage) DeleteCourse(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM courses WHERE id = ?", id).Scan(&exists); err != nil {
		return fmt.Errorf("check course: %w", err)
	}
	if exists == 0 {
		return ErrCourseNotFound
	}

	steps := []struct {
		name  string
		query string
	}{
		{"progress", "DELETE FROM progress WHERE lecture_id IN (SELECT id FROM lectures WHERE course_id = ?)"},
		{"lectures", "DELETE FROM lectures WHERE course_id = ?"},
		{"sections", "DELETE FROM sections WHERE course_id = ?"},
		{"last played", "DELETE FROM last_played WHERE course_id = ?"},
		{"course", "DELETE FROM courses WHERE id = ?"},
	}
	for _, step := range steps {
		if _, err := tx.ExecContext(ctx, step.query, id); err != nil {
			return fmt.Errorf("delete %s: %w", step.name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}
	return nil
}

// CourseDurations sums the known durations of a course's lectures.
func (s *SQLiteStorage) CourseDurations(ctx context.Context, courseID string) (*CourseDurations, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, COALESCE(SUM(l.duration_seconds), 0)
		FROM sections s LEFT JOIN lectures l ON l.section_id = s.id
		WHERE s.course_id = ?
		GROUP BY s.id
	`, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	d := &CourseDurations{Sections: make(map[string]int64)}
	for rows.Next() {
		var sectionID string
		var total int64
		if err := rows.Scan(&sectionID, &total); err != nil {
			return nil, err
		}
		d.Sections[sectionID] = total
		d.Total += total
	}

	return d, rows.Err()
}

// Lectures

const lectureColumns = `
	id, section_id, course_id, title, video_path, subtitle_path, duration_seconds, order_index
`

func scanLecture(row rowScanner) (Lecture, error) {
	var l Lecture
	var subtitle sql.NullString
	err := row.Scan(
		&l.ID, &l.SectionID, &l.CourseID, &l.Title,
		&l.VideoPath, &subtitle, &l.DurationSeconds, &l.OrderIndex,
	)
	if subtitle.Valid {
		l.SubtitlePath = &subtitle.String
	}
	return l, err
}

func (s *SQLiteStorage) GetLecture(ctx context.Context, id string) (*Lecture, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+lectureColumns+" FROM lectures WHERE id = ?", id)

	l, err := scanLecture(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &l, nil
}

// CourseLectures returns every lecture of a course in playback order.
func (s *SQLiteStorage) CourseLectures(ctx context.Context, courseID string) ([]Lecture, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT l.id, l.section_id, l.course_id, l.title, l.video_path, l.subtitle_path,
		       l.duration_seconds, l.order_index
		FROM lectures l JOIN sections s ON s.id = l.section_id
		WHERE l.course_id = ?
		ORDER BY s.order_index, l.order_index
	`, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanLectures(rows)
}

// LecturesWithoutDuration returns lectures whose duration is still unknown.
// An empty courseID matches every course; limit <= 0 means no limit.
func (s *SQLiteStorage) LecturesWithoutDuration(ctx context.Context, courseID string, limit int) ([]Lecture, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, "SELECT "+lectureColumns+`
		FROM lectures
		WHERE duration_seconds = 0 AND (? = '' OR course_id = ?)
		ORDER BY course_id, section_id, order_index
		LIMIT ?
	`, courseID, courseID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanLectures(rows)
}

func scanLectures(rows *sql.Rows) ([]Lecture, error) {
	lectures := []Lecture{}
	for rows.Next() {
		l, err := scanLecture(rows)
		if err != nil {
			return nil, err
		}
		lectures = append(lectures, l)
	}
	return lectures, rows.Err()
}

// UpdateLectureDuration records a measured duration. A zero measurement is
// ignored and a previously measured duration is never overwritten.
func (s *SQLiteStorage) UpdateLectureDuration(ctx context.Context, lectureID string, seconds int64) error {
	if seconds < 0 {
		return fmt.Errorf("invalid duration %d for lecture %s", seconds, lectureID)
	}
	if seconds == 0 {
		return nil
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE lectures SET duration_seconds = ?
		WHERE id = ? AND duration_seconds = 0
	`, seconds, lectureID)
	return err
}

// Progress

// GetProgress returns the progress record of a lecture, or nil if none has
// been written yet.
func (s *SQLiteStorage) GetProgress(ctx context.Context, lectureID string) (*Progress, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT lecture_id, watched_state, position_seconds, last_watched_at
		FROM progress WHERE lecture_id = ?
	`, lectureID)

	var p Progress
	err := row.Scan(&p.LectureID, &p.WatchedState, &p.PositionSeconds, &p.LastWatchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &p, nil
}

// SaveProgress upserts a progress record. Writes for a lecture that no
// longer exists are dropped.
func (s *SQLiteStorage) SaveProgress(ctx context.Context, p *Progress) error {
	lastWatched := p.LastWatchedAt
	if lastWatched.IsZero() {
		lastWatched = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO progress (lecture_id, watched_state, position_seconds, last_watched_at)
		SELECT ?, ?, ?, ?
		WHERE EXISTS (SELECT 1 FROM lectures WHERE id = ?)
		ON CONFLICT(lecture_id) DO UPDATE SET
			watched_state = excluded.watched_state,
			position_seconds = excluded.position_seconds,
			last_watched_at = excluded.last_watched_at
	`, p.LectureID, float64(p.WatchedState), p.PositionSeconds, lastWatched, p.LectureID)
	return err
}

// CourseLectureStates lists the watched state of every lecture in a course.
func (s *SQLiteStorage) CourseLectureStates(ctx context.Context, courseID string) ([]LectureState, error) {
	return s.lectureStates(ctx, "l.course_id = ?", courseID)
}

// SectionLectureStates lists the watched state of every lecture in a section.
func (s *SQLiteStorage) SectionLectureStates(ctx context.Context, sectionID string) ([]LectureState, error) {
	return s.lectureStates(ctx, "l.section_id = ?", sectionID)
}

func (s *SQLiteStorage) lectureStates(ctx context.Context, where string, arg string) ([]LectureState, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT l.id, l.section_id, COALESCE(p.watched_state, 0)
		FROM lectures l LEFT JOIN progress p ON p.lecture_id = l.id
		WHERE `+where, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var states []LectureState
	for rows.Next() {
		var st LectureState
		if err := rows.Scan(&st.LectureID, &st.SectionID, &st.WatchedState); err != nil {
			return nil, err
		}
		states = append(states, st)
	}

	return states, rows.Err()
}

// Last played

func (s *SQLiteStorage) SetLastPlayed(ctx context.Context, courseID, lectureID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO last_played (course_id, lecture_id, updated_at)
		SELECT ?, ?, ?
		WHERE EXISTS (SELECT 1 FROM courses WHERE id = ?)
		ON CONFLICT(course_id) DO UPDATE SET
			lecture_id = excluded.lecture_id,
			updated_at = excluded.updated_at
	`, courseID, lectureID, time.Now().UTC(), courseID)
	return err
}

// GetLastPlayed returns the last opened lecture of a course, or "" if none.
func (s *SQLiteStorage) GetLastPlayed(ctx context.Context, courseID string) (string, error) {
	var lectureID string
	err := s.db.QueryRowContext(ctx,
		"SELECT lecture_id FROM last_played WHERE course_id = ?", courseID,
	).Scan(&lectureID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return lectureID, err
}
