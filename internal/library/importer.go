// Package library imports course directories into the store.
package library

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"coursedeck/internal/fsys"
	"coursedeck/internal/media"
	"coursedeck/internal/storage"
)

var (
	ErrScanEmpty    = errors.New("no valid course content found")
	ErrImportFailed = errors.New("course import failed")
	ErrNoDirectory  = errors.New("no directory selected")
)

type Store interface {
	AddCourse(ctx context.Context, draft *storage.Course) (string, error)
	GetCourseDetails(ctx context.Context, id string) (*storage.Course, error)
}

type Importer struct {
	files  fsys.Service
	store  Store
	logger zerolog.Logger
	group  singleflight.Group
}

func NewImporter(files fsys.Service, store Store, logger zerolog.Logger) *Importer {
	return &Importer{
		files:  files,
		store:  store,
		logger: logger,
	}
}

// Import scans a course directory and stores it. title overrides the
// directory name when not empty. Concurrent imports of the same directory
// share one run.
func (i *Importer) Import(ctx context.Context, path, title string) (*storage.Course, error) {
	if strings.TrimSpace(path) == "" {
		return nil, ErrNoDirectory
	}
	root := filepath.Clean(path)

	// Joined callers must not fail because the first caller went away.
	v, err, shared := i.group.Do(root, func() (any, error) {
		return i.importDir(context.WithoutCancel(ctx), root, title)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		i.logger.Debug().Str("path", root).Msg("joined in-flight import")
	}
	return v.(*storage.Course), nil
}

// ImportPicked asks the picker for a directory and imports it.
func (i *Importer) ImportPicked(ctx context.Context, picker fsys.DirectoryPicker) (*storage.Course, error) {
	path, ok, err := picker.PickDirectory(ctx)
	if err != nil {
		return nil, fmt.Errorf("pick directory: %w", err)
	}
	if !ok {
		return nil, ErrNoDirectory
	}
	return i.Import(ctx, path, "")
}

func (i *Importer) importDir(ctx context.Context, root, title string) (*storage.Course, error) {
	i.logger.Info().Str("path", root).Msg("importing course")

	files, err := i.files.ListFilesRecursively(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %w", ErrImportFailed, root, err)
	}

	draft := media.ScanCourse(root, files)
	if len(draft.Sections) == 0 {
		i.logger.Warn().Str("path", root).Int("files", len(files)).Msg("no videos found")
		return nil, fmt.Errorf("%w in %s", ErrScanEmpty, root)
	}
	if title = strings.TrimSpace(title); title != "" {
		draft.Title = title
	}

	id, err := i.store.AddCourse(ctx, draft)
	if errors.Is(err, storage.ErrCourseExists) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrImportFailed, err)
	}

	course, err := i.store.GetCourseDetails(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: reload course: %w", ErrImportFailed, err)
	}
	if course == nil {
		return nil, fmt.Errorf("%w: course %s vanished after import", ErrImportFailed, id)
	}

	lectures := 0
	for _, s := range course.Sections {
		lectures += len(s.Lectures)
	}
	i.logger.Info().
		Str("id", course.ID).
		Str("title", course.Title).
		Int("sections", len(course.Sections)).
		Int("lectures", lectures).
		Msg("course imported")

	return course, nil
}
