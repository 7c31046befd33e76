// Package fsys is the file-system access service used by the importer,
// the playback tracker and the duration refresher.
package fsys

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type FileEntry struct {
	Name       string    `json:"name"`
	Path       string    `json:"path"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
}

type Service interface {
	ListFilesRecursively(ctx context.Context, root string) ([]FileEntry, error)
	ReadFileText(path string) (string, error)
	FileExists(path string) bool
}

// DirectoryPicker asks the user for a course directory. ok is false when
// the user cancelled.
type DirectoryPicker interface {
	PickDirectory(ctx context.Context) (path string, ok bool, err error)
}

// StaticPicker always answers with the same directory. An empty Path means
// nothing was picked.
type StaticPicker struct {
	Path string
}

func (p StaticPicker) PickDirectory(context.Context) (string, bool, error) {
	if p.Path == "" {
		return "", false, nil
	}
	return p.Path, true, nil
}

// Local implements Service on the host file system.
type Local struct {
	logger zerolog.Logger
}

func NewLocal(logger zerolog.Logger) *Local {
	return &Local{logger: logger}
}

// ListFilesRecursively returns every regular file below root. Hidden files
// and directories are skipped, as are entries that cannot be read.
func (l *Local) ListFilesRecursively(ctx context.Context, root string) ([]FileEntry, error) {
	root = filepath.Clean(root)

	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, &fs.PathError{Op: "list", Path: root, Err: errors.New("not a directory")}
	}

	var files []FileEntry
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			l.logger.Warn().Err(err).Str("path", path).Msg("failed to access path")
			if d != nil && d.IsDir() && path != root {
				return filepath.SkipDir
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if path != root && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			l.logger.Warn().Err(err).Str("path", path).Msg("failed to get file info")
			return nil
		}

		files = append(files, FileEntry{
			Name:       d.Name(),
			Path:       path,
			Size:       info.Size(),
			ModifiedAt: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.logger.Debug().Str("root", root).Int("files", len(files)).Msg("listed files")
	return files, nil
}

func (l *Local) ReadFileText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (l *Local) FileExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
