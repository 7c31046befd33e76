package streaming

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"coursedeck/internal/media"
)

// Handler serves lecture videos and subtitles from local disk with range
// support.
type Handler struct{}

func NewHandler() *Handler {
	return &Handler{}
}

// ServeFile writes the file at filePath. Nothing is written when the file
// cannot be opened; the returned error wraps os.ErrNotExist for missing
// files.
func (h *Handler) ServeFile(w http.ResponseWriter, r *http.Request, filePath string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return err
	}
	if stat.IsDir() {
		return fmt.Errorf("%s: %w", filePath, os.ErrNotExist)
	}

	w.Header().Set("Content-Type", media.ContentType(filePath))
	w.Header().Set("Accept-Ranges", "bytes")

	http.ServeContent(w, r, filepath.Base(filePath), stat.ModTime(), file)
	return nil
}
