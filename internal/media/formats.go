package media

import (
	"math"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Unordered is the order prefix of names without leading digits. It sorts
// after every real prefix.
const Unordered = math.MaxInt

var supportedVideoExtensions = map[string]bool{
	".mp4":  true,
	".mkv":  true,
	".avi":  true,
	".mov":  true,
	".webm": true,
}

var supportedSubtitleExtensions = map[string]bool{
	".srt": true,
	".vtt": true,
	".ass": true,
	".ssa": true,
}

var orderPrefixPattern = regexp.MustCompile(`^\d+[\s\-_.:]+`)

func IsVideo(path string) bool {
	return supportedVideoExtensions[extension(path)]
}

func IsSubtitle(path string) bool {
	return supportedSubtitleExtensions[extension(path)]
}

// OrderPrefix returns the integer formed by the leading digits of name, or
// Unordered when there are none.
func OrderPrefix(name string) int {
	name = strings.TrimSpace(name)
	end := 0
	for end < len(name) && name[end] >= '0' && name[end] <= '9' {
		end++
	}
	if end == 0 {
		return Unordered
	}
	n, err := strconv.Atoi(name[:end])
	if err != nil {
		return Unordered
	}
	return n
}

// CleanName strips one leading "<digits><separators>" prefix, e.g.
// "03 - Introduction" -> "Introduction". Names that would become empty are
// returned trimmed but otherwise unchanged.
func CleanName(name string) string {
	name = strings.TrimSpace(norm.NFC.String(name))
	cleaned := strings.TrimSpace(orderPrefixPattern.ReplaceAllString(name, ""))
	if cleaned == "" {
		return name
	}
	return cleaned
}

// LectureTitle derives a display title from a video filename.
func LectureTitle(filename string) string {
	return CleanName(BaseName(filename))
}

// BaseName returns the final path element without its extension.
func BaseName(path string) string {
	name := lastSegment(path)
	return norm.NFC.String(strings.TrimSuffix(name, filepath.Ext(name)))
}

func ContentType(filename string) string {
	switch extension(filename) {
	case ".mp4":
		return "video/mp4"
	case ".mkv":
		return "video/x-matroska"
	case ".avi":
		return "video/x-msvideo"
	case ".webm":
		return "video/webm"
	case ".mov":
		return "video/quicktime"
	case ".vtt":
		return "text/vtt; charset=utf-8"
	case ".srt":
		return "application/x-subrip; charset=utf-8"
	case ".ass", ".ssa":
		return "text/x-ssa; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}

func extension(path string) string {
	return strings.ToLower(filepath.Ext(lastSegment(path)))
}

// lastSegment splits on both separators so Windows-style paths listed on
// another platform still classify correctly.
func lastSegment(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		return path[i+1:]
	}
	return path
}
