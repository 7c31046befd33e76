package media

import (
	"path"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	"coursedeck/internal/fsys"
	"coursedeck/internal/storage"
)

// FlatSectionTitle names the section holding videos that sit directly in
// the course root.
const FlatSectionTitle = "All Lectures"

// flatSectionKey cannot collide with a folder name: no file system allows
// NUL in a path segment.
const flatSectionKey = "\x00flat"

type sectionDraft struct {
	key      string
	lectures []*lectureDraft
}

type lectureDraft struct {
	filename string
	dir      string
	lecture  storage.Lecture
}

// ScanCourse turns a recursive file listing of basePath into a course tree
// ready for AddCourse. Only videos and subtitles are considered; files that
// are not below basePath are ignored. It performs no I/O.
//
// The first path segment below basePath becomes the section. Videos directly
// in basePath go to a single flat section. Sections and lectures are ordered
// by their numeric prefix, unprefixed entries last in listing order.
func ScanCourse(basePath string, files []fsys.FileEntry) *storage.Course {
	root := normalizePath(basePath)

	course := &storage.Course{
		Title:    CourseTitle(basePath),
		RootPath: basePath,
		Sections: []storage.Section{},
	}

	var (
		sections  []*sectionDraft
		byKey     = make(map[string]*sectionDraft)
		subtitles []string
	)

	for _, f := range files {
		video, subtitle := IsVideo(f.Path), IsSubtitle(f.Path)
		if !video && !subtitle {
			continue
		}

		segments, ok := relativeSegments(root, f.Path)
		if !ok {
			continue
		}

		if subtitle {
			subtitles = append(subtitles, f.Path)
			continue
		}

		key := flatSectionKey
		if len(segments) > 1 {
			key = segments[0]
		}
		section, ok := byKey[key]
		if !ok {
			section = &sectionDraft{key: key}
			byKey[key] = section
			sections = append(sections, section)
		}

		filename := segments[len(segments)-1]
		section.lectures = append(section.lectures, &lectureDraft{
			filename: filename,
			dir:      path.Dir(normalizePath(f.Path)),
			lecture: storage.Lecture{
				Title:     LectureTitle(filename),
				VideoPath: f.Path,
			},
		})
	}

	for _, sub := range subtitles {
		attachSubtitle(sections, sub)
	}

	sort.SliceStable(sections, func(i, j int) bool {
		return OrderPrefix(sections[i].key) < OrderPrefix(sections[j].key)
	})

	for _, sd := range sections {
		sort.SliceStable(sd.lectures, func(i, j int) bool {
			return OrderPrefix(sd.lectures[i].filename) < OrderPrefix(sd.lectures[j].filename)
		})

		section := storage.Section{
			Title:      sectionTitle(sd.key),
			OrderIndex: len(course.Sections),
			Lectures:   make([]storage.Lecture, 0, len(sd.lectures)),
		}
		for i, ld := range sd.lectures {
			ld.lecture.OrderIndex = i
			section.Lectures = append(section.Lectures, ld.lecture)
		}
		course.Sections = append(course.Sections, section)
	}

	return course
}

// attachSubtitle assigns a subtitle to the first lecture that matches it.
// An exact base name match wins over a title contained in the subtitle
// name, and a match in the subtitle's own folder wins over one elsewhere.
// Lectures that already carry a subtitle are skipped.
func attachSubtitle(sections []*sectionDraft, subtitlePath string) {
	subBase := BaseName(subtitlePath)
	subDir := path.Dir(normalizePath(subtitlePath))

	matchers := []func(ld *lectureDraft) bool{
		func(ld *lectureDraft) bool {
			return ld.dir == subDir && BaseName(ld.filename) == subBase
		},
		func(ld *lectureDraft) bool {
			return BaseName(ld.filename) == subBase
		},
		func(ld *lectureDraft) bool {
			return ld.lecture.Title != "" && strings.Contains(subBase, ld.lecture.Title)
		},
	}

	for _, match := range matchers {
		for _, sd := range sections {
			for _, ld := range sd.lectures {
				if ld.lecture.SubtitlePath != nil || !match(ld) {
					continue
				}
				p := subtitlePath
				ld.lecture.SubtitlePath = &p
				return
			}
		}
	}
}

// CourseTitle is the final segment of the course root.
func CourseTitle(basePath string) string {
	root := normalizePath(basePath)
	if title := norm.NFC.String(lastSegment(root)); title != "" {
		return title
	}
	return strings.TrimSpace(basePath)
}

func sectionTitle(key string) string {
	if key == flatSectionKey {
		return FlatSectionTitle
	}
	return CleanName(key)
}

// relativeSegments splits p below root into its path segments. ok is false
// when p is not inside root.
func relativeSegments(root, p string) ([]string, bool) {
	p = normalizePath(p)

	var rest string
	switch {
	case root == "/":
		rest = strings.TrimPrefix(p, "/")
	case root == ".":
		rest = p
	case strings.HasPrefix(p, root+"/"):
		rest = p[len(root)+1:]
	default:
		return nil, false
	}

	var segments []string
	for _, s := range strings.Split(rest, "/") {
		if s != "" && s != "." {
			segments = append(segments, s)
		}
	}
	if len(segments) == 0 {
		return nil, false
	}
	return segments, true
}

func normalizePath(p string) string {
	p = strings.ReplaceAll(strings.TrimSpace(p), `\`, "/")
	if p == "" {
		return "."
	}
	return path.Clean(p)
}
