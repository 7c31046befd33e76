package media

import (
	"regexp"
	"strings"
)

// srtTiming matches an SRT cue timing line: 00:02:16,612 --> 00:02:19,376
var srtTiming = regexp.MustCompile(`^(\d{1,2}:\d{2}:\d{2}),(\d{3})\s*-->\s*(\d{1,2}:\d{2}:\d{2}),(\d{3})(.*)$`)

// NeedsVTT reports whether a subtitle file has to be converted before a
// browser text track can load it.
func NeedsVTT(path string) bool {
	return extension(path) == ".srt"
}

// SRTToVTT converts SubRip text to WebVTT. Cue numbers are dropped and
// blocks without a valid timing line are skipped.
func SRTToVTT(srt string) string {
	srt = strings.TrimPrefix(srt, "\ufeff")
	srt = strings.ReplaceAll(srt, "\r\n", "\n")
	srt = strings.ReplaceAll(srt, "\r", "\n")

	var b strings.Builder
	b.WriteString("WEBVTT\n\n")

	for _, block := range strings.Split(srt, "\n\n") {
		lines := strings.Split(strings.Trim(block, "\n"), "\n")

		timing := -1
		for i, line := range lines {
			if i > 1 {
				break
			}
			if srtTiming.MatchString(strings.TrimSpace(line)) {
				timing = i
				break
			}
		}
		if timing < 0 {
			continue
		}

		text := lines[timing+1:]
		if len(text) == 0 {
			continue
		}

		b.WriteString(srtTiming.ReplaceAllString(strings.TrimSpace(lines[timing]), "$1.$2 --> $3.$4$5"))
		b.WriteByte('\n')
		b.WriteString(strings.Join(text, "\n"))
		b.WriteString("\n\n")
	}

	return b.String()
}
