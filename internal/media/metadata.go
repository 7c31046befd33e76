package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var ErrProbeUnavailable = errors.New("ffprobe not available")

type Metadata struct {
	Duration   int64 // seconds, rounded
	VideoCodec string
	AudioCodec string
}

// MetadataExtractor reads container metadata with ffprobe.
type MetadataExtractor struct {
	ffprobePath string
	timeout     time.Duration
	logger      zerolog.Logger
}

func NewMetadataExtractor(timeout time.Duration, logger zerolog.Logger) *MetadataExtractor {
	ffprobePath := "ffprobe"
	if path, err := exec.LookPath("ffprobe"); err == nil {
		ffprobePath = path
	}

	return &MetadataExtractor{
		ffprobePath: ffprobePath,
		timeout:     timeout,
		logger:      logger,
	}
}

func (m *MetadataExtractor) IsAvailable() bool {
	_, err := exec.LookPath(m.ffprobePath)
	return err == nil
}

func (m *MetadataExtractor) Extract(ctx context.Context, filePath string) (*Metadata, error) {
	if !m.IsAvailable() {
		return nil, ErrProbeUnavailable
	}

	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		filePath,
	}

	output, err := exec.CommandContext(ctx, m.ffprobePath, args...).Output()
	if err != nil {
		m.logger.Debug().Err(err).Str("file", filePath).Msg("ffprobe failed")
		return nil, fmt.Errorf("probe %s: %w", filePath, err)
	}

	return parseOutput(output)
}

// ProbeDuration returns the duration of a video in whole seconds. A file
// whose duration cannot be determined yields 0.
func (m *MetadataExtractor) ProbeDuration(ctx context.Context, filePath string) (int64, error) {
	meta, err := m.Extract(ctx, filePath)
	if err != nil {
		return 0, err
	}
	return meta.Duration, nil
}

type ffprobeOutput struct {
	Streams []ffprobeStream `json:"streams"`
	Format  ffprobeFormat   `json:"format"`
}

type ffprobeStream struct {
	CodecType string `json:"codec_type"`
	CodecName string `json:"codec_name"`
	Duration  string `json:"duration"`
}

type ffprobeFormat struct {
	Duration string `json:"duration"`
}

func parseOutput(output []byte) (*Metadata, error) {
	var probe ffprobeOutput
	if err := json.Unmarshal(output, &probe); err != nil {
		return nil, err
	}

	meta := &Metadata{}
	duration := parseSeconds(probe.Format.Duration)

	for _, stream := range probe.Streams {
		switch stream.CodecType {
		case "video":
			if meta.VideoCodec == "" {
				meta.VideoCodec = strings.ToUpper(stream.CodecName)
				// Some containers only report duration per stream.
				if duration == 0 {
					duration = parseSeconds(stream.Duration)
				}
			}
		case "audio":
			if meta.AudioCodec == "" {
				meta.AudioCodec = strings.ToUpper(stream.CodecName)
			}
		}
	}

	meta.Duration = int64(math.Round(duration))
	return meta, nil
}

func parseSeconds(s string) float64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
