package transcoder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// FFmpegConfig holds configuration for the FFmpeg transcoder.
type FFmpegConfig struct {
	// FFmpegPath is the path to the ffmpeg binary.
	// If empty, "ffmpeg" will be used (assumes it's in PATH).
	FFmpegPath string

	// FFprobePath is the path to the ffprobe binary.
	// If empty, "ffprobe" will be used.
	FFprobePath string

	// VideoCodec is the video codec to use.
	// Default: libx264
	VideoCodec string

	// VideoPreset controls the encoding speed/quality tradeoff.
	// Options: ultrafast, superfast, veryfast, faster, fast, medium, slow, slower, veryslow
	// Default: fast
	VideoPreset string

	// AudioCodec is the audio codec to use.
	// Default: aac
	AudioCodec string

	// AudioBitrate is the target audio bitrate, e.g. "128k".
	AudioBitrate string

	// SegmentDuration is the target duration of each HLS segment in seconds.
	// Default: 4
	SegmentDuration int

	// GOPSize is the closed-GOP length in frames, sized at twice the
	// nominal frame rate so every segment starts on a keyframe.
	// Default: 48
	GOPSize int

	// RenditionTimeout is the wall-clock ceiling for a single rendition
	// encode. An encode exceeding it counts as a per-rendition failure.
	// Default: 1h
	RenditionTimeout time.Duration
}

// DefaultFFmpegConfig returns an FFmpegConfig with production-ready defaults.
func DefaultFFmpegConfig() FFmpegConfig {
	return FFmpegConfig{
		FFmpegPath:       "ffmpeg",
		FFprobePath:      "ffprobe",
		VideoCodec:       "libx264",
		VideoPreset:      "fast",
		AudioCodec:       "aac",
		AudioBitrate:     "128k",
		SegmentDuration:  4,
		GOPSize:          48,
		RenditionTimeout: time.Hour,
	}
}

// FFmpegTranscoder implements Transcoder using the ffmpeg and ffprobe CLIs.
type FFmpegTranscoder struct {
	config FFmpegConfig
	logger *slog.Logger
}

// Compile-time verification that FFmpegTranscoder implements Transcoder.
var _ Transcoder = (*FFmpegTranscoder)(nil)

// NewFFmpegTranscoder creates a new FFmpeg-based transcoder.
func NewFFmpegTranscoder(cfg FFmpegConfig, logger *slog.Logger) *FFmpegTranscoder {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.FFprobePath == "" {
		cfg.FFprobePath = "ffprobe"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FFmpegTranscoder{
		config: cfg,
		logger: logger,
	}
}

const probeTimeout = 30 * time.Second

// probePayload is the subset of ffprobe JSON output we parse.
type probePayload struct {
	Streams []probeStream `json:"streams"`
	Format  probeFormat   `json:"format"`
}

type probeStream struct {
	CodecType  string `json:"codec_type"`
	CodecName  string `json:"codec_name"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	RFrameRate string `json:"r_frame_rate"`
}

type probeFormat struct {
	Duration   string `json:"duration"`
	BitRate    string `json:"bit_rate"`
	FormatName string `json:"format_name"`
}

// Probe runs ffprobe and extracts the source metadata.
func (t *FFmpegTranscoder) Probe(ctx context.Context, inputPath string) (*ProbeResult, error) {
	if err := t.validateInput(inputPath); err != nil {
		return nil, err
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, probeTimeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, t.config.FFprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_streams",
		"-show_format",
		inputPath,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return nil, fmt.Errorf("ffprobe failed: %w", err)
		}
		return nil, fmt.Errorf("ffprobe failed: %w: %s", err, msg)
	}

	return parseProbeOutput(stdout.Bytes())
}

// parseProbeOutput converts raw ffprobe JSON into a ProbeResult.
func parseProbeOutput(raw []byte) (*ProbeResult, error) {
	var payload probePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}

	var video *probeStream
	for i := range payload.Streams {
		if payload.Streams[i].CodecType == "video" {
			video = &payload.Streams[i]
			break
		}
	}
	if video == nil || video.Width <= 0 || video.Height <= 0 {
		return nil, ErrNoVideoStream
	}

	result := &ProbeResult{
		Width:     video.Width,
		Height:    video.Height,
		Codec:     video.CodecName,
		FPS:       parseFrameRate(video.RFrameRate),
		Container: payload.Format.FormatName,
	}
	if payload.Format.Duration != "" {
		if d, err := strconv.ParseFloat(payload.Format.Duration, 64); err == nil {
			result.Duration = d
		}
	}
	if payload.Format.BitRate != "" {
		if b, err := strconv.ParseInt(payload.Format.BitRate, 10, 64); err == nil {
			result.Bitrate = b
		}
	}
	return result, nil
}

// parseFrameRate parses ffprobe's rational frame rate (e.g. "30000/1001").
func parseFrameRate(rate string) float64 {
	num, den, ok := strings.Cut(rate, "/")
	if !ok {
		if f, err := strconv.ParseFloat(rate, 64); err == nil {
			return f
		}
		return 0
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}

// EncodeLadder produces each rendition sequentially from the same source
// file to avoid read contention on the source blob. Per-rendition failures
// are logged and skipped.
func (t *FFmpegTranscoder) EncodeLadder(ctx context.Context, inputPath, outputDir string, ladder []Rendition) ([]RenditionOutput, error) {
	if err := t.validateInput(inputPath); err != nil {
		return nil, err
	}
	if err := t.validateOutputDir(outputDir); err != nil {
		return nil, err
	}
	if len(ladder) == 0 {
		return nil, fmt.Errorf("at least one rendition is required")
	}

	var outputs []RenditionOutput
	for _, rendition := range ladder {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("encode cancelled: %w", ctx.Err())
		}

		output, err := t.encodeRendition(ctx, inputPath, outputDir, rendition)
		if err != nil {
			t.logger.Error("rendition encode failed",
				slog.String("rendition", rendition.Name),
				slog.String("input", inputPath),
				slog.String("error", err.Error()),
			)
			continue
		}
		outputs = append(outputs, *output)
	}

	if len(outputs) == 0 {
		return nil, ErrAllRenditionsFailed
	}
	return outputs, nil
}

// encodeRendition runs one ffmpeg invocation producing <name>.m3u8 and
// <name>_NNN.ts in the output directory, bounded by the rendition timeout.
func (t *FFmpegTranscoder) encodeRendition(ctx context.Context, inputPath, outputDir string, rendition Rendition) (*RenditionOutput, error) {
	if t.config.RenditionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.config.RenditionTimeout)
		defer cancel()
	}

	manifestPath := filepath.Join(outputDir, rendition.Name+".m3u8")
	segmentPattern := filepath.Join(outputDir, rendition.Name+"_%03d.ts")

	args := t.buildRenditionArgs(inputPath, manifestPath, segmentPattern, rendition)

	cmd := exec.CommandContext(ctx, t.config.FFmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stdout = nil
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("rendition %s exceeded encode timeout %s", rendition.Name, t.config.RenditionTimeout)
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("transcoding cancelled: %w", ctx.Err())
		}
		return nil, fmt.Errorf("ffmpeg execution failed: %w: %s", err, lastLine(stderr.String()))
	}

	segments, err := t.collectSegments(outputDir, rendition.Name)
	if err != nil {
		return nil, fmt.Errorf("collect segments: %w", err)
	}

	return &RenditionOutput{
		Rendition:    rendition,
		ManifestPath: manifestPath,
		SegmentPaths: segments,
	}, nil
}

// buildRenditionArgs constructs the ffmpeg arguments for one rendition.
// The HLS muxer is selected explicitly rather than inferred from the
// output filename, and GOPs are closed and fixed so segments decode
// independently.
func (t *FFmpegTranscoder) buildRenditionArgs(inputPath, manifestPath, segmentPattern string, rendition Rendition) []string {
	// scale=-2:<h> preserves aspect ratio and keeps width even.
	scaleFilter := fmt.Sprintf("scale=-2:%d", rendition.Height)

	return []string{
		"-i", inputPath,
		"-vf", scaleFilter,
		"-c:v", t.config.VideoCodec,
		"-preset", t.config.VideoPreset,
		"-b:v", strconv.Itoa(rendition.Bitrate),
		"-g", strconv.Itoa(t.config.GOPSize),
		"-keyint_min", strconv.Itoa(t.config.GOPSize),
		"-sc_threshold", "0",
		"-flags", "+cgop",
		"-c:a", t.config.AudioCodec,
		"-b:a", t.config.AudioBitrate,
		"-f", "hls",
		"-hls_time", strconv.Itoa(t.config.SegmentDuration),
		"-hls_list_size", "0",
		"-hls_playlist_type", "vod",
		"-hls_segment_filename", segmentPattern,
		"-y",
		manifestPath,
	}
}

// WriteMasterPlaylist writes master.m3u8 referencing each rendition in order.
func (t *FFmpegTranscoder) WriteMasterPlaylist(outputDir string, renditions []Rendition) (string, error) {
	if len(renditions) == 0 {
		return "", fmt.Errorf("at least one rendition is required")
	}

	var sb strings.Builder
	sb.WriteString("#EXTM3U\n")
	sb.WriteString("#EXT-X-VERSION:3\n\n")

	for _, r := range renditions {
		sb.WriteString(fmt.Sprintf(
			"#EXT-X-STREAM-INF:BANDWIDTH=%d,RESOLUTION=%dx%d\n",
			r.Bitrate, DisplayWidth(r.Height), r.Height,
		))
		sb.WriteString(r.Name + ".m3u8\n")
	}

	path := filepath.Join(outputDir, "master.m3u8")
	if err := os.WriteFile(path, []byte(sb.String()), 0644); err != nil {
		return "", fmt.Errorf("write master playlist: %w", err)
	}
	return path, nil
}

const thumbnailTimeout = 2 * time.Minute

// Thumbnail captures a single JPEG frame at the given offset.
func (t *FFmpegTranscoder) Thumbnail(ctx context.Context, inputPath, outputPath string, atSeconds float64) error {
	if err := t.validateInput(inputPath); err != nil {
		return err
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, thumbnailTimeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, t.config.FFmpegPath,
		"-ss", strconv.FormatFloat(atSeconds, 'f', 2, 64),
		"-i", inputPath,
		"-frames:v", "1",
		"-q:v", "2",
		"-y",
		outputPath,
	)
	var stderr bytes.Buffer
	cmd.Stdout = nil
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("thumbnail cancelled: %w", ctx.Err())
		}
		return fmt.Errorf("ffmpeg thumbnail failed: %w: %s", err, lastLine(stderr.String()))
	}
	return nil
}

// validateInput checks if the input file exists and is readable.
func (t *FFmpegTranscoder) validateInput(inputPath string) error {
	info, err := os.Stat(inputPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("input file does not exist: %s", inputPath)
		}
		return fmt.Errorf("failed to access input file: %w", err)
	}

	if info.IsDir() {
		return fmt.Errorf("input path is a directory, expected a file: %s", inputPath)
	}

	return nil
}

// validateOutputDir checks if the output directory exists.
func (t *FFmpegTranscoder) validateOutputDir(outputDir string) error {
	info, err := os.Stat(outputDir)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("output directory does not exist: %s", outputDir)
		}
		return fmt.Errorf("failed to access output directory: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("output path is not a directory: %s", outputDir)
	}

	return nil
}

// collectSegments finds the .ts files produced for one rendition.
func (t *FFmpegTranscoder) collectSegments(outputDir, renditionName string) ([]string, error) {
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read output directory: %w", err)
	}

	prefix := renditionName + "_"
	var segments []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, prefix) && strings.HasSuffix(name, ".ts") {
			segments = append(segments, filepath.Join(outputDir, name))
		}
	}

	if len(segments) == 0 {
		return nil, fmt.Errorf("no segments generated for rendition %s", renditionName)
	}

	return segments, nil
}

// lastLine extracts the final non-empty line of ffmpeg's stderr, which
// carries the actual failure reason.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}
