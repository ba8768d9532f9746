package transcoder

import (
	"context"
	"errors"
	"fmt"
	"math"
)

var (
	// ErrNoVideoStream is returned by Probe when the source has no video stream.
	ErrNoVideoStream = errors.New("source has no video stream")

	// ErrAllRenditionsFailed is returned by EncodeLadder when no rendition
	// could be produced.
	ErrAllRenditionsFailed = errors.New("all renditions failed")
)

// ProbeResult holds the source metadata extracted before encoding.
type ProbeResult struct {
	Duration  float64 // seconds
	Width     int
	Height    int
	Codec     string
	FPS       float64
	Bitrate   int64 // bits per second, 0 if unknown
	Container string
}

// Rendition is a single quality level of the adaptive-bitrate ladder.
type Rendition struct {
	// Name identifies the rendition and prefixes its output files
	// (e.g., "720p" -> 720p.m3u8, 720p_000.ts).
	Name string
	// Height is the target video height in pixels. Width is derived by the
	// encoder to preserve the source aspect ratio.
	Height int
	// Bitrate is the target video bitrate in bits per second; also the
	// BANDWIDTH attribute in the master playlist.
	Bitrate int
}

// RenditionOutput describes the files produced for one rendition.
type RenditionOutput struct {
	Rendition    Rendition
	ManifestPath string
	SegmentPaths []string
}

// defaultLadder is the full quality ladder, highest first. Sources smaller
// than an entry's height skip that entry (no upscaling).
var defaultLadder = []Rendition{
	{Name: "1080p", Height: 1080, Bitrate: 5_000_000},
	{Name: "720p", Height: 720, Bitrate: 2_800_000},
	{Name: "480p", Height: 480, Bitrate: 1_400_000},
	{Name: "360p", Height: 360, Bitrate: 800_000},
}

// minLadderBitrate is used for the single rendition of sub-360p sources.
const minLadderBitrate = 800_000

// BuildLadder derives the rendition set for a source height. Deterministic,
// never upscales: only ladder entries at or below the source height are
// kept. A source smaller than the lowest entry gets a single rendition at
// its native height.
func BuildLadder(sourceHeight int) []Rendition {
	var ladder []Rendition
	for _, r := range defaultLadder {
		if r.Height <= sourceHeight {
			ladder = append(ladder, r)
		}
	}
	if len(ladder) == 0 {
		ladder = []Rendition{{
			Name:    fmt.Sprintf("%dp", sourceHeight),
			Height:  sourceHeight,
			Bitrate: minLadderBitrate,
		}}
	}
	return ladder
}

// DisplayWidth computes the RESOLUTION width advertised in the master
// playlist for a rendition height. It assumes 16:9 for display purposes
// only; the actual encode preserves the source aspect ratio.
func DisplayWidth(height int) int {
	width := int(math.Round(float64(height) * 16.0 / 9.0))
	if width%2 != 0 {
		width++
	}
	return width
}

// Transcoder drives an external encoder to produce an HLS ladder.
type Transcoder interface {
	// Probe extracts source metadata. Returns ErrNoVideoStream if the file
	// carries no video.
	Probe(ctx context.Context, inputPath string) (*ProbeResult, error)

	// EncodeLadder produces each rendition sequentially from the same
	// source file. A failing rendition is logged and skipped; the remaining
	// renditions still run. Returns the outputs that succeeded, in ladder
	// order, or ErrAllRenditionsFailed if none did.
	EncodeLadder(ctx context.Context, inputPath, outputDir string, ladder []Rendition) ([]RenditionOutput, error)

	// WriteMasterPlaylist writes master.m3u8 referencing the given
	// renditions, in order, and returns its path.
	WriteMasterPlaylist(outputDir string, renditions []Rendition) (string, error)

	// Thumbnail captures a single JPEG frame at the given offset.
	Thumbnail(ctx context.Context, inputPath, outputPath string, atSeconds float64) error
}
