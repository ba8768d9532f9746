package transcoder

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestBuildLadder(t *testing.T) {
	tests := []struct {
		name         string
		sourceHeight int
		wantNames    []string
	}{
		{
			name:         "4k source gets the full ladder without upscaling",
			sourceHeight: 2160,
			wantNames:    []string{"1080p", "720p", "480p", "360p"},
		},
		{
			name:         "1080p source",
			sourceHeight: 1080,
			wantNames:    []string{"1080p", "720p", "480p", "360p"},
		},
		{
			name:         "720p source skips 1080p",
			sourceHeight: 720,
			wantNames:    []string{"720p", "480p", "360p"},
		},
		{
			name:         "480p source",
			sourceHeight: 480,
			wantNames:    []string{"480p", "360p"},
		},
		{
			name:         "360p source gets a single rung",
			sourceHeight: 360,
			wantNames:    []string{"360p"},
		},
		{
			name:         "sub-360p source gets a native-height rendition",
			sourceHeight: 240,
			wantNames:    []string{"240p"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ladder := BuildLadder(tt.sourceHeight)

			if len(ladder) != len(tt.wantNames) {
				t.Fatalf("BuildLadder(%d) = %d renditions, want %d", tt.sourceHeight, len(ladder), len(tt.wantNames))
			}
			for i, want := range tt.wantNames {
				if ladder[i].Name != want {
					t.Errorf("rendition[%d] = %s, want %s", i, ladder[i].Name, want)
				}
				if ladder[i].Height > tt.sourceHeight {
					t.Errorf("rendition %s upscales: height %d > source %d", ladder[i].Name, ladder[i].Height, tt.sourceHeight)
				}
			}
		})
	}
}

func TestBuildLadder_SubMinimumBitrate(t *testing.T) {
	ladder := BuildLadder(144)
	if len(ladder) != 1 {
		t.Fatalf("expected single rendition, got %d", len(ladder))
	}
	if ladder[0].Height != 144 {
		t.Errorf("height = %d, want 144", ladder[0].Height)
	}
	if ladder[0].Bitrate != minLadderBitrate {
		t.Errorf("bitrate = %d, want %d", ladder[0].Bitrate, minLadderBitrate)
	}
}

func TestDisplayWidth(t *testing.T) {
	tests := []struct {
		height int
		want   int
	}{
		{1080, 1920},
		{720, 1280},
		{480, 854}, // 853.33 rounds to 853, bumped to even
		{360, 640},
		{240, 426}, // 426.67 rounds to 427, bumped to even
	}

	for _, tt := range tests {
		got := DisplayWidth(tt.height)
		if got%2 != 0 {
			t.Errorf("DisplayWidth(%d) = %d is odd", tt.height, got)
		}
		if got != tt.want {
			t.Errorf("DisplayWidth(%d) = %d, want %d", tt.height, got, tt.want)
		}
	}
}

func TestWriteMasterPlaylist(t *testing.T) {
	dir := t.TempDir()
	tc := NewFFmpegTranscoder(DefaultFFmpegConfig(), nil)

	renditions := []Rendition{
		{Name: "720p", Height: 720, Bitrate: 2_800_000},
		{Name: "480p", Height: 480, Bitrate: 1_400_000},
	}

	path, err := tc.WriteMasterPlaylist(dir, renditions)
	if err != nil {
		t.Fatalf("WriteMasterPlaylist() error: %v", err)
	}
	if filepath.Base(path) != "master.m3u8" {
		t.Errorf("playlist path = %s, want master.m3u8", path)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read playlist: %v", err)
	}
	content := string(raw)

	if !strings.HasPrefix(content, "#EXTM3U\n") {
		t.Error("playlist missing #EXTM3U header")
	}
	for _, want := range []string{
		"#EXT-X-STREAM-INF:BANDWIDTH=2800000,RESOLUTION=1280x720",
		"720p.m3u8",
		"#EXT-X-STREAM-INF:BANDWIDTH=1400000,RESOLUTION=854x480",
		"480p.m3u8",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("playlist missing %q:\n%s", want, content)
		}
	}

	// Order follows the rendition slice, highest quality first.
	if strings.Index(content, "720p.m3u8") > strings.Index(content, "480p.m3u8") {
		t.Error("renditions out of order in master playlist")
	}
}

func TestWriteMasterPlaylist_EmptyRenditions(t *testing.T) {
	tc := NewFFmpegTranscoder(DefaultFFmpegConfig(), nil)
	if _, err := tc.WriteMasterPlaylist(t.TempDir(), nil); err == nil {
		t.Error("WriteMasterPlaylist() accepted an empty rendition set")
	}
}
