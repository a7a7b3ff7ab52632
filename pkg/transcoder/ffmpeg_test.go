package transcoder

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heyjunin/hlsgrab/pkg/errors"
	"github.com/heyjunin/hlsgrab/pkg/logger"
)

func requireFFmpeg(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not found in PATH")
	}
}

// makeTestTS renders one second of a test pattern as MPEG-TS.
func makeTestTS(t *testing.T) []byte {
	t.Helper()
	path := filepath.Join(t.TempDir(), "src.ts")
	cmd := exec.Command("ffmpeg", "-hide_banner", "-loglevel", "error",
		"-f", "lavfi", "-i", "testsrc=duration=1:size=320x240:rate=25",
		"-c:v", "libx264", "-pix_fmt", "yuv420p", "-f", "mpegts", "-y", path)
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Skipf("cannot generate test stream: %v: %s", err, out)
	}
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

func TestFFmpegEngineLoadMissingBinary(t *testing.T) {
	e := NewFFmpegEngine(Options{FFmpegBinary: "/nonexistent/ffmpeg", Logger: logger.NewNopLogger()})
	err := e.Load(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrRemux))
}

func TestFFmpegEngineRemux(t *testing.T) {
	requireFFmpeg(t)
	ts := makeTestTS(t)

	tempDir := t.TempDir()
	e := NewFFmpegEngine(Options{TempDir: tempDir, Logger: logger.NewNopLogger()})
	require.NoError(t, e.Load(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	out, err := e.Remux(ctx, "job/../1", ts)
	require.NoError(t, err)
	require.Greater(t, len(out), 8)
	assert.True(t, bytes.Equal(out[4:8], []byte("ftyp")), "output must start with an ftyp box")

	entries, err := os.ReadDir(tempDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "scratch files must be removed")
}

func TestFFmpegEngineRemuxGarbage(t *testing.T) {
	requireFFmpeg(t)

	tempDir := t.TempDir()
	e := NewFFmpegEngine(Options{TempDir: tempDir, Logger: logger.NewNopLogger()})
	_, err := e.Remux(context.Background(), "job", []byte("definitely not a transport stream"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrRemux))

	entries, err := os.ReadDir(tempDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSanitizeJobID(t *testing.T) {
	assert.Equal(t, "job____1", sanitizeJobID("job/../1"))
	assert.Equal(t, "0190d3f4-7b1c-7abc", sanitizeJobID("0190d3f4-7b1c-7abc"))
}
