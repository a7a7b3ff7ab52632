package e2e

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"
)

const (
	// Path of the compiled CLI, built with `go build -o hlsgrab ./cmd/hlsgrab`
	binaryPath = "../../hlsgrab"
	// Length of the generated test stream in seconds
	testStreamSeconds = "6"
)

func checkFFmpegInstalled() bool {
	_, err := exec.LookPath("ffmpeg")
	return err == nil
}

func binaryExists() bool {
	_, err := os.Stat(binaryPath)
	return err == nil
}

// generateStream renders a short test pattern as an HLS stream into a fresh directory.
// fmp4 selects fragmented MP4 segments instead of MPEG-TS.
func generateStream(t *testing.T, fmp4 bool) string {
	t.Helper()
	dir := t.TempDir()

	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "lavfi", "-i", "testsrc=size=320x240:rate=25",
		"-f", "lavfi", "-i", "sine=frequency=440:sample_rate=44100",
		"-t", testStreamSeconds,
		"-c:v", "libx264", "-preset", "ultrafast", "-g", "25",
		"-c:a", "aac",
		"-f", "hls", "-hls_time", "1", "-hls_playlist_type", "vod",
	}
	if fmp4 {
		args = append(args, "-hls_segment_type", "fmp4")
	}
	args = append(args, filepath.Join(dir, "index.m3u8"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Skipf("ffmpeg could not generate a test stream: %v\n%s", err, out)
	}
	return dir
}

// serveDir serves dir over HTTP, optionally insisting on a Referer.
func serveDir(t *testing.T, dir, requiredReferer string) *httptest.Server {
	t.Helper()
	files := http.FileServer(http.Dir(dir))
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requiredReferer != "" && r.Header.Get("Referer") != requiredReferer {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		files.ServeHTTP(w, r)
	}))
	t.Cleanup(server.Close)
	return server
}

// runWithTimeout runs cmd and interrupts it when timeout passes.
func runWithTimeout(cmd *exec.Cmd, timeout time.Duration) error {
	if err := cmd.Start(); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		if err := cmd.Process.Signal(os.Interrupt); err != nil {
			cmd.Process.Kill()
		}
		return <-done
	}
}

func isMP4(data []byte) bool {
	return len(data) > 8 && string(data[4:8]) == "ftyp"
}

func isTS(data []byte) bool {
	return len(data) > 188 && data[0] == 0x47 && data[188] == 0x47
}
