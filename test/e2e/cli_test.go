package e2e

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestCLIDownload(t *testing.T) {
	if !binaryExists() {
		t.Skip("Binary not found at " + binaryPath + ", skipping test")
	}
	if !checkFFmpegInstalled() {
		t.Skip("FFmpeg not found, skipping test")
	}

	server := serveDir(t, generateStream(t, false), "")
	outDir := t.TempDir()
	progressFile := filepath.Join(outDir, "progress.txt")

	cmd := exec.Command(binaryPath, "download",
		"-o", outDir,
		"-f", "cli.mp4",
		"--quiet",
		"--progress-file", progressFile,
		server.URL+"/index.m3u8",
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := runWithTimeout(cmd, 3*time.Minute); err != nil {
		t.Fatalf("CLI download failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(outDir, "cli.mp4"))
	if err != nil {
		t.Fatalf("MP4 file was not written: %v", err)
	}
	if !isMP4(data) {
		t.Errorf("Output does not start with an ftyp box")
	}
	if p, err := os.ReadFile(progressFile); err != nil || strings.TrimSpace(string(p)) != "100" {
		t.Errorf("Progress file should read 100, got %q (%v)", p, err)
	}
}

func TestCLIInspect(t *testing.T) {
	if !binaryExists() {
		t.Skip("Binary not found at " + binaryPath + ", skipping test")
	}
	if !checkFFmpegInstalled() {
		t.Skip("FFmpeg not found, skipping test")
	}

	server := serveDir(t, generateStream(t, false), "")
	output, err := exec.Command(binaryPath, "inspect", "--json", server.URL+"/index.m3u8").CombinedOutput()
	if err != nil {
		t.Fatalf("CLI inspect failed: %v\n%s", err, output)
	}
	for _, expected := range []string{`"is_master": false`, `"has_init": false`, `"segments":`} {
		if !strings.Contains(string(output), expected) {
			t.Errorf("Inspect output does not contain %s:\n%s", expected, output)
		}
	}
}

func TestCLIHelp(t *testing.T) {
	if !binaryExists() {
		t.Skip("Binary not found at " + binaryPath + ", skipping test")
	}

	output, err := exec.Command(binaryPath, "--help").CombinedOutput()
	if err != nil {
		t.Fatalf("Failed to run help: %v", err)
	}
	for _, expected := range []string{"hlsgrab", "download", "inspect", "probe"} {
		if !strings.Contains(strings.ToLower(string(output)), expected) {
			t.Errorf("Help output does not contain '%s'", expected)
		}
	}
}
