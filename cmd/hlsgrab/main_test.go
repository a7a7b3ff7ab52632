package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heyjunin/hlsgrab/pkg/downloader"
	"github.com/heyjunin/hlsgrab/pkg/headers"
	"github.com/heyjunin/hlsgrab/pkg/logger"
	"github.com/heyjunin/hlsgrab/pkg/media"
)

func testClient() *downloader.Client {
	return downloader.NewClient(downloader.Options{DisableTracing: true, Logger: logger.NewNopLogger()})
}

// hlsServer serves a master playlist, one media playlist with three TS segments and a
// plain mp4 file.
func hlsServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/show/master.m3u8", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "#EXTM3U\n"+
			"#EXT-X-STREAM-INF:BANDWIDTH=800000,RESOLUTION=640x360\nlow.m3u8\n"+
			"#EXT-X-STREAM-INF:BANDWIDTH=3000000,RESOLUTION=1280x720\nhigh.m3u8\n")
	})
	mux.HandleFunc("/show/high.m3u8", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "#EXTM3U\n#EXTINF:4.0,\na.ts\n#EXTINF:4.0,\nb.ts\n#EXTINF:2.0,\nc.ts\n#EXT-X-ENDLIST\n")
	})
	mux.HandleFunc("/show/", func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, ".ts") {
			fmt.Fprint(w, strings.TrimSuffix(filepath.Base(r.URL.Path), ".ts"))
			return
		}
		http.NotFound(w, r)
	})
	mux.HandleFunc("/clip.mp4", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		w.Header().Set("Content-Length", "5")
		if r.Method != http.MethodHead {
			fmt.Fprint(w, "movie")
		}
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestParseHeaders(t *testing.T) {
	h, err := parseHeaders(nil)
	require.NoError(t, err)
	assert.Nil(t, h)

	h, err = parseHeaders([]string{"Referer: https://example.com/a:b", "Cookie:x=1"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Referer": "https://example.com/a:b", "Cookie": "x=1"}, h)

	_, err = parseHeaders([]string{"no separator"})
	assert.Error(t, err)
	_, err = parseHeaders([]string{": value"})
	assert.Error(t, err)
}

func TestBucketURLFor(t *testing.T) {
	u, err := bucketURLFor("s3://bucket?region=us-east-1")
	require.NoError(t, err)
	assert.Equal(t, "s3://bucket?region=us-east-1", u)

	dir := filepath.Join(t.TempDir(), "nested", "out")
	u, err = bucketURLFor(dir)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u, "file://"))
	assert.DirExists(t, dir)
}

func TestInspectMaster(t *testing.T) {
	server := hlsServer(t)
	report, err := inspect(context.Background(), testClient(), server.URL+"/show/master.m3u8", nil)
	require.NoError(t, err)

	assert.True(t, report.IsMaster)
	assert.Len(t, report.Variants, 2)
	require.NotNil(t, report.Selected)
	assert.Equal(t, "1280x720", report.Selected.Resolution)
	assert.Equal(t, 3, report.Segments)
	assert.Equal(t, 10.0, report.Duration)
	assert.False(t, report.HasInit)
	assert.Greater(t, report.EstimatedSize, int64(0))

	var sb strings.Builder
	printReport(&sb, report)
	assert.Contains(t, sb.String(), "*1280x720")
	assert.Contains(t, sb.String(), "MPEG-TS")
}

func TestInspectMissingPlaylist(t *testing.T) {
	server := hlsServer(t)
	_, err := inspect(context.Background(), testClient(), server.URL+"/nope.m3u8", nil)
	assert.Error(t, err)
}

func TestProbe(t *testing.T) {
	server := hlsServer(t)
	catalog := probe(context.Background(), testClient(), []string{
		server.URL + "/clip.mp4",
		server.URL + "/clip.mp4?v=2",
		server.URL + "/show/master.m3u8",
		server.URL + "/show/a.ts",
		server.URL + "/page.html",
	}, nil, "https://example.com/watch", 2)

	items := catalog.Items()
	require.Len(t, items, 2)
	assert.Equal(t, media.KindVideo, items[0].Kind)
	assert.Equal(t, int64(5), items[0].Size)
	assert.Equal(t, "clip.mp4", items[0].Filename)
	assert.Equal(t, media.KindHLS, items[1].Kind)

	var sb strings.Builder
	printCatalog(&sb, catalog)
	assert.Contains(t, sb.String(), "KIND")
	assert.Contains(t, sb.String(), "clip.mp4")
}

func TestHeaderProviderFromRequestsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "requests.jsonl")
	content := `{"url":"https://cdn.example.com/v/index.m3u8","headers":{"Referer":"https://example.com/watch"}}` + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	provider, closeProvider, err := headerProvider(context.Background(), &downloadOptions{requestsFile: path})
	require.NoError(t, err)
	require.NotNil(t, provider)

	h, err := provider.HeadersFor(context.Background(), "https://cdn.example.com/v/seg1.ts", "")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/watch", h["Referer"])

	// Returns once the background pruner has stopped.
	closeProvider()
}

func TestHeaderProviderNone(t *testing.T) {
	provider, closeProvider, err := headerProvider(context.Background(), &downloadOptions{})
	require.NoError(t, err)
	assert.Nil(t, provider)
	closeProvider()
}

func TestLoadRequests(t *testing.T) {
	path := filepath.Join(t.TempDir(), "requests.jsonl")
	content := `{"url":"https://cdn.example.com/v/index.m3u8","page":"https://example.com/watch","headers":{"Referer":"https://example.com/watch","Accept":"*/*"}}

{"url":"https://example.com/app.js","headers":{"Referer":"https://example.com/"}}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	store := headers.NewMemoryStore(0, logger.NewNopLogger())
	require.NoError(t, loadRequests(context.Background(), store, path))

	h, err := store.HeadersFor(context.Background(), "https://cdn.example.com/v/seg1.ts", "")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Referer": "https://example.com/watch"}, h)

	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0644))
	assert.Error(t, loadRequests(context.Background(), store, path))
}

func TestRunDownloadToDirectory(t *testing.T) {
	server := hlsServer(t)
	dir := t.TempDir()
	metricsFile := filepath.Join(dir, "metrics.prom")

	err := runDownload(context.Background(), &downloadOptions{
		output:       dir,
		ffmpegBinary: "hlsgrab-no-such-ffmpeg",
		concurrency:  2,
		metricsFile:  metricsFile,
		quiet:        true,
	}, []string{server.URL + "/show/master.m3u8"})
	require.NoError(t, err)

	// Without ffmpeg the stream is kept as TS.
	data, err := os.ReadFile(filepath.Join(dir, "video.ts"))
	require.NoError(t, err)
	assert.Equal(t, "abc", string(data))

	prom, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "hlsgrab_jobs_finished_total")
}

func TestRunDownloadDirect(t *testing.T) {
	server := hlsServer(t)
	dir := t.TempDir()

	err := runDownload(context.Background(), &downloadOptions{
		output:   dir,
		filename: "movie.mp4",
		direct:   true,
		page:     "https://example.com/watch",
		quiet:    true,
	}, []string{server.URL + "/clip.mp4"})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "movie.mp4"))
	require.NoError(t, err)
	assert.Equal(t, "movie", string(data))
}

func TestRunDownloadFailure(t *testing.T) {
	server := hlsServer(t)
	err := runDownload(context.Background(), &downloadOptions{
		output: t.TempDir(),
		quiet:  true,
	}, []string{server.URL + "/missing.m3u8"})
	require.Error(t, err)

	var ee *exitError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, ExitDownloadFailed, ee.code)
}

func TestRunDownloadArgs(t *testing.T) {
	err := runDownload(context.Background(), &downloadOptions{filename: "x.mp4"}, []string{"https://a.example.com/1.m3u8", "https://a.example.com/2.m3u8"})
	var ee *exitError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, ExitInvalidArgs, ee.code)

	err = runDownload(context.Background(), &downloadOptions{output: t.TempDir(), headers: []string{"bad"}}, []string{"https://a.example.com/1.m3u8"})
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, ExitInvalidArgs, ee.code)
}
