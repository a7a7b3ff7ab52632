package media

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name        string
		url         string
		contentType string
		want        Kind
	}{
		{"extension hls", "https://x.example.com/v/master.m3u8?token=1", "", KindHLS},
		{"extension wins over mime", "https://x.example.com/a.mp4", "image/png", KindVideo},
		{"extension image", "https://x.example.com/a.JPEG", "", KindImage},
		{"extension dash", "https://x.example.com/manifest.mpd", "", KindDASH},
		{"mime video", "https://x.example.com/stream", "video/mp4; codecs=avc1", KindVideo},
		{"mime hls", "https://x.example.com/playlist", "application/vnd.apple.mpegurl", KindHLS},
		{"mime dash", "https://x.example.com/manifest", "application/dash+xml", KindDASH},
		{"octet-stream with video extension in query", "https://x.example.com/get?f=clip.mp4", "application/octet-stream", KindVideo},
		{"octet-stream without video extension", "https://x.example.com/blob", "application/octet-stream", KindUnknown},
		{"unusual hls mime", "https://x.example.com/live", "text/x-mpegURL", KindHLS},
		{"m3u mime fragment", "https://x.example.com/live", "application/m3u", KindHLS},
		{"nothing", "https://x.example.com/index.html", "text/html", KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.url, tt.contentType))
		})
	}
}

func TestIsStreamSegment(t *testing.T) {
	assert.True(t, IsStreamSegment("https://x.example.com/seg1.ts?sig=a"))
	assert.True(t, IsStreamSegment("https://x.example.com/chunk.M4S"))
	assert.False(t, IsStreamSegment("https://x.example.com/index.m3u8"))
}

func TestFilenameFromURL(t *testing.T) {
	assert.Equal(t, "clip.mp4", FilenameFromURL("https://x.example.com/a/clip.mp4?x=1"))
	assert.Equal(t, "my clip.mp4", FilenameFromURL("https://x.example.com/my%20clip.mp4"))
	assert.Equal(t, "media", FilenameFromURL("https://x.example.com/"))
	assert.Equal(t, "media", FilenameFromURL("::bad"))
}

func TestOutputFilename(t *testing.T) {
	assert.Equal(t, "show-e01.mp4", OutputFilename("https://x.example.com/show-e01.m3u8", KindHLS))
	assert.Equal(t, "video.mp4", OutputFilename("https://x.example.com/hls/index.m3u8", KindHLS))
	assert.Equal(t, "video.mp4", OutputFilename("https://x.example.com/", KindHLS))
	assert.Equal(t, "clip.webm", OutputFilename("https://x.example.com/clip.webm", KindVideo))
}

func TestNormalizeForDedup(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"https://img.example.com/a.jpg?w=100&h=100", "https://img.example.com/a.jpg"},
		{"https://img.example.com/a.jpg?quality=80&format=webp&id=abc", "https://img.example.com/a.jpg?id=abc"},
		{"https://img.example.com/a.jpg?200x200", "https://img.example.com/a.jpg"},
		{"https://img.example.com/a.jpg?100", "https://img.example.com/a.jpg"},
		{"https://img.example.com/a.jpg?v=123", "https://img.example.com/a.jpg"},
		{"https://img.example.com/photo_640x480.jpg", "https://img.example.com/photo.jpg"},
		{"https://img.example.com/photo-640x480.JPG", "https://img.example.com/photo.JPG"},
		{"https://IMG.example.com/a.jpg?b=2x&a=1x", "https://img.example.com/a.jpg?a=1x&b=2x"},
		{"not a url", "not a url"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeForDedup(tt.in), tt.in)
	}
}

func TestCatalogDedupKeepsLarger(t *testing.T) {
	c := NewCatalog()
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.True(t, c.Add(Item{URL: "https://img.example.com/a.jpg?w=100", Kind: KindImage, Size: 100, Thumbnail: "thumb", SeenAt: t0}))
	assert.False(t, c.Add(Item{URL: "https://img.example.com/a.jpg?w=1000", Kind: KindImage, Size: 5000, SeenAt: t0.Add(time.Minute)}))
	assert.False(t, c.Add(Item{URL: "https://img.example.com/a_50x50.jpg", Kind: KindImage, Size: 10, SeenAt: t0.Add(2 * time.Minute)}))

	items := c.Items()
	assert.Len(t, items, 1)
	assert.Equal(t, "https://img.example.com/a.jpg?w=1000", items[0].URL)
	assert.Equal(t, int64(5000), items[0].Size)
	assert.Equal(t, "thumb", items[0].Thumbnail)
	assert.Equal(t, t0.Add(2*time.Minute), items[0].SeenAt)
	assert.Equal(t, "a.jpg", items[0].Filename)
}

func TestCatalogSkipsSegmentsAndKeepsOrder(t *testing.T) {
	c := NewCatalog()
	assert.False(t, c.Add(Item{URL: "https://cdn.example.com/seg1.ts"}))
	c.Add(Item{URL: "https://cdn.example.com/b.mp4", Kind: KindVideo})
	c.Add(Item{URL: "https://cdn.example.com/a.m3u8", Kind: KindHLS})

	items := c.Items()
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, "https://cdn.example.com/b.mp4", items[0].URL)
	assert.Equal(t, "https://cdn.example.com/a.m3u8", items[1].URL)
}
