// Package media classifies observed URLs, normalises them for deduplication and keeps
// a per-page catalogue of what was found.
package media

import (
	"net/url"
	"path"
	"regexp"
	"strings"
)

// Kind is the media category of a URL.
type Kind string

const (
	KindUnknown Kind = ""
	KindImage   Kind = "image"
	KindVideo   Kind = "video"
	KindHLS     Kind = "hls"
	KindDASH    Kind = "dash"
)

// kindOrder fixes the precedence used when matching extensions and MIME types.
var kindOrder = []Kind{KindImage, KindVideo, KindHLS, KindDASH}

var mimeTypes = map[Kind][]string{
	KindImage: {"image/webp", "image/png", "image/jpeg", "image/jpg", "image/gif", "image/svg+xml", "image/bmp", "image/ico", "image/avif"},
	KindVideo: {
		"video/mp4", "video/webm", "video/ogg", "video/avi", "video/mov", "video/mkv",
		"video/x-flv", "video/x-m4v", "video/quicktime", "video/x-msvideo",
		"video/3gpp", "video/3gpp2", "video/x-matroska",
		"application/octet-stream",
	},
	KindHLS:  {"application/vnd.apple.mpegurl", "application/x-mpegurl", "audio/mpegurl", "audio/x-mpegurl"},
	KindDASH: {"application/dash+xml", "video/vnd.mpeg.dash.mpd"},
}

var extensions = map[Kind][]string{
	KindImage: {".webp", ".png", ".jpg", ".jpeg", ".gif", ".svg", ".bmp", ".ico", ".avif"},
	KindVideo: {".mp4", ".webm", ".ogg", ".avi", ".mov", ".mkv", ".m4v", ".flv", ".3gp"},
	KindHLS:   {".m3u8", ".m3u"},
	KindDASH:  {".mpd"},
}

// octet-stream only counts as video when the URL says so.
var videoExtRegex = regexp.MustCompile(`(?i)\.(mp4|webm|mkv|m4v)(\?|$)`)

// Classify returns the Kind of a URL given its response Content-Type, which may be
// empty. The URL extension wins over the Content-Type.
func Classify(rawURL, contentType string) Kind {
	urlPath := strings.ToLower(rawURL)
	if i := strings.IndexByte(urlPath, '?'); i >= 0 {
		urlPath = urlPath[:i]
	}
	ct := strings.ToLower(contentType)

	for _, kind := range kindOrder {
		for _, ext := range extensions[kind] {
			if strings.HasSuffix(urlPath, ext) {
				return kind
			}
		}
	}

	for _, kind := range kindOrder {
		if !containsAny(ct, mimeTypes[kind]) {
			continue
		}
		if kind == KindVideo && strings.Contains(ct, "application/octet-stream") {
			if videoExtRegex.MatchString(rawURL) {
				return KindVideo
			}
			continue
		}
		return kind
	}

	if strings.Contains(ct, "mpegurl") || strings.Contains(ct, "m3u") {
		return KindHLS
	}
	return KindUnknown
}

// IsStreamSegment reports whether url is a bare .ts or .m4s segment, which is useless
// without its playlist.
func IsStreamSegment(rawURL string) bool {
	p := strings.ToLower(rawURL)
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	return strings.HasSuffix(p, ".ts") || strings.HasSuffix(p, ".m4s")
}

// FilenameFromURL returns the last path element of url, or "media".
func FilenameFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "media"
	}
	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" {
		return "media"
	}
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}
	return name
}

// OutputFilename proposes a filename for downloading url as kind. Playlists become .mp4.
func OutputFilename(rawURL string, kind Kind) string {
	name := FilenameFromURL(rawURL)
	if kind != KindHLS {
		return name
	}
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	if stem == "" || stem == "media" || strings.EqualFold(stem, "index") || strings.EqualFold(stem, "master") || strings.EqualFold(stem, "playlist") {
		stem = "video"
	}
	return stem + ".mp4"
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
