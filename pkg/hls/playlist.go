package hls

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// Segment is one fetchable chunk of media referenced by a playlist.
type Segment struct {
	URL string `json:"url"`
	// IsInit marks the EXT-X-MAP initialization segment of an fMP4 stream.
	IsInit bool `json:"is_init"`
	// Duration is the EXTINF duration in seconds, zero for the init segment.
	Duration float64 `json:"duration,omitempty"`
}

// Variant is one rendition listed by a master playlist.
type Variant struct {
	URL              string `json:"url"`
	Bandwidth        int    `json:"bandwidth"`
	AverageBandwidth int    `json:"average_bandwidth,omitempty"`
	// Resolution is WIDTHxHEIGHT, empty when the playlist does not declare it.
	Resolution string `json:"resolution,omitempty"`
}

// Document is the structured form of one fetched playlist. It is not modified after parsing.
type Document struct {
	URL            string    `json:"url"`
	IsMaster       bool      `json:"is_master"`
	Variants       []Variant `json:"variants,omitempty"`
	Segments       []Segment `json:"segments,omitempty"`
	IsEncrypted    bool      `json:"is_encrypted"`
	TargetDuration int       `json:"target_duration,omitempty"`
}

// HasInitSegment reports whether the document carries an EXT-X-MAP segment.
func (d *Document) HasInitSegment() bool {
	for _, s := range d.Segments {
		if s.IsInit {
			return true
		}
	}
	return false
}

// Duration is the sum of all EXTINF durations.
func (d *Document) Duration() float64 {
	var total float64
	for _, s := range d.Segments {
		total += s.Duration
	}
	return total
}

var (
	mapURIRegex     = regexp.MustCompile(`URI=["']?([^"',\s]+)["']?`)
	resolutionRegex = regexp.MustCompile(`^(\d+)x(\d+)$`)
)

// BaseURL strips the query string of playlistURL and truncates it after the last '/'.
func BaseURL(playlistURL string) string {
	withoutQuery := playlistURL
	if i := strings.Index(withoutQuery, "?"); i >= 0 {
		withoutQuery = withoutQuery[:i]
	}
	return withoutQuery[:strings.LastIndex(withoutQuery, "/")+1]
}

// ResolveURI resolves a playlist URI against base.
func ResolveURI(base, uri string) string {
	if strings.HasPrefix(uri, "http") {
		return uri
	}
	b, err := url.Parse(base)
	if err != nil || b.Scheme == "" {
		return base + uri
	}
	ref, err := url.Parse(uri)
	if err != nil {
		return base + uri
	}
	return b.ResolveReference(ref).String()
}

// ParseContent parses playlist text fetched from playlistURL.
// Encryption is only flagged here, the caller decides whether to continue.
func ParseContent(content, playlistURL string) *Document {
	base := BaseURL(playlistURL)
	doc := &Document{URL: playlistURL}

	var lines []string
	for _, l := range strings.Split(content, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}

	next := func(i int) (string, bool) {
		if i+1 < len(lines) && !strings.HasPrefix(lines[i+1], "#") {
			return lines[i+1], true
		}
		return "", false
	}

	hasInit := false
	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, "#EXT-X-KEY"):
			if !strings.Contains(line, "METHOD=NONE") {
				doc.IsEncrypted = true
			}

		case strings.HasPrefix(line, "#EXT-X-MAP"):
			// Only the first map is used.
			if m := mapURIRegex.FindStringSubmatch(line); m != nil && !hasInit {
				doc.Segments = append(doc.Segments, Segment{URL: ResolveURI(base, m[1]), IsInit: true})
				hasInit = true
			}

		case strings.HasPrefix(line, "#EXT-X-STREAM-INF"):
			doc.IsMaster = true
			uri, ok := next(i)
			if !ok {
				continue
			}
			attrs := parseAttributes(strings.TrimPrefix(line, "#EXT-X-STREAM-INF:"))
			v := Variant{URL: ResolveURI(base, uri)}
			v.Bandwidth, _ = strconv.Atoi(attrs["BANDWIDTH"])
			v.AverageBandwidth, _ = strconv.Atoi(attrs["AVERAGE-BANDWIDTH"])
			if res := attrs["RESOLUTION"]; resolutionRegex.MatchString(res) {
				v.Resolution = res
			}
			doc.Variants = append(doc.Variants, v)

		case strings.HasPrefix(line, "#EXTINF"):
			uri, ok := next(i)
			if !ok {
				continue
			}
			doc.Segments = append(doc.Segments, Segment{
				URL:      ResolveURI(base, uri),
				Duration: parseExtinfDuration(line),
			})

		case strings.HasPrefix(line, "#EXT-X-TARGETDURATION:"):
			doc.TargetDuration, _ = strconv.Atoi(strings.TrimPrefix(line, "#EXT-X-TARGETDURATION:"))
		}
	}

	return doc
}

// parseExtinfDuration reads "#EXTINF:<duration>,<title>".
func parseExtinfDuration(line string) float64 {
	value := strings.TrimPrefix(line, "#EXTINF:")
	if i := strings.Index(value, ","); i >= 0 {
		value = value[:i]
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0
	}
	return d
}

// parseAttributes splits an attribute list on commas that are not inside quotes.
func parseAttributes(list string) map[string]string {
	attrs := make(map[string]string)
	var (
		key, cur strings.Builder
		inQuote  bool
		inValue  bool
	)
	flush := func() {
		if k := strings.TrimSpace(key.String()); k != "" {
			attrs[k] = strings.Trim(strings.TrimSpace(cur.String()), `"`)
		}
		key.Reset()
		cur.Reset()
		inValue = false
	}
	for _, r := range list {
		switch {
		case r == '"':
			inQuote = !inQuote
			cur.WriteRune(r)
		case r == ',' && !inQuote:
			flush()
		case r == '=' && !inValue:
			inValue = true
		case inValue:
			cur.WriteRune(r)
		default:
			key.WriteRune(r)
		}
	}
	flush()
	return attrs
}
