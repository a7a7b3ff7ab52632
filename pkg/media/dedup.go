package media

import (
	"net/url"
	"regexp"
	"strings"
)

// sizeParams are query parameters that select a rendition of the same asset.
var sizeParams = []string{"w", "h", "width", "height", "size", "resize", "quality", "q", "dpr", "format"}

var (
	digitsRegex     = regexp.MustCompile(`^\d+$`)
	dimensionsRegex = regexp.MustCompile(`^\d+x\d+$`)
	// image_100x100.jpg and image-100x100.jpg both become image.jpg.
	pathSizeRegex = regexp.MustCompile(`(?i)[_-]\d+x\d+(\.[a-z]+)$`)
)

// NormalizeForDedup maps URLs that differ only in size or format selectors to the same
// string. Remaining query parameters are sorted. Unparseable input is returned as is.
func NormalizeForDedup(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return rawURL
	}

	query := u.Query()
	for _, p := range sizeParams {
		query.Del(p)
	}
	for key, values := range query {
		if digitsRegex.MatchString(key) || dimensionsRegex.MatchString(key) || anyDigits(values) {
			query.Del(key)
		}
	}

	p := pathSizeRegex.ReplaceAllString(u.EscapedPath(), "$1")

	out := strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host) + p
	if encoded := query.Encode(); encoded != "" {
		out += "?" + encoded
	}
	return out
}

func anyDigits(values []string) bool {
	for _, v := range values {
		if digitsRegex.MatchString(v) {
			return true
		}
	}
	return false
}
