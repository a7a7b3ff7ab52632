// Package sink receives the finished bytes of a download.
package sink

import (
	"context"
	"path"
	"strings"
)

// MIME labels for delivered streams.
const (
	MIMEMP4 = "video/mp4"
	MIMETS  = "video/mp2t"
)

// DefaultFilename is used when a delivery carries no usable name.
const DefaultFilename = "video.mp4"

// Delivery is one finished file.
type Delivery struct {
	JobID    string
	Filename string
	MIME     string
	Data     []byte
}

// Sink persists or forwards deliveries. A returned error fails the job.
type Sink interface {
	Deliver(ctx context.Context, d Delivery) error
}

// Func adapts a function to Sink.
type Func func(ctx context.Context, d Delivery) error

// Deliver calls f.
func (f Func) Deliver(ctx context.Context, d Delivery) error {
	return f(ctx, d)
}

// CleanFilename reduces name to a single safe path element.
func CleanFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(path.Clean("/" + name))
	name = strings.Map(func(r rune) rune {
		switch r {
		case '<', '>', ':', '"', '|', '?', '*':
			return '_'
		}
		if r < 0x20 {
			return -1
		}
		return r
	}, name)
	name = strings.TrimSpace(name)
	if name == "" || name == "/" || name == "." || name == ".." {
		return DefaultFilename
	}
	return name
}
