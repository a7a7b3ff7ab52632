package coordinator

import (
	"context"
	"fmt"
	"math"
	"mime"
	"path"
	"strings"

	"github.com/heyjunin/hlsgrab/pkg/assembler"
	"github.com/heyjunin/hlsgrab/pkg/downloader"
	"github.com/heyjunin/hlsgrab/pkg/errors"
	"github.com/heyjunin/hlsgrab/pkg/hls"
	"github.com/heyjunin/hlsgrab/pkg/metrics"
	"github.com/heyjunin/hlsgrab/pkg/progress"
	"github.com/heyjunin/hlsgrab/pkg/segments"
	"github.com/heyjunin/hlsgrab/pkg/sink"
)

// Progress checkpoints of an HLS job. Segment fetching spans 0 to fetchShare.
const (
	fetchShare       = 80
	processingPct    = 85
	finalizingPct    = 90
	savingPct        = 95
	directFetchShare = 90
	directUnknownCap = 80
)

func (c *Coordinator) runHLS(ctx context.Context, entry *jobEntry, hdrs map[string]string) error {
	job := entry.snapshot()
	c.emit(entry, progress.StatusStarting, 0, "Preparing download...")

	hdrs = c.resolveHeaders(ctx, job.URL, hdrs, "")

	rctx, span := c.tracer.Start(ctx, "hls.resolve")
	res, err := c.parser.Resolve(rctx, job.URL, hdrs, func(v hls.Variant) {
		c.emit(entry, progress.StatusStarting, 0, "Quality: "+v.Label())
	})
	span.End()
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	segs := res.Media.Segments
	if len(segs) == 0 {
		return errors.FromCode(errors.EmptyPlaylistError, errors.ErrCodeNoSegments, job.URL)
	}

	c.emit(entry, progress.StatusDownloading, 0, "Downloading...")

	fctx, span := c.tracer.Start(ctx, "segments.fetch")
	results, err := c.fetcher.FetchAll(fctx, segs, c.opts.Concurrency, hdrs, func(completed, total int) {
		if ctx.Err() != nil {
			return
		}
		pct := int(math.Round(float64(completed) / float64(total) * fetchShare))
		c.emit(entry, progress.StatusDownloading, pct, fmt.Sprintf("Downloading... %d%%", pct))
	})
	span.End()
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if segments.Succeeded(results) == 0 {
		return errors.FromCode(errors.NoDataError, errors.ErrCodeAllSegmentsFailed, job.URL)
	}

	c.emit(entry, progress.StatusProcessing, processingPct, "Processing...")

	_, span = c.tracer.Start(ctx, "assemble")
	out := assembler.Assemble(results)
	results = nil
	span.End()

	if out.HasInit {
		c.emit(entry, progress.StatusProcessing, finalizingPct, "Finalizing MP4...")
	} else {
		c.emit(entry, progress.StatusProcessing, finalizingPct, "Converting to MP4...")
	}

	zctx, span := c.tracer.Start(ctx, "finalize")
	final := c.finalizer.Finalize(zctx, job.ID, out.Data, out.HasInit)
	span.End()
	if ctx.Err() != nil {
		return ctx.Err()
	}

	filename, mimeType := job.Filename, sink.MIMEMP4
	if !final.IsMP4 {
		c.emit(entry, progress.StatusProcessing, finalizingPct, "Conversion failed, saving as TS")
		filename, mimeType = tsFilename(filename), sink.MIMETS
	}

	return c.deliver(ctx, entry, filename, mimeType, final.Data)
}

func (c *Coordinator) runDirect(ctx context.Context, entry *jobEntry, hdrs map[string]string, pageURL string) error {
	job := entry.snapshot()
	c.emit(entry, progress.StatusStarting, 0, "Starting download...")

	hdrs = c.resolveHeaders(ctx, job.URL, hdrs, pageURL)
	if pageURL != "" && !hasHeader(hdrs, "Referer") {
		hdrs["Referer"] = pageURL
	}

	c.emit(entry, progress.StatusStarting, 0, "Fetching video...")

	var lastMessage string
	var unknownPct int
	fctx, span := c.tracer.Start(ctx, "direct.fetch")
	data, err := c.client.Download(fctx, job.URL, hdrs, func(received, total int64) {
		if ctx.Err() != nil {
			return
		}
		var pct int
		var message string
		if total > 0 {
			pct = int(math.Round(float64(received) / float64(total) * directFetchShare))
			message = fmt.Sprintf("Downloading... %.1f/%.1f MB", megabytes(received), megabytes(total))
		} else {
			message = fmt.Sprintf("Downloading... %.1f MB", megabytes(received))
		}
		if message == lastMessage {
			return
		}
		if total <= 0 {
			unknownPct = min(directUnknownCap, unknownPct+1)
			pct = unknownPct
		}
		lastMessage = message
		c.emit(entry, progress.StatusDownloading, pct, message)
	})
	span.End()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		code := errors.ErrCodeDirectFetch
		var se *downloader.StatusError
		if errors.As(err, &se) {
			code = errors.ErrCodeDirectStatus
		}
		return errors.Wrap(err, errors.NetworkError, errors.GetErrorMessage(code), code)
	}
	metrics.BytesDownloadedTotal.Add(float64(len(data)))

	return c.deliver(ctx, entry, job.Filename, directMIME(job.Filename), data)
}

// deliver hands the finished bytes to the sink.
func (c *Coordinator) deliver(ctx context.Context, entry *jobEntry, filename, mimeType string, data []byte) error {
	c.emit(entry, progress.StatusProcessing, savingPct, "Saving file...")

	dctx, span := c.tracer.Start(ctx, "deliver")
	defer span.End()

	err := c.opts.Sink.Deliver(dctx, sink.Delivery{
		JobID:    entry.snapshot().ID,
		Filename: filename,
		MIME:     mimeType,
		Data:     data,
	})
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var se *errors.StructuredError
	if errors.As(err, &se) {
		return err
	}
	return errors.Wrap(err, errors.DeliveryError, errors.GetErrorMessage(errors.ErrCodeSinkRejected), errors.ErrCodeSinkRejected)
}

// tsFilename swaps a trailing .mp4 for .ts.
func tsFilename(name string) string {
	if strings.HasSuffix(strings.ToLower(name), ".mp4") {
		return name[:len(name)-len(".mp4")] + ".ts"
	}
	return name
}

func directMIME(name string) string {
	if t := mime.TypeByExtension(strings.ToLower(path.Ext(name))); strings.HasPrefix(t, "video/") || strings.HasPrefix(t, "image/") {
		return t
	}
	return sink.MIMEMP4
}

func hasHeader(h map[string]string, name string) bool {
	for k := range h {
		if strings.EqualFold(k, name) {
			return true
		}
	}
	return false
}

func megabytes(n int64) float64 {
	return float64(n) / 1024 / 1024
}
