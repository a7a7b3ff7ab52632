package sink

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	"github.com/heyjunin/hlsgrab/pkg/errors"
	"github.com/heyjunin/hlsgrab/pkg/logger"
)

// maxUniquify bounds the "name (n).ext" probing.
const maxUniquify = 1000

// BlobOptions configures a BlobSink.
type BlobOptions struct {
	// Prefix is prepended to every key, e.g. "downloads/".
	Prefix string
	// Overwrite replaces an existing object instead of picking "name (1).ext".
	Overwrite bool
	// Logger defaults to the global logger.
	Logger logger.Logger
}

// BlobSink writes deliveries to a gocloud.dev/blob bucket.
type BlobSink struct {
	bucket *blob.Bucket
	opts   BlobOptions
	log    logger.Logger
	owned  bool

	// pending holds keys picked by in-flight deliveries that are not written yet.
	mu      sync.Mutex
	pending map[string]struct{}
}

// NewBlobSink wraps an open bucket. The caller keeps ownership of it.
func NewBlobSink(bucket *blob.Bucket, opts BlobOptions) *BlobSink {
	return &BlobSink{
		bucket:  bucket,
		opts:    opts,
		log:     logger.OrDefault(opts.Logger),
		pending: make(map[string]struct{}),
	}
}

// OpenBlobSink opens bucketURL (file://, mem://, s3://, gs://, ...) for the registered
// drivers. Close releases the bucket.
func OpenBlobSink(ctx context.Context, bucketURL string, opts BlobOptions) (*BlobSink, error) {
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("open bucket: %w", err)
	}
	s := NewBlobSink(bucket, opts)
	s.owned = true
	return s, nil
}

// Deliver writes d.Data under the cleaned filename and records the chosen key.
func (s *BlobSink) Deliver(ctx context.Context, d Delivery) error {
	key, err := s.reserve(ctx, CleanFilename(d.Filename))
	if err != nil {
		return errors.Wrap(err, errors.DeliveryError, errors.GetErrorMessage(errors.ErrCodeSinkWrite), errors.ErrCodeSinkWrite)
	}
	defer s.release(key)

	opts := &blob.WriterOptions{
		ContentType: d.MIME,
		Metadata:    map[string]string{"job-id": d.JobID},
	}
	if err := s.bucket.WriteAll(ctx, key, d.Data, opts); err != nil {
		return errors.Wrap(err, errors.DeliveryError, errors.GetErrorMessage(errors.ErrCodeSinkWrite), errors.ErrCodeSinkWrite)
	}

	s.log.Info("Delivered file", "sink", map[string]interface{}{
		"job_id": d.JobID,
		"key":    key,
		"mime":   d.MIME,
		"bytes":  len(d.Data),
	})
	return nil
}

// reserve returns the object key for filename, uniquified unless Overwrite is set.
// A key stays reserved until release, so concurrent deliveries of the same
// filename never pick the same key.
func (s *BlobSink) reserve(ctx context.Context, filename string) (string, error) {
	base := s.opts.Prefix + filename
	if s.opts.Overwrite {
		return base, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ext := path.Ext(filename)
	stem := strings.TrimSuffix(filename, ext)
	candidate := base
	for n := 1; n <= maxUniquify; n++ {
		if _, taken := s.pending[candidate]; taken {
			candidate = fmt.Sprintf("%s%s (%d)%s", s.opts.Prefix, stem, n, ext)
			continue
		}
		exists, err := s.bucket.Exists(ctx, candidate)
		if err != nil && gcerrors.Code(err) != gcerrors.NotFound {
			return "", err
		}
		if !exists {
			s.pending[candidate] = struct{}{}
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s%s (%d)%s", s.opts.Prefix, stem, n, ext)
	}
	return "", fmt.Errorf("no free name for %q", base)
}

func (s *BlobSink) release(key string) {
	s.mu.Lock()
	delete(s.pending, key)
	s.mu.Unlock()
}

// Close releases the bucket when the sink opened it.
func (s *BlobSink) Close() error {
	if !s.owned {
		return nil
	}
	return s.bucket.Close()
}
