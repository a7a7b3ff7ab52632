package hls

import (
	"context"
	"fmt"

	"github.com/heyjunin/hlsgrab/pkg/downloader"
	"github.com/heyjunin/hlsgrab/pkg/errors"
	"github.com/heyjunin/hlsgrab/pkg/logger"
)

// Getter fetches a URL with the given request headers and returns the body.
// *downloader.Client satisfies it.
type Getter interface {
	Get(ctx context.Context, url string, headers map[string]string) ([]byte, error)
}

// Parser fetches and parses HLS playlists.
type Parser struct {
	getter Getter
	log    logger.Logger
}

// NewParser creates a Parser. A nil logger falls back to the global one.
func NewParser(getter Getter, log logger.Logger) *Parser {
	return &Parser{getter: getter, log: logger.OrDefault(log)}
}

// Parse fetches url and parses it.
// It fails with a NetworkError when the fetch does not succeed and with an
// EmptyPlaylistError when a media playlist has no segment. An encrypted playlist is
// returned without error, callers must check IsEncrypted.
func (p *Parser) Parse(ctx context.Context, url string, headers map[string]string) (*Document, error) {
	p.log.Debug("Fetching playlist", "hls", map[string]interface{}{
		"url": logger.Truncate(url, 100),
	})

	body, err := p.getter.Get(ctx, url, headers)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrap(ctx.Err(), errors.CancelledError, errors.GetErrorMessage(errors.ErrCodeCancelled), errors.ErrCodeCancelled)
		}
		code := errors.ErrCodePlaylistFetch
		var statusErr *downloader.StatusError
		if errors.As(err, &statusErr) {
			code = errors.ErrCodePlaylistStatus
		}
		return nil, errors.Wrap(err, errors.NetworkError, errors.GetErrorMessage(code), code)
	}

	doc := ParseContent(string(body), url)

	p.log.Debug("Playlist parsed", "hls", map[string]interface{}{
		"is_master":    doc.IsMaster,
		"variants":     len(doc.Variants),
		"segments":     len(doc.Segments),
		"is_encrypted": doc.IsEncrypted,
	})

	if !doc.IsMaster && len(doc.Segments) == 0 {
		return nil, errors.FromCode(errors.EmptyPlaylistError, errors.ErrCodeNoSegments, url)
	}
	return doc, nil
}

// Resolution is the outcome of Resolve: the media playlist to download and, when the
// request pointed at a master playlist, the selected variant.
type Resolution struct {
	Master  *Document
	Variant *Variant
	Media   *Document
}

// Resolve parses url and, for a master playlist, follows the best variant.
// onVariant, when not nil, is called with the chosen variant before it is fetched.
// Encryption of either playlist aborts with an EncryptionError.
func (p *Parser) Resolve(ctx context.Context, url string, headers map[string]string, onVariant func(Variant)) (*Resolution, error) {
	doc, err := p.Parse(ctx, url, headers)
	if err != nil {
		return nil, err
	}
	if doc.IsEncrypted {
		return nil, errors.FromCode(errors.EncryptionError, errors.ErrCodeEncryptedPlaylist, url)
	}
	if !doc.IsMaster {
		return &Resolution{Media: doc}, nil
	}

	best, ok := SelectBestVariant(doc.Variants)
	if !ok {
		return nil, errors.FromCode(errors.EmptyPlaylistError, errors.ErrCodeNoVariants, url)
	}

	p.log.Info("Selected variant", "hls", map[string]interface{}{
		"quality":  best.Label(),
		"variants": FormatVariants(doc.Variants),
	})
	if onVariant != nil {
		onVariant(best)
	}

	media, err := p.Parse(ctx, best.URL, headers)
	if err != nil {
		return nil, fmt.Errorf("variant %s: %w", best.Label(), err)
	}
	if media.IsEncrypted {
		return nil, errors.FromCode(errors.EncryptionError, errors.ErrCodeEncryptedVariant, best.URL)
	}
	if media.IsMaster {
		// Nested masters are not followed.
		return nil, errors.FromCode(errors.EmptyPlaylistError, errors.ErrCodeNoSegments, best.URL)
	}

	return &Resolution{Master: doc, Variant: &best, Media: media}, nil
}
