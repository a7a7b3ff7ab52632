package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/heyjunin/hlsgrab/pkg/downloader"
	"github.com/heyjunin/hlsgrab/pkg/logger"
	"github.com/heyjunin/hlsgrab/pkg/media"
)

// headClient is the HEAD part of downloader.Client.
type headClient interface {
	Head(ctx context.Context, url string, headers map[string]string) (downloader.Info, error)
}

func newProbeCmd() *cobra.Command {
	var (
		headerFlags []string
		page        string
		asJSON      bool
		parallel    int
	)
	cmd := &cobra.Command{
		Use:   "probe [flags] URL...",
		Short: "Classify media URLs and list them without duplicates",
		Long: `probe sends a HEAD request for every URL, classifies it as image, video, HLS or DASH
from its extension and content type, and prints the de-duplicated catalog. Stream
segments are left out.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hdrs, err := parseHeaders(headerFlags)
			if err != nil {
				return withCode(ExitInvalidArgs, err)
			}
			dOpts := downloader.DefaultOptions()
			dOpts.Timeout = 15 * time.Second
			catalog := probe(cmd.Context(), downloader.NewClient(dOpts), args, hdrs, page, parallel)
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(catalog.Items())
			}
			printCatalog(os.Stdout, catalog)
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&headerFlags, "header", "H", nil, "Request header \"Name: value\" (repeatable)")
	cmd.Flags().StringVar(&page, "page", "", "Page URL the media was found on")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the catalog as JSON")
	cmd.Flags().IntVarP(&parallel, "parallel", "p", 4, "Concurrent HEAD requests")
	return cmd
}

// probe classifies urls. A failed HEAD falls back to the URL alone.
func probe(ctx context.Context, client headClient, urls []string, hdrs map[string]string, page string, parallel int) *media.Catalog {
	if parallel <= 0 {
		parallel = 1
	}
	items := make([]media.Item, len(urls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i, u := range urls {
		g.Go(func() error {
			item := media.Item{URL: u, PageURL: page, Size: -1, SeenAt: time.Now()}
			if info, err := client.Head(gctx, u, hdrs); err != nil {
				logger.Debug("HEAD failed, classifying by URL", "probe", map[string]interface{}{
					"url":   logger.Truncate(u, 100),
					"error": err.Error(),
				})
			} else {
				item.ContentType = info.ContentType
				item.Size = info.ContentLength
			}
			item.Kind = media.Classify(u, item.ContentType)
			items[i] = item
			return nil
		})
	}
	_ = g.Wait()

	catalog := media.NewCatalog()
	for _, item := range items {
		if item.Kind == media.KindUnknown {
			continue
		}
		catalog.Add(item)
	}
	return catalog
}

func printCatalog(w io.Writer, c *media.Catalog) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tSIZE\tFILENAME\tURL")
	for _, item := range c.Items() {
		size := "-"
		if item.Size >= 0 {
			size = fmt.Sprintf("%.1f MB", float64(item.Size)/1024/1024)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", item.Kind, size, item.Filename, item.URL)
	}
	tw.Flush()
}
