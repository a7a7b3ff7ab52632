package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/heyjunin/hlsgrab/pkg/downloader"
	"github.com/heyjunin/hlsgrab/pkg/hls"
)

type inspectReport struct {
	URL           string        `json:"url"`
	IsMaster      bool          `json:"is_master"`
	IsEncrypted   bool          `json:"is_encrypted"`
	Variants      []hls.Variant `json:"variants,omitempty"`
	Selected      *hls.Variant  `json:"selected,omitempty"`
	Segments      int           `json:"segments"`
	HasInit       bool          `json:"has_init"`
	Duration      float64       `json:"duration_seconds"`
	EstimatedSize int64         `json:"estimated_size_bytes"`
}

func newInspectCmd() *cobra.Command {
	var (
		headerFlags []string
		asJSON      bool
	)
	cmd := &cobra.Command{
		Use:   "inspect [flags] URL",
		Short: "Show the variants and segments of an HLS playlist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hdrs, err := parseHeaders(headerFlags)
			if err != nil {
				return withCode(ExitInvalidArgs, err)
			}
			report, err := inspect(cmd.Context(), downloader.NewClient(downloader.DefaultOptions()), args[0], hdrs)
			if err != nil {
				return withCode(ExitDownloadFailed, err)
			}
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			printReport(os.Stdout, report)
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&headerFlags, "header", "H", nil, "Request header \"Name: value\" (repeatable)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	return cmd
}

// inspect parses url and, for a master playlist, the variant a download would pick.
// Encryption is reported, not treated as an error.
func inspect(ctx context.Context, getter hls.Getter, url string, hdrs map[string]string) (*inspectReport, error) {
	parser := hls.NewParser(getter, nil)
	doc, err := parser.Parse(ctx, url, hdrs)
	if err != nil {
		return nil, err
	}

	report := &inspectReport{URL: url, IsMaster: doc.IsMaster, IsEncrypted: doc.IsEncrypted}
	media := doc
	if doc.IsMaster {
		report.Variants = hls.SortVariants(doc.Variants)
		best, ok := hls.SelectBestVariant(doc.Variants)
		if !ok {
			return report, nil
		}
		report.Selected = &best
		media, err = parser.Parse(ctx, best.URL, hdrs)
		if err != nil {
			return nil, fmt.Errorf("variant %s: %w", best.Label(), err)
		}
		report.IsEncrypted = report.IsEncrypted || media.IsEncrypted
	}

	report.Segments = len(media.Segments)
	report.HasInit = media.HasInitSegment()
	report.Duration = media.Duration()
	report.EstimatedSize = hls.EstimateSize(media, report.Selected)
	return report, nil
}

func printReport(w io.Writer, r *inspectReport) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "URL:\t%s\n", r.URL)
	if r.IsMaster {
		fmt.Fprintf(tw, "Type:\tmaster (%d variants)\n", len(r.Variants))
		for _, v := range r.Variants {
			marker := ""
			if r.Selected != nil && v.URL == r.Selected.URL {
				marker = "*"
			}
			fmt.Fprintf(tw, "  %s%s\t%d bps\t%s\n", marker, v.Label(), hls.EffectiveBandwidth(v), v.URL)
		}
	} else {
		fmt.Fprintf(tw, "Type:\tmedia\n")
	}
	fmt.Fprintf(tw, "Encrypted:\t%t\n", r.IsEncrypted)
	fmt.Fprintf(tw, "Segments:\t%d\n", r.Segments)
	fmt.Fprintf(tw, "Container:\t%s\n", containerName(r.HasInit))
	fmt.Fprintf(tw, "Duration:\t%.1fs\n", r.Duration)
	fmt.Fprintf(tw, "Estimated size:\t%.1f MB\n", float64(r.EstimatedSize)/1024/1024)
	tw.Flush()
}

func containerName(hasInit bool) string {
	if hasInit {
		return "fMP4"
	}
	return "MPEG-TS"
}
