package hls

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Conservative average bitrates (bits per second) per resolution height, used when a
// playlist gives no bandwidth at all. They err on the low side.
var DefaultBitrates = []struct {
	MinHeight int
	Bitrate   int
}{
	{2160, 12_000_000},
	{1440, 6_000_000},
	{1080, 3_500_000},
	{720, 2_000_000},
	{480, 1_000_000},
	{360, 600_000},
	{0, 400_000},
}

const (
	// BANDWIDTH is a peak value, the average is usually 50-60% of it.
	bandwidthCorrection = 0.5
	// fallbackBitrate is used when nothing else is known about the stream.
	fallbackBitrate = 1_500_000
)

// ParseResolution splits "1920x1080" into width and height. ok is false for unknown resolutions.
func ParseResolution(resolution string) (width, height int, ok bool) {
	m := resolutionRegex.FindStringSubmatch(resolution)
	if m == nil {
		return 0, 0, false
	}
	width, _ = strconv.Atoi(m[1])
	height, _ = strconv.Atoi(m[2])
	return width, height, true
}

// Height returns the vertical resolution of v, or 0 when unknown.
func (v Variant) Height() int {
	_, h, _ := ParseResolution(v.Resolution)
	return h
}

// Label is the human readable quality of v, used in progress messages.
func (v Variant) Label() string {
	if v.Resolution != "" {
		return v.Resolution
	}
	if v.Bandwidth > 0 {
		return fmt.Sprintf("%d kbps", v.Bandwidth/1000)
	}
	return "unknown"
}

// less orders a before b when a is the better rendition.
func less(a, b Variant) bool {
	ah, bh := a.Height(), b.Height()
	if ah > 0 && bh > 0 && ah != bh {
		return ah > bh
	}
	return a.Bandwidth > b.Bandwidth
}

// SortVariants returns a copy of variants, best first: by height when both resolutions
// are known, then by bandwidth.
func SortVariants(variants []Variant) []Variant {
	sorted := make([]Variant, len(variants))
	copy(sorted, variants)
	sort.SliceStable(sorted, func(i, j int) bool {
		return less(sorted[i], sorted[j])
	})
	return sorted
}

// SelectBestVariant picks the best rendition. ok is false when variants is empty.
func SelectBestVariant(variants []Variant) (Variant, bool) {
	if len(variants) == 0 {
		return Variant{}, false
	}
	return SortVariants(variants)[0], true
}

// FormatVariants formats variants for logs.
func FormatVariants(variants []Variant) string {
	parts := make([]string, 0, len(variants))
	for _, v := range variants {
		parts = append(parts, fmt.Sprintf("%s@%dk", v.Label(), v.Bandwidth/1000))
	}
	return strings.Join(parts, ", ")
}

// EstimateBitrateFromResolution returns a conservative average bitrate for resolution.
func EstimateBitrateFromResolution(resolution string) int {
	_, h, ok := ParseResolution(resolution)
	if !ok {
		return 0
	}
	for _, b := range DefaultBitrates {
		if h >= b.MinHeight {
			return b.Bitrate
		}
	}
	return 0
}

// EffectiveBandwidth prefers AVERAGE-BANDWIDTH, then a corrected BANDWIDTH, then a
// resolution based guess.
func EffectiveBandwidth(v Variant) int {
	switch {
	case v.AverageBandwidth > 0:
		return v.AverageBandwidth
	case v.Bandwidth > 0:
		return int(math.Round(float64(v.Bandwidth) * bandwidthCorrection))
	default:
		return EstimateBitrateFromResolution(v.Resolution)
	}
}

// EstimateSize guesses the byte size of a media playlist for display purposes.
// variant may be nil when the playlist was not reached through a master.
// It is not used anywhere download correctness matters.
func EstimateSize(media *Document, variant *Variant) int64 {
	if media == nil {
		return 0
	}
	duration := media.Duration()
	if duration <= 0 {
		return 0
	}
	bitrate := 0
	if variant != nil {
		bitrate = EffectiveBandwidth(*variant)
	}
	if bitrate == 0 {
		bitrate = fallbackBitrate
	}
	return int64(math.Round(float64(bitrate) / 8 * duration))
}
