package hls

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSelectBestVariantPrefersHeight(t *testing.T) {
	variants := []Variant{
		{URL: "720", Resolution: "1280x720", Bandwidth: 2_000_000},
		{URL: "1080", Resolution: "1920x1080", Bandwidth: 5_000_000},
	}
	best, ok := SelectBestVariant(variants)
	assert.True(t, ok)
	assert.Equal(t, "1080", best.URL)

	// Height wins over bandwidth when both resolutions are known.
	variants = []Variant{
		{URL: "1080-low", Resolution: "1920x1080", Bandwidth: 1_000_000},
		{URL: "720-high", Resolution: "1280x720", Bandwidth: 9_000_000},
	}
	best, _ = SelectBestVariant(variants)
	assert.Equal(t, "1080-low", best.URL)
}

func TestSelectBestVariantFallsBackToBandwidth(t *testing.T) {
	variants := []Variant{
		{URL: "a", Bandwidth: 800_000},
		{URL: "b", Bandwidth: 3_000_000},
		{URL: "c", Bandwidth: 1_500_000},
	}
	best, ok := SelectBestVariant(variants)
	assert.True(t, ok)
	assert.Equal(t, "b", best.URL)

	same := []Variant{
		{URL: "x", Resolution: "1280x720", Bandwidth: 1_000_000},
		{URL: "y", Resolution: "1280x720", Bandwidth: 2_500_000},
	}
	best, _ = SelectBestVariant(same)
	assert.Equal(t, "y", best.URL)
}

func TestSelectBestVariantEmpty(t *testing.T) {
	_, ok := SelectBestVariant(nil)
	assert.False(t, ok)
}

func TestSortVariantsDoesNotMutateInput(t *testing.T) {
	variants := []Variant{{URL: "a", Bandwidth: 1}, {URL: "b", Bandwidth: 2}}
	sorted := SortVariants(variants)
	assert.Equal(t, "b", sorted[0].URL)
	assert.Equal(t, "a", variants[0].URL)
}

func TestVariantLabel(t *testing.T) {
	assert.Equal(t, "1920x1080", Variant{Resolution: "1920x1080"}.Label())
	assert.Equal(t, "2500 kbps", Variant{Bandwidth: 2_500_000}.Label())
	assert.Equal(t, "unknown", Variant{}.Label())
}

func TestEstimateBitrateFromResolution(t *testing.T) {
	tests := map[string]int{
		"3840x2160": 12_000_000,
		"2560x1440": 6_000_000,
		"1920x1080": 3_500_000,
		"1280x720":  2_000_000,
		"854x480":   1_000_000,
		"640x360":   600_000,
		"426x240":   400_000,
		"":          0,
		"bogus":     0,
	}
	for res, want := range tests {
		assert.Equal(t, want, EstimateBitrateFromResolution(res), res)
	}
}

func TestEstimateSize(t *testing.T) {
	media := &Document{Segments: []Segment{{Duration: 60}, {Duration: 40}}}

	// AVERAGE-BANDWIDTH wins.
	v := &Variant{Bandwidth: 4_000_000, AverageBandwidth: 1_000_000}
	assert.Equal(t, int64(12_500_000), EstimateSize(media, v))

	// Peak bandwidth is halved.
	v = &Variant{Bandwidth: 4_000_000}
	assert.Equal(t, int64(25_000_000), EstimateSize(media, v))

	// Resolution defaults.
	v = &Variant{Resolution: "1280x720"}
	assert.Equal(t, int64(25_000_000), EstimateSize(media, v))

	// Nothing known: 1.5 Mbps.
	assert.Equal(t, int64(18_750_000), EstimateSize(media, nil))

	assert.Equal(t, int64(0), EstimateSize(&Document{}, nil))
	assert.Equal(t, int64(0), EstimateSize(nil, nil))
}
