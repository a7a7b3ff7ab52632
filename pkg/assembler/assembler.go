// Package assembler joins fetched segments into one transport stream or fMP4 buffer.
package assembler

import (
	"github.com/heyjunin/hlsgrab/pkg/segments"
)

// Output is the assembled stream.
type Output struct {
	Data []byte
	// HasInit reports whether an init segment was fetched and placed first.
	HasInit bool
	// Included counts the results written to Data. Skipped counts failed results and
	// results whose index is out of range or repeated.
	Included int
	Skipped  int
}

// Assemble concatenates the successful results: the init segment first, wherever it
// sits in results, then every other segment in ascending index order. Bytes are copied
// unchanged. When nothing succeeded Data is empty.
func Assemble(results []segments.Result) Output {
	var out Output

	ordered := make([]*segments.Result, len(results))
	var init *segments.Result
	size := 0
	for i := range results {
		r := &results[i]
		switch {
		case !r.OK:
			out.Skipped++
			continue
		case r.IsInit && init == nil:
			init = r
		case r.Index >= 0 && r.Index < len(ordered) && ordered[r.Index] == nil:
			ordered[r.Index] = r
		default:
			// Out of range or a repeated index.
			out.Skipped++
			continue
		}
		out.Included++
		size += len(r.Data)
	}

	out.Data = make([]byte, 0, size)
	if init != nil {
		out.HasInit = true
		out.Data = append(out.Data, init.Data...)
	}
	for _, r := range ordered {
		if r != nil {
			out.Data = append(out.Data, r.Data...)
		}
	}
	return out
}
