package core

import (
	"context"

	"github.com/leafmind/leafmind-go/pkg/memory"
)

// StreamedRecallResult is one item of a streaming recall: either a result
// or, on the final item, an error.
type StreamedRecallResult struct {
	// Result is the recalled concept for this item.
	Result *memory.RecallResult

	// Index is the 0-based position of this item in the ordered results.
	Index int

	// IsLast marks the final item of the stream.
	IsLast bool

	// Error reports a failed recall; the stream closes after it.
	Error error
}

// RecallStream performs the same recall as Recall but delivers the ordered
// results one at a time over a channel.
//
// The channel closes when every result has been sent, the context is
// cancelled, or an error item has been delivered.
//
// Example:
//
//	for item := range graph.RecallStream(ctx, core.RecallRequest{SourceID: &id}) {
//	    if item.Error != nil {
//	        log.Fatal(item.Error)
//	    }
//	    process(item.Result)
//	}
func (pg *PersistentGraph) RecallStream(ctx context.Context, req RecallRequest) <-chan *StreamedRecallResult {
	out := make(chan *StreamedRecallResult, 1)

	go func() {
		defer close(out)

		resp, err := pg.Recall(ctx, req)
		if err != nil {
			out <- &StreamedRecallResult{Error: err, IsLast: true}
			return
		}

		for i := range resp.Results {
			item := &StreamedRecallResult{
				Result: &resp.Results[i],
				Index:  i,
				IsLast: i == len(resp.Results)-1,
			}
			select {
			case out <- item:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}
