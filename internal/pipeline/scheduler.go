package pipeline

import (
	"context"
	"sync"

	"github.com/postrv/patina/internal/tool"
)

// schedule partitions approved calls by classification and executes
// them. Read-only calls fan out under the concurrency bound; mutating
// and unknown calls run strictly one at a time, each completing its post
// hook before the next starts, after the read-only group has drained.
// Results land at each call's original batch index.
func (p *Pipeline) schedule(ctx context.Context, approved []plan, results []tool.Result) {
	var readOnly, serial []plan
	for _, pl := range approved {
		if pl.class == tool.ClassReadOnly {
			readOnly = append(readOnly, pl)
		} else {
			serial = append(serial, pl)
		}
	}

	if len(readOnly) > 0 {
		sem := make(chan struct{}, p.cfg.Concurrency)
		var wg sync.WaitGroup
		for _, pl := range readOnly {
			wg.Add(1)
			go func(pl plan) {
				defer wg.Done()
				sem <- struct{}{}
				defer func() { <-sem }()
				results[pl.index] = p.execute(ctx, pl)
			}(pl)
		}
		wg.Wait()
	}

	for _, pl := range serial {
		if ctx.Err() != nil {
			results[pl.index] = tool.Cancelled(pl.call, "batch cancelled")
			continue
		}
		results[pl.index] = p.execute(ctx, pl)
	}
}
