package scan

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sourcegraph/conc/pool"
)

// CountRows drains every partition of op and returns the row count of each.
// At most parallelism partitions are read at once (<= 0 means all of them).
// The first failure cancels the remaining partitions.
func CountRows(ctx context.Context, op Operator, parallelism int) ([]int64, error) {
	n := op.NumPartitions()
	counts := make([]int64, n)
	if n == 0 {
		return counts, nil
	}
	if parallelism <= 0 || parallelism > n {
		parallelism = n
	}

	p := pool.New().WithMaxGoroutines(parallelism).WithErrors().WithContext(ctx).WithCancelOnError()
	for part := 0; part < n; part++ {
		p.Go(func(ctx context.Context) error {
			c, err := countPartition(ctx, op, part)
			if err != nil {
				return fmt.Errorf("scan: partition %d: %w", part, err)
			}
			// each goroutine owns its slot
			counts[part] = c
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}
	return counts, nil
}

func countPartition(ctx context.Context, op Operator, part int) (int64, error) {
	r, err := op.Open(ctx, part)
	if err != nil {
		return 0, err
	}
	var n int64
	for {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		n += rec.NumRows()
		rec.Release()
	}
}
