package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// CopyBatchSize bounds the rows sent in one COPY so a large import does not
// hold a single statement open for the whole file.
const CopyBatchSize = 5000

// CopyRows bulk-inserts rows with the COPY protocol, batchSize rows at a time
// (CopyBatchSize when batchSize <= 0). It returns the rows written before the
// first failing batch.
func CopyRows(ctx context.Context, pool Pool, table string, columns []string, rows [][]any, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = CopyBatchSize
	}
	var total int64
	for start := 0; start < len(rows); start += batchSize {
		end := min(start+batchSize, len(rows))
		n, err := pool.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows[start:end]))
		total += n
		if err != nil {
			return total, eris.Wrapf(err, "db: copy into %s (rows %d-%d)", table, start, end-1)
		}
	}
	return total, nil
}
