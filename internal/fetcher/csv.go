package fetcher

import (
	"bufio"
	"context"
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

const utf8BOM = "\ufeff"

// CSVOptions configures the streaming CSV parser.
type CSVOptions struct {
	// Delimiter is sniffed from the header line when zero.
	Delimiter  rune
	Comment    rune
	LazyQuotes bool
}

// StreamCSV reads the header row, then streams the remaining rows on a
// channel. Fields are trimmed and a leading BOM is dropped. Both channels
// close when the input is exhausted; the first read error ends the stream.
func StreamCSV(ctx context.Context, r io.Reader, opts CSVOptions) ([]string, <-chan []string, <-chan error, error) {
	br := bufio.NewReader(r)
	if opts.Delimiter == 0 {
		opts.Delimiter = sniffDelimiter(br)
	}

	reader := csv.NewReader(br)
	reader.Comma = opts.Delimiter
	reader.Comment = opts.Comment
	reader.LazyQuotes = opts.LazyQuotes
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil, nil, eris.New("fetcher: csv: empty input")
	}
	if err != nil {
		return nil, nil, nil, eris.Wrap(err, "fetcher: csv: read header")
	}
	trimFields(header)
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], utf8BOM)
	}

	rowCh := make(chan []string, 64)
	errCh := make(chan error, 1)
	go func() {
		defer close(rowCh)
		defer close(errCh)

		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "fetcher: csv: cancelled")
				return
			}
			row, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "fetcher: csv: read row")
				return
			}
			trimFields(row)

			select {
			case rowCh <- row:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "fetcher: csv: cancelled")
				return
			}
		}
	}()
	return header, rowCh, errCh, nil
}

// sniffDelimiter picks ';', tab or ',' by frequency on the first line.
func sniffDelimiter(br *bufio.Reader) rune {
	line, _ := br.Peek(4096)
	if i := strings.IndexByte(string(line), '\n'); i >= 0 {
		line = line[:i]
	}
	best, bestCount := ',', strings.Count(string(line), ",")
	for _, d := range []rune{';', '\t'} {
		if n := strings.Count(string(line), string(d)); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

func trimFields(row []string) {
	for i, f := range row {
		row[i] = strings.TrimSpace(f)
	}
}
