package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

// StreamJSONRows decodes a top-level JSON array of objects element by element
// and sends each object with its values rendered as strings. Arrays become
// "|"-joined lists and null becomes "". Both channels close when done.
func StreamJSONRows(ctx context.Context, r io.Reader) (<-chan map[string]string, <-chan error) {
	outCh := make(chan map[string]string, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(outCh)
		defer close(errCh)

		dec := json.NewDecoder(r)
		dec.UseNumber()

		tok, err := dec.Token()
		if err == io.EOF {
			return
		}
		if err != nil {
			errCh <- eris.Wrap(err, "fetcher: json: read opening token")
			return
		}
		if delim, ok := tok.(json.Delim); !ok || delim != '[' {
			errCh <- eris.Errorf("fetcher: json: expected '[', got %v", tok)
			return
		}

		for dec.More() {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "fetcher: json: cancelled")
				return
			}
			var obj map[string]any
			if err := dec.Decode(&obj); err != nil {
				errCh <- eris.Wrap(err, "fetcher: json: decode element")
				return
			}

			row := make(map[string]string, len(obj))
			for k, v := range obj {
				row[k] = stringify(v)
			}
			select {
			case outCh <- row:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "fetcher: json: cancelled")
				return
			}
		}
	}()
	return outCh, errCh
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case []any:
		parts := make([]string, 0, len(t))
		for _, e := range t {
			if s := stringify(e); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "|")
	default:
		return fmt.Sprint(t)
	}
}
