package transport

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/GabrielCarpr/mediator/bus"
	"github.com/goccy/go-json"
)

// WriteLines drains s into w as JSON lines, returning how many items were written.
// Writers with a Flush method, such as HTTP responses, are flushed after every line.
func WriteLines[R any](w io.Writer, s *bus.Stream[R]) (int, error) {
	defer s.Close()
	flusher, _ := w.(interface{ Flush() })
	enc := json.NewEncoder(w)

	n := 0
	for s.Next() {
		if err := enc.Encode(s.Value()); err != nil {
			return n, fmt.Errorf("transport: encoding stream item %d: %w", n, err)
		}
		n++
		if flusher != nil {
			flusher.Flush()
		}
	}
	return n, s.Err()
}

// StreamToFile drains s into a JSON lines file at path, replacing it. The items
// written before a failure are kept.
func StreamToFile[R any](s *bus.Stream[R], path string) (n int, err error) {
	f, err := os.Create(path)
	if err != nil {
		s.Close()
		return 0, err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	buf := bufio.NewWriter(f)
	n, err = WriteLines(buf, s)
	if ferr := buf.Flush(); err == nil {
		err = ferr
	}
	return n, err
}
