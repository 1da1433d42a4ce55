package monitor

import (
	"bufio"
	"context"
	"io"
	"strings"
)

// Source produces console lines until ctx is done or the stream ends.
type Source interface {
	Name() string
	Run(ctx context.Context, onLine func(line string)) error
}

const maxLineBytes = 64 * 1024

// scanLines feeds trimmed non-empty lines from r to onLine. Invalid UTF-8 is
// dropped, as a serial link started mid-byte often produces some.
func scanLines(ctx context.Context, r io.Reader, onLine func(string)) error {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 4096), maxLineBytes)
	for s.Scan() {
		line := strings.TrimSpace(strings.ToValidUTF8(s.Text(), ""))
		if line == "" {
			continue
		}
		onLine(line)
	}
	if ctx.Err() != nil {
		return nil
	}
	return s.Err()
}
