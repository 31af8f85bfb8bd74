package codec

import (
	"bytes"
	"context"
	"io"
)

const readChunkSize = 32 * 1024

// SplitLines splits buf on '\n'. Complete lines are trimmed and returned, blank
// lines are dropped and the trailing incomplete line is returned as rest.
func SplitLines(buf []byte) (lines [][]byte, rest []byte) {
	for {
		idx := bytes.IndexByte(buf, '\n')
		if idx < 0 {
			return lines, buf
		}
		line := bytes.TrimSpace(buf[:idx])
		buf = buf[idx+1:]
		if len(line) == 0 {
			continue
		}
		lines = append(lines, line)
	}
}

// Lines accumulates chunks of newline-delimited input.
type Lines struct {
	buf []byte
}

// Feed appends chunk and returns the lines it completed. Returned slices are
// copies and stay valid after subsequent calls.
func (l *Lines) Feed(chunk []byte) [][]byte {
	l.buf = append(l.buf, chunk...)
	lines, rest := SplitLines(l.buf)
	for i, line := range lines {
		lines[i] = bytes.Clone(line)
	}
	l.buf = append(l.buf[:0], rest...)
	return lines
}

// Remainder returns the buffered incomplete line.
func (l *Lines) Remainder() []byte {
	return l.buf
}

// ReadLines reads r until EOF and calls fn for every complete line. A final
// line without a terminator is delivered at EOF.
func ReadLines(ctx context.Context, r io.Reader, fn func(line []byte)) error {
	lines := &Lines{}
	chunk := make([]byte, readChunkSize)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			for _, line := range lines.Feed(chunk[:n]) {
				fn(line)
			}
		}
		if err != nil {
			if err == io.EOF {
				if last := bytes.TrimSpace(lines.Remainder()); len(last) > 0 {
					fn(bytes.Clone(last))
				}
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}
