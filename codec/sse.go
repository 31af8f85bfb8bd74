package codec

import (
	"bytes"
	"context"
	"io"
)

var (
	crlf           = []byte("\r\n")
	lf             = []byte("\n")
	eventSeparator = []byte("\n\n")
	dataField      = []byte("data:")
)

// ParseSSE extracts event payloads from an SSE buffer. Line endings are
// normalized to '\n' first, records are separated by a blank line and the
// trailing incomplete record is returned as rest. The payload of a record is the
// concatenation of its trimmed data fields; records with an empty payload are
// skipped. The event, id and retry fields and ':' comments are ignored.
func ParseSSE(buf []byte) (payloads [][]byte, rest []byte) {
	if bytes.Contains(buf, crlf) {
		buf = bytes.ReplaceAll(buf, crlf, lf)
	}
	for {
		idx := bytes.Index(buf, eventSeparator)
		if idx < 0 {
			return payloads, buf
		}
		record := buf[:idx]
		buf = buf[idx+len(eventSeparator):]
		if payload := recordPayload(record); len(payload) > 0 {
			payloads = append(payloads, payload)
		}
	}
}

func recordPayload(record []byte) []byte {
	var payload []byte
	for len(record) > 0 {
		line := record
		if idx := bytes.IndexByte(record, '\n'); idx >= 0 {
			line, record = record[:idx], record[idx+1:]
		} else {
			record = nil
		}
		if !bytes.HasPrefix(line, dataField) {
			continue
		}
		payload = append(payload, bytes.TrimSpace(line[len(dataField):])...)
	}
	return payload
}

// SSE accumulates the chunks of one event stream.
type SSE struct {
	buf []byte
}

// Feed appends chunk and returns the payloads of every record it completed, in
// order.
func (s *SSE) Feed(chunk []byte) [][]byte {
	s.buf = append(s.buf, chunk...)
	payloads, rest := ParseSSE(s.buf)
	s.buf = append(s.buf[:0], rest...)
	return payloads
}

// Remainder returns the buffered incomplete record.
func (s *SSE) Remainder() []byte {
	return s.buf
}

// ReadSSE reads r until EOF and calls fn for every payload. An incomplete
// record left at EOF is discarded.
func ReadSSE(ctx context.Context, r io.Reader, fn func(payload []byte)) error {
	decoder := &SSE{}
	chunk := make([]byte, readChunkSize)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			for _, payload := range decoder.Feed(chunk[:n]) {
				fn(payload)
			}
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}
