package bridge

import (
	"bytes"
	"encoding/json"
	"errors"
)

var errInvalidJSON = errors.New("invalid JSON")

// Message is one local JSON-RPC envelope. Raw is forwarded untouched; only the
// method and id are read.
type Message struct {
	Raw    []byte
	Method string
	ID     json.RawMessage
}

// IsRequest reports whether the message expects a response.
func (m *Message) IsRequest() bool {
	return m.Method != "" && len(m.ID) > 0 && !bytes.Equal(m.ID, []byte("null"))
}

// ParseMessage parses one local line. Any valid JSON value is accepted; only
// objects are inspected for a string method and an id, everything else
// (batches, scalars) is carried as an opaque message.
func ParseMessage(line []byte) (*Message, error) {
	line = bytes.TrimSpace(line)
	if !json.Valid(line) {
		return nil, errInvalidJSON
	}
	ret := &Message{Raw: line}
	if line[0] != '{' {
		return ret, nil
	}
	var envelope struct {
		Method json.RawMessage `json:"method"`
		ID     json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(line, &envelope); err != nil {
		return nil, err
	}
	ret.ID = envelope.ID
	if len(envelope.Method) > 0 {
		var method string
		if json.Unmarshal(envelope.Method, &method) == nil {
			ret.Method = method
		}
	}
	return ret, nil
}
