package codec

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSSE(t *testing.T) {
	var testCases = []struct {
		description string
		input       string
		expected    []string
		rest        string
	}{
		{
			description: "single LF record",
			input:       "event: message\ndata: X\n\n",
			expected:    []string{"X"},
		},
		{
			description: "single CRLF record",
			input:       "event: message\r\ndata: X\r\n\r\n",
			expected:    []string{"X"},
		},
		{
			description: "priming record followed by payload",
			input:       "id: 0\ndata: \n\nevent: message\ndata: {\"id\":1}\n\n",
			expected:    []string{`{"id":1}`},
		},
		{
			description: "multiple records in one read",
			input:       "data: a\n\ndata: b\n\ndata: c\n\n",
			expected:    []string{"a", "b", "c"},
		},
		{
			description: "multi-line data is concatenated",
			input:       "data: {\"a\":\ndata: 1}\n\n",
			expected:    []string{`{"a":1}`},
		},
		{
			description: "comments and non data fields ignored",
			input:       ": keep-alive\nretry: 1000\nid: 7\nevent: message\ndata: ok\n\n",
			expected:    []string{"ok"},
		},
		{
			description: "record without data field",
			input:       "event: ping\n\n",
			expected:    nil,
		},
		{
			description: "incomplete record kept as remainder",
			input:       "data: a\n\ndata: partial",
			expected:    []string{"a"},
			rest:        "data: partial",
		},
	}

	for _, testCase := range testCases {
		payloads, rest := ParseSSE([]byte(testCase.input))
		assert.Equal(t, testCase.expected, asStrings(payloads), testCase.description)
		assert.Equal(t, testCase.rest, string(rest), testCase.description)
	}
}

func TestSSE_FeedSplitAnywhere(t *testing.T) {
	input := "event: message\r\ndata: {\"jsonrpc\":\"2.0\",\"id\":1,\"result\":{}}\r\n\r\n"
	whole, _ := ParseSSE([]byte(input))
	require.Len(t, whole, 1)

	for i := 1; i < len(input); i++ {
		decoder := &SSE{}
		var got [][]byte
		got = append(got, decoder.Feed([]byte(input[:i]))...)
		got = append(got, decoder.Feed([]byte(input[i:]))...)
		assert.Equal(t, asStrings(whole), asStrings(got), "split at %d", i)
	}
}

func TestSSE_FeedByteByByte(t *testing.T) {
	input := "data: \n\nevent: message\ndata: first\n\ndata: second\n\n"
	decoder := &SSE{}
	var got []string
	for i := 0; i < len(input); i++ {
		got = append(got, asStrings(decoder.Feed([]byte{input[i]}))...)
	}
	assert.Equal(t, []string{"first", "second"}, got)
	assert.Empty(t, decoder.Remainder())
}

func TestReadSSE(t *testing.T) {
	var got []string
	err := ReadSSE(context.Background(), strings.NewReader("data: a\n\ndata: b\n\ndata: dangling"), func(payload []byte) {
		got = append(got, string(payload))
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got)
}

func asStrings(items [][]byte) []string {
	if len(items) == 0 {
		return nil
	}
	result := make([]string, len(items))
	for i, item := range items {
		result[i] = string(item)
	}
	return result
}
