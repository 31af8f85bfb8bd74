// Package codec turns byte streams into protocol units without interpreting them.
//
// Two framings are supported:
//  1. newline-delimited JSON-RPC on the local side (SplitLines, Lines) and
//  2. Server-Sent Events on the remote side (ParseSSE, SSE).
//
// The functions are pure: they take the accumulated buffer and return the
// complete units plus the unconsumed remainder. The stateful wrappers keep that
// remainder for a single stream; each stream must use its own wrapper.
package codec
