// Package transport issues the HTTP calls of the bridge against one remote
// Streamable HTTP endpoint.
//
// A POST carries one local JSON-RPC envelope and is answered with 202 Accepted,
// a JSON body or an SSE stream. A long-lived GET carries server initiated
// messages. Both attach the Mcp-Session-Id header once the server assigned one.
// The client never retries: retry decisions belong to callers that know the
// protocol semantics.
package transport
