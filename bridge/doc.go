// Package bridge relays a local newline-delimited JSON-RPC stream to a remote
// MCP server over Streamable HTTP.
//
// Every local line is POSTed to the endpoint as is. Responses, whether a single
// JSON body or an SSE stream, are written back one message per line. Once the
// bootstrap request (initialize by default) completes and the server assigned a
// session, a GET notification stream is kept open for server initiated
// messages and reopened after a fixed delay when it ends.
//
// Messages read while the bootstrap request is outstanding are queued and
// forwarded in arrival order once it completes, so every later request carries
// the session id.
package bridge
