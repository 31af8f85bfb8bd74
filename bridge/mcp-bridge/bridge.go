// Command mcp-bridge connects a stdio JSON-RPC client to a Streamable HTTP MCP server.
package main

import (
	"errors"
	"os"

	"github.com/jessevdk/go-flags"
	_ "github.com/viant/scy/kms/blowfish"

	"github.com/skdaks05/AI-Firend-V2/bridge"
	"github.com/skdaks05/AI-Firend-V2/internal/logx"
)

func main() {
	err := bridge.Run(os.Args[1:])
	if err == nil {
		return
	}
	var flagsErr *flags.Error
	if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
		return
	}
	logx.Log.Fatal().Err(err).Msg("bridge failed")
}
