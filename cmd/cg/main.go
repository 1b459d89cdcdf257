// cg is the guardian CLI for watching a long-running Claude Code process.
package main

import (
	"os"

	"github.com/claudeguard/claudeguard/internal/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
