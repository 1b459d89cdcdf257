package cmd

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/claudeguard/claudeguard/internal/rpc"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the guardian tool surface over stdio (internal)",
	Long: `Serve the guardian's eight tools over newline-delimited JSON-RPC on
stdin/stdout. The assistant spawns this as a child process, one session
per child. Diagnostics go to stderr; stdout carries only the protocol.`,
	Hidden: true,
	RunE:   runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := log.New(os.Stderr, "", log.LstdFlags)
	return rpc.NewServer(cfg, logger).Serve(os.Stdin, os.Stdout)
}
