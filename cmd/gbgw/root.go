// Package main is this gateway's entrypoint. Grounded on the pack
// sibling firestige-Otus's cmd/root.go: a cobra root command carrying a
// persistent --config flag, with the actual work living in a "serve"
// subcommand rather than the root RunE.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:     "gbgw",
	Short:   "GB28181 surveillance gateway",
	Long:    "gbgw accepts GB28181 SIP device registrations, negotiates media sessions, demuxes MPEG-PS/RTP video, and republishes it as FLV tags to an RTMP sink.",
	Version: "0.1.0",
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "/etc/gbgw/config.yml", "config file path")
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
