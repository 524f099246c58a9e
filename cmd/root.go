// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// DefaultServer is the API address client commands talk to.
const DefaultServer = "http://127.0.0.1:8080"

var (
	configFile string
	serverURL  string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "sdnlink",
	Short: "Learning-switch controller with administrative link control",
	Long: `sdnlink runs a reactive L2 controller: it learns host locations from
packet-in events, installs forwarding rules, and can force a managed
inter-switch link down or up on demand.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddGroup(&cobra.Group{ID: "daemon", Title: "Controller"})
	rootCmd.AddGroup(&cobra.Group{ID: "ops", Title: "Operator Commands"})

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (.hcl, .json, .yaml); built-in two-switch deployment when empty")
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", DefaultServer, "API address for operator commands")
}
