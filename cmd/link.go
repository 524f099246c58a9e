// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"grimm.is/sdnlink/internal/linkctl"
)

var linkID string

var linkCmd = &cobra.Command{
	Use:       "link down|up",
	Short:     "Block or unblock a managed link",
	Long:      `Block (down) or unblock (up) a managed link on a running controller. Without --link the default link is used.`,
	GroupID:   "ops",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"down", "up"},
	RunE: func(cmd *cobra.Command, args []string) error {
		return RunLink(cmd.Context(), cmd.OutOrStdout(), NewClient(serverURL), linkID, args[0] == "down")
	},
}

func init() {
	rootCmd.AddCommand(linkCmd)
	linkCmd.Flags().StringVarP(&linkID, "link", "L", "", "link id (default link when empty)")
}

// RunLink applies the change and prints the controller's reply.
func RunLink(ctx context.Context, w io.Writer, c *Client, id string, down bool) error {
	res, err := c.SetLink(ctx, id, down)
	if err != nil {
		return err
	}
	printResult(w, res)
	return nil
}

func printResult(w io.Writer, res linkctl.Result) {
	fmt.Fprintf(w, "%s: %s\n", res.Link, res.Status)
	if !res.Applied {
		fmt.Fprintf(w, "  not applied: link endpoints are not connected (state %s)\n", res.State)
	}
}
