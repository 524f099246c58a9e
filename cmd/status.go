// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"grimm.is/sdnlink/internal/linkctl"
)

var (
	styleTitle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	styleHeader = lipgloss.NewStyle().Bold(true).Underline(true)
	styleUp     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	styleDown   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	styleDim    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	styleBox    = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(0, 1)
)

var statusCmd = &cobra.Command{
	Use:     "status",
	Short:   "Show managed links and connected switches",
	GroupID: "ops",
	RunE: func(cmd *cobra.Command, args []string) error {
		return RunStatus(cmd.Context(), cmd.OutOrStdout(), NewClient(serverURL))
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

// RunStatus fetches links and switches and renders them.
func RunStatus(ctx context.Context, w io.Writer, c *Client) error {
	var (
		links    LinksReply
		switches SwitchesReply
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		links, err = c.Links(gctx)
		return err
	})
	g.Go(func() (err error) {
		switches, err = c.Switches(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	fmt.Fprintln(w, renderStatus(links, switches, time.Now()))
	return nil
}

func renderStatus(links LinksReply, switches SwitchesReply, now time.Time) string {
	var lb strings.Builder
	fmt.Fprintf(&lb, "%s\n", styleHeader.Render(fmt.Sprintf("%-12s %-10s %-10s %-8s %s", "LINK", "A", "B", "TYPE", "STATE")))
	for _, l := range links.Links {
		state := styleUp.Render("up")
		if l.State == linkctl.Down {
			state = styleDown.Render("down")
		}
		id := l.ID
		if id == links.Default {
			id += "*"
		}
		fmt.Fprintf(&lb, "%-12s %-10s %-10s %-8s %s\n", id, l.A, l.B, l.EthType, state)
	}
	if len(links.Links) == 0 {
		lb.WriteString(styleDim.Render("no managed links") + "\n")
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\n", styleHeader.Render(fmt.Sprintf("%-8s %-6s %-8s %s", "SWITCH", "PORTS", "RULES", "CONNECTED")))
	for _, s := range switches.Switches {
		fmt.Fprintf(&sb, "%-8d %-6d %-8d %s\n", s.ID, len(s.Ports), s.Rules, now.Sub(s.ConnectedAt).Round(time.Second))
	}
	if len(switches.Switches) == 0 {
		sb.WriteString(styleDim.Render("no switches connected") + "\n")
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		styleTitle.Render("sdnlink"),
		styleBox.Render(strings.TrimRight(lb.String(), "\n")),
		styleBox.Render(strings.TrimRight(sb.String(), "\n")),
		styleDim.Render("* default link"),
	)
}
