// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const (
	menuDown = "down"
	menuUp   = "up"
	menuExit = "exit"
)

var menuCmd = &cobra.Command{
	Use:     "menu",
	Short:   "Interactive link manager",
	GroupID: "ops",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			return errors.New("menu needs an interactive terminal; use 'sdnlink link down|up' instead")
		}
		return RunMenu(cmd.Context(), cmd.OutOrStdout(), NewClient(serverURL), linkID, huhChooser)
	},
}

func init() {
	rootCmd.AddCommand(menuCmd)
	menuCmd.Flags().StringVarP(&linkID, "link", "L", "", "link id (default link when empty)")
}

// Chooser asks the operator for the next action.
type Chooser func(link string) (string, error)

func huhChooser(link string) (string, error) {
	if link == "" {
		link = "default link"
	}
	var choice string
	form := huh.NewForm(huh.NewGroup(
		huh.NewSelect[string]().
			Title("SDN Link Manager").
			Description(link).
			Options(
				huh.NewOption("Downlink (block the link)", menuDown),
				huh.NewOption("Uplink (unblock the link)", menuUp),
				huh.NewOption("Exit", menuExit),
			).
			Value(&choice),
	)).WithTheme(huh.ThemeBase16())

	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return menuExit, nil
		}
		return "", err
	}
	return choice, nil
}

// RunMenu loops until the operator exits. A failed request is reported and
// the menu continues.
func RunMenu(ctx context.Context, w io.Writer, c *Client, id string, choose Chooser) error {
	for {
		choice, err := choose(id)
		if err != nil {
			return err
		}
		switch choice {
		case menuExit:
			fmt.Fprintln(w, "Goodbye!")
			return nil
		case menuDown, menuUp:
			res, err := c.SetLink(ctx, id, choice == menuDown)
			if err != nil {
				fmt.Fprintln(w, styleDown.Render("error: "+err.Error()))
				continue
			}
			printResult(w, res)
		default:
			fmt.Fprintf(w, "unknown choice %q\n", choice)
		}
	}
}
