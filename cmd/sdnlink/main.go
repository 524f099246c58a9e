// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Command sdnlink runs the controller and its operator commands.
package main

import "grimm.is/sdnlink/cmd"

func main() {
	cmd.Execute()
}
