// The main package for the websum executable.
package main

import (
	"github.com/JakeFAU/websum/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
