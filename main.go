// The main package for the munidist executable.
package main

import (
	"github.com/JakeFAU/municipal-distances/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
