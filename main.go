// The main package for the isocatalog executable.
package main

import (
	"github.com/JakeFAU/isocatalog/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
