// Command keyctl manages API keys directly against the configured database.
package main

import (
	"fmt"
	"os"

	"github.com/bi-platform/apikeys/cmd/keyctl/cli"
)

// Set via -ldflags at build time
var version = "dev"

func main() {
	if err := cli.Execute(version); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
