// Command sparkle generates identities and sends and receives encrypted
// messages from the command line.
package main

import (
	"context"
	"os"
)

func main() {
	root := newRootCmd(os.Stdout, os.Stderr)
	if err := root.ExecuteContext(context.Background()); err != nil {
		printError(os.Stderr, err)
		os.Exit(1)
	}
}
