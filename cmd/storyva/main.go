// Command storyva is the entry point for the StoryVA voice direction server.
package main

import (
	"os"

	"github.com/storyva/storyva/internal/cli"
)

func main() {
	if err := cli.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
