package main

import (
	"os"

	"github.com/TheusHen/parley/cmd/parley/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
