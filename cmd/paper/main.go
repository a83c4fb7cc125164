package main

import (
	"os"

	"github.com/rustyeddy/paper/cmd/paper/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
