package main

import (
	"os"

	"github.com/mindsift/mindsift/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
