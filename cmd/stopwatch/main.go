package main

import (
	"os"

	"github.com/psantana5/stopwatch/cmd/stopwatch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
