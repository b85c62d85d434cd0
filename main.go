package main

import (
	"os"

	"github.com/augument/impulsecommunicator/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
