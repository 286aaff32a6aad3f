package main

import (
	"fmt"
	"os"

	"issuemetrics/cmd/issuemetrics/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
