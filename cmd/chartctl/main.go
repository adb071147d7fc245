package main

import (
	"os"

	"candleview/cmd/chartctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
