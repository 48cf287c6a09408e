package main

import (
	"os"

	"stubindex/internal/ui/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:]))
}
