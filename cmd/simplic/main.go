package main

import (
	"simplic/internal/cli"
)

// Version information (set via ldflags during build)
var version = "dev"

func main() {
	cli.Version = version
	cli.Execute()
}
