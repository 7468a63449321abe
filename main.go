package main

import (
	"os"

	"github.com/veslink/calendar-mcp/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
