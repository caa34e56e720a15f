package main

import (
	"os"

	"github.com/m3rciful/menubot/cmd/menubot/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
