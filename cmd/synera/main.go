package main

import (
	"os"

	"github.com/TNEM22/synera-app-backend/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
