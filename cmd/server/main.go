package main

import (
	"os"

	"github.com/alexjurkiewicz/crawl-live-games-api/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
