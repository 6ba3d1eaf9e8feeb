package main

import (
	"os"

	"github.com/oceandns/external-dns-digitalocean-webhook/cmd/webhook/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
