package main

import (
	"os"

	"github.com/JonMunkholm/geoatlas/internal/cli"
	"github.com/joho/godotenv"
)

func main() {
	// .env is optional; existing env vars win over it.
	_ = godotenv.Load()

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
