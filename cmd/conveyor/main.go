package main

import (
	"os"

	"github.com/joho/godotenv"
)

func main() {
	// Load .env when present so ${VAR} references in the config file can
	// pick up local secrets. No .env is fine.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
