package main

import (
	"github.com/joho/godotenv"

	"repochat/internal/cli"
)

func main() {
	// API keys may come from a .env file next to the binary's working directory.
	_ = godotenv.Load()
	cli.Execute()
}
