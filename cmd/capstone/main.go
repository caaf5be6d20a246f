package main

import (
	"os"

	"github.com/zxcvny/capstone/cmd/capstone/commands"
)

// main is the entry point for the capstone CLI
// ⭐ 통합 CLI 진입점: go run ./cmd/capstone [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
