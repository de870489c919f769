package main

import (
	"fmt"
	"os"

	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
)

// Prints a new API_KEY. Pass "test" for a test-environment key.
func main() {
	env := domain.EnvLive
	if len(os.Args) > 1 && os.Args[1] == "test" {
		env = domain.EnvTest
	}

	key, fingerprint, err := domain.GenerateAPIKey(env)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	fmt.Printf("API_KEY=%s\nFINGERPRINT=%s\n", key, fingerprint)
}
