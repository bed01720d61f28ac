// Command routegen generates route reports and exports from planning data.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/roach88/routegen/internal/cli"
)

func main() {
	// ROUTEGEN_* settings may come from a .env file in the working directory.
	_ = godotenv.Load()

	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
