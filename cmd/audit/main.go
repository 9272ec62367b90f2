package main

import (
	"fmt"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/jonboulle/clockwork"
)

func main() {
	rootCmd := newRootCmd(clockwork.NewRealClock(), os.Getenv)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
