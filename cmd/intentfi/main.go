package main

import (
	"os"

	"github.com/intentfi/intentfi/internal/app"
)

func main() {
	runner := app.NewRunner()
	os.Exit(runner.Run(os.Args[1:]))
}
