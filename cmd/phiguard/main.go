package main

import (
	"os"

	"github.com/rbaliyan/phiguard/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
