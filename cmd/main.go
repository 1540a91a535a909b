package main

import (
	"os"

	"github.com/mnemon-dev/mnemon/cmd/mnemon"
)

func main() {
	if err := mnemon.Execute(); err != nil {
		os.Exit(1)
	}
}
