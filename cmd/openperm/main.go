package main

import (
	"os"

	"github.com/porthorian/openperm/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
