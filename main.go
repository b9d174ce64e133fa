package main

import (
	"os"

	"github.com/melih-ucgun/qvmstate/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
