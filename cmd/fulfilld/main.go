package main

import (
	"fmt"
	"os"

	"github.com/xraph/fulfill/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "fulfilld:", err)
		os.Exit(1)
	}
}
