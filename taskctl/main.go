// Command taskctl manages tasks from the terminal, either against a running
// task API or against a local JSON file.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
