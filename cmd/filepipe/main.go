// Package main implements the filepipe command, which runs the upload API,
// the background workers and the database migrations.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
