package main

import (
	"fmt"
	"os"
)

// Version info set via ldflags at build time:
//
//	go build -ldflags "-X main.version=1.0.0" ./cmd/hostboard
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
