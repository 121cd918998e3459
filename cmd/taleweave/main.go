// Package main is the taleweave CLI: assemble roleplay context
// snapshots and serialize them into LLM-ready prompts.
//
// Usage:
//
//	taleweave serialize --fixture scene.json [--template tmpl.json]
//	taleweave inspect [--addr :8233]
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
