// Command plant-detector serves the analyze_plant MCP tool over stdio or streamable HTTP.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := NewApp().Execute(); err != nil {
		code := exitCode(err)
		if !isSilentExit(err) {
			_, _ = fmt.Fprintf(os.Stderr, "plant-detector failed: %v\n", err)
		}
		os.Exit(code)
	}
}
