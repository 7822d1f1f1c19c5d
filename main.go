// Command voice-recliner listens for a wake phrase and spoken commands and
// drives a recliner's up and down relays.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
