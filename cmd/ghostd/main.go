// Command ghostd runs the completion coordinator as a local daemon and
// offers a few maintenance commands around it.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "ghostd:", err)
		os.Exit(1)
	}
}
