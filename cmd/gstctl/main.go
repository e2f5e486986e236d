// Command gstctl runs the GST engine and P&L checks from the shell.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "gstctl:", err)
		os.Exit(1)
	}
}
