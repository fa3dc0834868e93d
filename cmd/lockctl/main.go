// Command lockctl exercises every distributed locking Store adapter from
// the outside, by DSN, for hand smoke-testing: acquire, release, or hold a
// named resource against whichever backend its DSN scheme selects.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
