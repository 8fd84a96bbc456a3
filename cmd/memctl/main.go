// Command memctl operates the ADOS memory system from the shell: initialize
// the tiers, write and read crew memory, synchronize, and serve remote crews.
package main

import (
	"os"
)

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
