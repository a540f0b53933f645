// Command fakeworker serves the pipeline worker protocol with a
// deterministic stand-in edit. Point qwenedit at it with
// --worker-cmd "fakeworker" to exercise the service without a GPU.
package main

import (
	"fmt"
	"os"

	"qwenedit/internal/manager/workertest"
)

func main() {
	if err := workertest.Main(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "fakeworker:", err)
		os.Exit(1)
	}
}
