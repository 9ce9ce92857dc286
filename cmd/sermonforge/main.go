// Command sermonforge runs the durable sermon-publication pipeline: it can
// ingest a new source recording, list one job's stage states, and
// advance jobs through the eight-stage catalog one stage at a time.
package main

import (
	"fmt"
	"os"

	"github.com/jo-hoe/sermonforge/cmd/sermonforge/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
