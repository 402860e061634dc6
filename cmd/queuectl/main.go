// Command queuectl runs one-off scheduling and dispatch operations against
// the production database.
package main

import (
	"os"

	"github.com/avataralabs/queuelabs-sub000/cmd/queuectl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
