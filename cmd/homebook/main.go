// Command homebook is the household ledger CLI and server.
package main

import (
	"os"

	"github.com/mesh-intelligence/homebook/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
