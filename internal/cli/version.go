package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/homebook/pkg/homebook"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the homebook version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return output(cmd, map[string]string{"version": homebook.Version, "module": homebook.ModulePath}, func(w io.Writer) {
				fmt.Fprintf(w, "homebook v%s\nmodule: %s\n", homebook.Version, homebook.ModulePath)
			})
		},
	}
}
