package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newRebuildCmd creates the 'rebuild' subcommand, which never touches the network.
func newRebuildCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Writes a partial dataset from the cache alone",
		Long: `Assembles the dataset from the cached municipality list, scores,
coordinates and routes without contacting any external service. Values that
were never cached are left blank.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(a App) error {
				res, err := a.Rebuild(cmd.Context(), out)
				if err != nil {
					return err
				}
				a.Logger().Info("Rebuild command finished.",
					zap.String("path", res.Path),
					zap.Int("rows", res.Rows),
				)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "output path (default from output.partial_path)")
	return cmd
}
