package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newBuildCmd creates and configures the 'build' subcommand.
func newBuildCmd() *cobra.Command {
	var (
		out     string
		noRoute bool
	)
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Resolves every municipality and writes the dataset",
		Long: `Fetches the municipality list and score table, geocodes each municipality
and routes it from the reference city, answering from the cache wherever
possible. The output format follows the file extension (.csv or .xlsx).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(a App) error {
				res, err := a.Build(cmd.Context(), out, noRoute)
				if err != nil {
					return err
				}
				a.Logger().Info("Build command finished.",
					zap.String("path", res.Path),
					zap.Int("rows", res.Rows),
				)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "output path (default from output.path)")
	cmd.Flags().BoolVar(&noRoute, "no-route", false, "skip road distances; the road column stays blank")
	return cmd
}
