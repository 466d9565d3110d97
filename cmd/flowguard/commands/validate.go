package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flowguard/flowguard/pkg/config"
)

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <config-file>",
		Short: "Validate a run configuration",
		Long: `Validate a run configuration file without launching anything.

Every violation in the document is reported, not just the first one.`,
		Example: `  flowguard validate daily_report.yaml`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := config.NewLoader().Load(args[0])

			var verr *config.ValidationError
			if errors.As(err, &verr) {
				fmt.Printf("%s is invalid:\n", args[0])
				for _, v := range verr.Violations {
					fmt.Printf("  - %s: %s\n", v.Field, v.Message)
				}
				return fmt.Errorf("%d violation(s)", len(verr.Violations))
			}
			if err != nil {
				return err
			}

			fmt.Printf("%s is valid\n", args[0])
			return nil
		},
	}

	return cmd
}
