package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"windci/internal/core"
	"windci/internal/logging"
)

func newCheckCmd(o *options) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "check <windfile>",
		Short: "Generate the Bash script and check its syntax with bash -n",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readWindfile(args[0])
			if err != nil {
				return err
			}
			gen, err := o.generator(false)
			if err != nil {
				return err
			}
			res, err := gen(logging.NewContext(cmd.Context(), o.logger), core.TargetBash, text)
			if err != nil {
				return o.report(cmd, args[0], err)
			}
			out, err := core.NewExecutor().CheckScript(cmd.Context(), res.Text, timeout)
			if err != nil {
				fmt.Fprint(cmd.OutOrStdout(), out)
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: script ok (%s)\n", args[0], res.Key)
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "time allowed for the syntax check")
	return cmd
}
