package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"windci/internal/apperror"
	"windci/internal/schema"
)

func newValidateCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <windfile>",
		Short: "Check a windfile against the schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readWindfile(args[0])
			if err != nil {
				return err
			}
			markers := schema.Validate(text)
			printMarkers(cmd.OutOrStdout(), args[0], markers)
			if apperror.HasErrors(markers) {
				return ErrInvalid
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: valid\n", args[0])
			return nil
		},
	}
}

// report prints the markers of a failed generation and returns ErrInvalid,
// or returns err unchanged when it carries no markers.
func (o *options) report(cmd *cobra.Command, path string, err error) error {
	var appErr *apperror.Error
	if errors.As(err, &appErr) && len(appErr.Markers) > 0 {
		printMarkers(cmd.OutOrStdout(), path, appErr.Markers)
		return ErrInvalid
	}
	return err
}
