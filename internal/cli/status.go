package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mithrel/msgport/internal/present"
	"github.com/mithrel/msgport/pkg/api"
)

func newStatusCmd() *cobra.Command {
	var outputMode string
	cmd := &cobra.Command{
		Use:   "status <name>",
		Short: "Show which process holds a port name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := getApp(cmd)
			if err := bindFlags(app.Cfg, cmd.Flags(), map[string]string{"output": "output"}); err != nil {
				return err
			}
			mode, ok := present.ParseMode(app.Cfg.GetString("output"))
			if !ok {
				return fmt.Errorf("invalid --output: %s", app.Cfg.GetString("output"))
			}
			owner, err := app.Facility.Status(args[0])
			if errors.Is(err, api.ErrNoSuchPort) {
				return fmt.Errorf("no port registered as %q", args[0])
			}
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			return present.RenderOwner(out, owner, present.Options{Mode: present.ForWriter(mode, out)})
		},
	}
	cmd.Flags().StringVar(&outputMode, "output", "plain", "output mode: plain|pretty|json|ndjson")
	_ = cmd.RegisterFlagCompletionFunc("output", completeOutputModes)
	return cmd
}
