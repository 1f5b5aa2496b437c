package cli

import (
	"fmt"
	"io"
	"math"

	"github.com/spf13/cobra"

	"github.com/mithrel/msgport/internal/present"
	"github.com/mithrel/msgport/pkg/msgport"
)

func newSendCmd() *cobra.Command {
	var (
		id         int64
		fromStdin  bool
		outputMode string
	)
	cmd := &cobra.Command{
		Use:   "send <name> [payload]",
		Short: "Send one message to a port and wait for it to be handled",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := getApp(cmd)
			if err := bindFlags(app.Cfg, cmd.Flags(), map[string]string{
				"send_timeout": "send-timeout",
				"recv_timeout": "recv-timeout",
				"output":       "output",
			}); err != nil {
				return err
			}
			if id < math.MinInt32 || id > math.MaxInt32 {
				return fmt.Errorf("invalid --id: %d does not fit in 32 bits", id)
			}
			mode, ok := present.ParseMode(app.Cfg.GetString("output"))
			if !ok {
				return fmt.Errorf("invalid --output: %s", app.Cfg.GetString("output"))
			}

			var payload []byte
			switch {
			case fromStdin && len(args) == 2:
				return fmt.Errorf("give the payload as an argument or --stdin, not both")
			case fromStdin:
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("reading stdin: %w", err)
				}
				payload = data
			case len(args) == 2:
				payload = []byte(args[1])
			}

			name := args[0]
			r := msgport.NewRemote(name, msgport.WithFacility(app.Facility), msgport.WithLogger(app.Log))
			n, err := r.Send(int32(id), payload, app.Cfg.GetDuration("send_timeout"), app.Cfg.GetDuration("recv_timeout"))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			return present.RenderSendResult(out, present.SendResult{Port: name, ID: int32(id), Bytes: n},
				present.Options{Mode: present.ForWriter(mode, out)})
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "message id (32-bit)")
	cmd.Flags().BoolVar(&fromStdin, "stdin", false, "read the payload from stdin")
	cmd.Flags().Duration("send-timeout", 0, "time allowed to hand the message over (overrides send_timeout)")
	cmd.Flags().Duration("recv-timeout", 0, "time to wait for the receiver (overrides recv_timeout)")
	cmd.Flags().StringVar(&outputMode, "output", "plain", "output mode: plain|pretty|json|ndjson")
	_ = cmd.RegisterFlagCompletionFunc("output", completeOutputModes)
	return cmd
}
