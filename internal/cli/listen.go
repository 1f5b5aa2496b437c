package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mithrel/msgport/internal/daemon"
	"github.com/mithrel/msgport/internal/present"
)

func newListenCmd() *cobra.Command {
	var (
		outputMode string
		noHeaders  bool
		echoTo     string
		count      int
	)
	cmd := &cobra.Command{
		Use:   "listen <name>",
		Short: "Register a port and print every message it receives",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := getApp(cmd) // initialized via PersistentPreRunE
			if err := bindFlags(app.Cfg, cmd.Flags(), map[string]string{
				"scheduler":            "scheduler",
				"workers":              "workers",
				"endpoint_concurrency": "endpoint-concurrency",
				"send_timeout":         "send-timeout",
				"recv_timeout":         "recv-timeout",
				"output":               "output",
			}); err != nil {
				return err
			}
			if count < 0 {
				return fmt.Errorf("invalid --count: %d", count)
			}
			mode, ok := present.ParseMode(app.Cfg.GetString("output"))
			if !ok {
				return fmt.Errorf("invalid --output: %s", app.Cfg.GetString("output"))
			}
			out := cmd.OutOrStdout()
			writer := present.NewDeliveryWriter(out, present.Options{
				Mode:    present.ForWriter(mode, out),
				Headers: !noHeaders,
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			err := daemon.Run(ctx, app, daemon.Options{
				Name:                args[0],
				Scheduler:           app.Cfg.GetString("scheduler"),
				Workers:             app.Cfg.GetInt("workers"),
				EndpointConcurrency: app.Cfg.GetBool("endpoint_concurrency"),
				EchoTo:              echoTo,
				SendTimeout:         app.Cfg.GetDuration("send_timeout"),
				RecvTimeout:         app.Cfg.GetDuration("recv_timeout"),
				Count:               count,
				Output:              writer,
			})
			if cerr := writer.Close(); err == nil {
				err = cerr
			}
			return err
		},
	}
	cmd.Flags().String("scheduler", "queue", "callback scheduler: queue|loop")
	cmd.Flags().Int("workers", 0, "worker pool size for the queue scheduler (0 uses GOMAXPROCS)")
	cmd.Flags().Bool("endpoint-concurrency", false, "let callbacks of this port overlap (queue scheduler)")
	cmd.Flags().Duration("send-timeout", 0, "timeout handing echoed messages over")
	cmd.Flags().Duration("recv-timeout", 0, "timeout waiting for echo acknowledgements")
	cmd.Flags().StringVar(&echoTo, "echo-to", "", "forward every message to this port")
	cmd.Flags().IntVar(&count, "count", 0, "exit after this many messages (0 runs until interrupted)")
	cmd.Flags().StringVar(&outputMode, "output", "plain", "output mode: plain|pretty|json|ndjson")
	cmd.Flags().BoolVar(&noHeaders, "noheaders", false, "hide column headers (plain)")
	_ = cmd.RegisterFlagCompletionFunc("output", completeOutputModes)
	_ = cmd.RegisterFlagCompletionFunc("scheduler", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{"queue", "loop"}, cobra.ShellCompDirectiveNoFileComp
	})
	return cmd
}

func completeOutputModes(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return []string{"plain", "pretty", "json", "ndjson"}, cobra.ShellCompDirectiveNoFileComp
}
