// Command vendor-console is a terminal front end for the vendor ticket desk.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vendorhub/ticket-sync/internal/config"
	"github.com/vendorhub/ticket-sync/internal/desk"
	"github.com/vendorhub/ticket-sync/internal/observability"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *observability.Metrics
}

func newRootCmd() *cobra.Command {
	a := &app{}
	var token string

	root := &cobra.Command{
		Use:          "vendor-console",
		Short:        "Browse and answer support tickets from the terminal",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if token != "" {
				cfg.Client.AuthToken = token
			}
			logger, err := observability.NewLogger(cfg.Logger)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			a.cfg, a.logger, a.metrics = cfg, logger, observability.NewMetrics()
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&token, "token", "", "credential (defaults to AUTH_TOKEN)")

	root.AddCommand(
		newListCmd(a),
		newShowCmd(a),
		newFollowCmd(a),
		newSendCmd(a),
		newCreateCmd(a),
	)
	return root
}

// open logs in with notices printed to stderr.
func (a *app) open(cmd *cobra.Command) (*desk.Desk, error) {
	notify := desk.NotifierFunc(func(n desk.Notice) {
		fmt.Fprintf(cmd.ErrOrStderr(), "[%s] %s\n", n.Level, n.Text)
	})
	return desk.New(a.cfg.Client, a.logger, a.metrics, notify)
}
