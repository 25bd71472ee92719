package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bearhedge/APEYOLO-sub001/internal/scheduler"
	"github.com/bearhedge/APEYOLO-sub001/internal/server"
	"github.com/bearhedge/APEYOLO-sub001/internal/store"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP/SSE server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := wireApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			go store.RunSweeper(ctx, a.kv, cfg.Store.SweepPeriod)
			if a.sessions != a.kv {
				go store.RunSweeper(ctx, a.sessions, cfg.Store.SweepPeriod)
			}

			a.pusher.Start(ctx)
			defer a.pusher.Stop()

			if cfg.Tick.Enabled {
				sched, err := scheduler.New(a.machine, cfg.Tick.Schedule, cfg.Tick.Timezone)
				if err != nil {
					return err
				}
				sched.Start()
				defer sched.Stop()
				log.Info("tick loop enabled, next run at %s", sched.Next().Format(time.RFC3339))
			}

			srv := server.New(cfg.Server.Addr, server.Deps{
				Chat:          a.chat,
				Desk:          a.desk,
				Machine:       a.machine,
				Pusher:        a.pusher,
				Agents:        a.agents,
				StreamTimeout: cfg.Timeouts.Stream,
			})
			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}
			log.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}
