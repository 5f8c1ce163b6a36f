package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lavishq/lavis/internal/logging"
	"github.com/lavishq/lavis/internal/server"
	"github.com/lavishq/lavis/internal/svc"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the core and its HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Printf("\nreceived %v, shutting down\n", sig)
		cancel()
	}()

	svcCtx, err := buildContext(ctx)
	if err != nil {
		return err
	}
	defer svcCtx.Close()

	if err := svcCtx.Scheduler.Start(); err != nil {
		logging.Errorf("scheduler start: %v", err)
	}

	if svcCtx.Config.Skills.Watch {
		if err := svcCtx.Loader.Watch(ctx); err != nil {
			logging.Warnf("skill watch disabled: %v", err)
		}
	}

	go runJanitor(ctx, svcCtx)

	if !svcCtx.Agent.Available() {
		fmt.Println("No chat model configured: scheduler and skills work, reasoning does not.")
		fmt.Println("Set an API key (e.g. GEMINI_API_KEY) and restart to enable the agent.")
	}
	fmt.Printf("Lavis ready at http://localhost:%d\n", svcCtx.Config.Port)

	return server.Run(ctx, svcCtx)
}

// runJanitor evicts expired cold-storage blobs once a day.
func runJanitor(ctx context.Context, svcCtx *svc.ServiceContext) {
	retention := svcCtx.Config.ColdRetention()
	if retention <= 0 {
		return
	}

	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := svcCtx.Memory.CleanupImages(retention)
			if err != nil {
				logging.Warnf("cold storage cleanup: %v", err)
				continue
			}
			if n > 0 {
				logging.Infof("cold storage cleanup removed %d blobs", n)
			}
		}
	}
}
