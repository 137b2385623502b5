package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/snapetech/stbsync/internal/cachefs"
	"github.com/snapetech/stbsync/internal/health"
	"github.com/snapetech/stbsync/internal/syncer"
)

var runMount bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Sync now and then periodically until stopped",
	Long: `Runs an immediate cycle (cached config allowed), then a forced cycle every
poll interval. SIGHUP triggers an extra cycle. The status server starts when
STB_SYNC_METRICS_ADDR is set.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(true)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		orch := a.orchestrator(syncer.LogListener{})

		if a.cfg.MetricsAddr != "" {
			srv := &health.Server{Addr: a.cfg.MetricsAddr, Reporter: orch}
			go func() {
				if err := srv.Run(ctx); err != nil {
					log.Printf("health: %v", err)
				}
			}()
		}

		if runMount && a.cfg.MountPoint != "" {
			fsrv, err := cachefs.Mount(a.cfg.MountPoint, cachefs.View{Blobs: a.blobs, Store: a.store}, false)
			if err != nil {
				return fmt.Errorf("mount %s: %w", a.cfg.MountPoint, err)
			}
			defer func() {
				if err := fsrv.Unmount(); err != nil {
					log.Printf("cachefs: unmount: %v", err)
				}
			}()
		}

		sigHUP := make(chan os.Signal, 1)
		signal.Notify(sigHUP, syscall.SIGHUP)
		defer signal.Stop(sigHUP)
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case <-sigHUP:
					orch.Trigger()
				}
			}
		}()

		orch.Run(ctx)
		return nil
	},
}

var onceForce bool

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Run a single sync cycle and print the resulting status",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(true)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		orch := a.orchestrator(syncer.LogListener{})
		orch.RunOnce(ctx, onceForce)
		st := orch.Status()

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(st); err != nil {
			return err
		}
		if st.Outcome == syncer.OutcomeOffline {
			return fmt.Errorf("offline: %s", st.LastError)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&runMount, "mount", false, "also mount the cache at STB_SYNC_MOUNT")
	onceCmd.Flags().BoolVar(&onceForce, "force", false, "clear the cached config before fetching")
}
