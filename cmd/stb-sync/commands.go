package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/snapetech/stbsync/internal/cache"
	"github.com/snapetech/stbsync/internal/cachefs"
	"github.com/snapetech/stbsync/internal/health"
	"github.com/snapetech/stbsync/internal/safeurl"
	"github.com/snapetech/stbsync/internal/store"
)

var checkServer string

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check the config document is reachable",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if checkServer != "" {
			if err := health.CheckEndpoints(ctx, checkServer); err != nil {
				return fmt.Errorf("status server: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "status server OK: %s\n", checkServer)
			return nil
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := health.CheckHost(ctx, nil, cfg.ConfigURL); err != nil {
			return fmt.Errorf("config host: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "config host OK: %s\n", safeurl.Redact(cfg.ConfigURL))
		return nil
	},
}

var channelsRefresh bool

var channelsCmd = &cobra.Command{
	Use:   "channels",
	Short: "Print the cached channel list with resolved logos",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(channelsRefresh)
		if err != nil {
			return err
		}
		defer a.Close()

		res := a.channels.Cached()
		if channelsRefresh {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			cr := a.config.Sync(ctx)
			if !cr.OK() {
				return cr.Err
			}
			res = a.channels.Refresh(ctx, cr.Config.Channels)
		}
		if len(res.Entries) == 0 {
			return res.Err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Channels v%d (%s): %d\n\n", res.Version, res.Source, len(res.Entries))
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "#\tNAME\tGROUP\tLOGO")
		for i, e := range res.Entries {
			logo := e.TvgLogo
			if file, how := a.logos.Resolve(e.Name); file != "" {
				logo = fmt.Sprintf("%s (%s)", file, how)
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", i+1, e.Name, e.Group, logo)
		}
		return w.Flush()
	},
}

var logoCmd = &cobra.Command{
	Use:   "logo NAME...",
	Short: "Resolve channel names to logo files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tFILE\tMATCH\tCACHED")
		for _, name := range args {
			file, how := a.logos.Resolve(name)
			cached := file != "" && a.blobs.Exists(cache.KindLogos, file)
			fmt.Fprintf(w, "%s\t%s\t%s\t%v\n", name, file, how, cached)
		}
		return w.Flush()
	},
}

var clearCacheCmd = &cobra.Command{
	Use:   "clear-cache",
	Short: "Drop cached config, playlist, logos and splash images",
	Long: `Removes every synced artifact and its version or hash so the next cycle
downloads everything again. The device ID and update notices are kept.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(true)
		if err != nil {
			return err
		}
		defer a.Close()

		steps := []struct {
			what string
			fn   func() error
		}{
			{"config", func() error { return a.store.Remove(store.KeyConfigCache) }},
			{"channels", a.channels.Clear},
			{"logos", func() error { return a.assets.Clear(cache.KindLogos) }},
			{"splash", func() error { return a.assets.Clear(cache.KindSplash) }},
			{"logo mapping", func() error { return a.store.Remove(store.KeyLogoMapping) }},
			{"asset check time", func() error { return a.store.Remove(store.KeyAssetsCheckedAt) }},
		}
		for _, s := range steps {
			if err := s.fn(); err != nil {
				return fmt.Errorf("clear %s: %w", s.what, err)
			}
			log.Printf("cache: cleared %s", s.what)
		}
		return nil
	},
}

var mountAllowOther bool

var mountCmd = &cobra.Command{
	Use:   "mount [DIR]",
	Short: "Mount the cache read-only (Linux)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		dir := a.cfg.MountPoint
		if len(args) == 1 {
			dir = args[0]
		}
		if dir == "" {
			return fmt.Errorf("need a mount point (argument or STB_SYNC_MOUNT)")
		}
		srv, err := cachefs.Mount(dir, cachefs.View{Blobs: a.blobs, Store: a.store}, mountAllowOther)
		if err != nil {
			return fmt.Errorf("mount %s: %w", dir, err)
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		done := make(chan struct{})
		go func() {
			srv.Wait()
			close(done)
		}()
		select {
		case <-ctx.Done():
			log.Printf("cachefs: unmounting %s", dir)
			if err := srv.Unmount(); err != nil {
				return err
			}
			<-done
		case <-done:
		}
		return nil
	},
}

func init() {
	checkCmd.Flags().StringVar(&checkServer, "server", "", "check a running status server at this base URL instead")
	channelsCmd.Flags().BoolVar(&channelsRefresh, "refresh", false, "sync config and playlist before printing")
	mountCmd.Flags().BoolVar(&mountAllowOther, "allow-other", false, "let other users read the mount")
}
