// Command stb-sync keeps a set-top box's local state in step with the
// channel service.
//
//	run          Sync now, then every poll interval until stopped. For systemd.
//	once         One cycle and exit (--force skips the cached config).
//	check        Check the config host is reachable (or a running status server).
//	channels     Print the cached channel list.
//	logo         Resolve channel names to logo files.
//	clear-cache  Drop cached config, playlist, logos and splash images.
//	mount        Mount the cache read-only (Linux).
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
)

var (
	envFile    string
	configFile string
)

var rootCmd = &cobra.Command{
	Use:   "stb-sync",
	Short: "Sync remote config, channel list and artwork for a set-top box",
	Long: `stb-sync fetches the service's remote config, honours its availability and
maintenance switches, and keeps the channel playlist, channel logos and
splash images cached locally so playback keeps working offline.

Settings come from STB_SYNC_* environment variables, an optional .env file
and an optional YAML file given with --config.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load (missing file is ignored)")
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "YAML settings file applied over the environment")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(onceCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(channelsCmd)
	rootCmd.AddCommand(logoCmd)
	rootCmd.AddCommand(clearCacheCmd)
	rootCmd.AddCommand(mountCmd)
}

func main() {
	log.SetFlags(log.LstdFlags)
	log.SetPrefix("[stb-sync] ")
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
