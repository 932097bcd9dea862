package cli

import (
	"flag"
	"fmt"
	"os"

	"github.com/golang/glog"
	"github.com/spf13/cobra"
)

var (
	// Version, Commit, and Date are set at build time via ldflags
	Version = "dev"
	Commit  = ""
	Date    = ""
)

var rootCmd = &cobra.Command{
	Use:   "mhk",
	Short: "Multihack - Edit a project together in real time",
	Long: `Multihack (mhk): edit a project together in real time.

Joins a room on a relay server and keeps the files of the current
directory in sync with every other peer in the room.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// glog reads its flags from the go flag set; mark it parsed so it
		// stops warning about logging before flag.Parse.
		_ = flag.CommandLine.Parse(nil)
	},
}

func Execute() {
	defer glog.Flush()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		glog.Flush()
		os.Exit(1)
	}
}

// GetRootCmd returns the root command for documentation generation.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	// Expose glog's -v, -logtostderr, ... as persistent flags.
	rootCmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)
	if os.Getenv("MHK_DEBUG") != "" {
		_ = flag.Set("logtostderr", "true")
		_ = flag.Set("v", "1")
	}

	rootCmd.SetVersionTemplate(fmt.Sprintf("mhk version %s\ncommit: %s\ndate: %s\n", Version, Commit, Date))

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(relayCmd)
	rootCmd.AddCommand(statusCmd)
}
