package cmd

import (
	"github.com/spf13/cobra"
)

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the live notification feed for a viewer identity",
	Run:   cmdHandler.Watch.Run,
}

func init() {
	watchCmd.Flags().String("as-user", "", "watch as the given named user")
	watchCmd.Flags().Bool("guest", false, "watch as guest (public alerts only)")
	RootCmd.AddCommand(watchCmd)
}
