package cmd

import (
	"github.com/nsyszr/notify/pkg/cmd/server"
	"github.com/spf13/cobra"
)

// serveStoreCmd represents the serve store command
var serveStoreCmd = &cobra.Command{
	Use:   "store",
	Short: "Start the notification store service (REST API + dispatcher)",
	Run:   server.RunServeStore(c),
}

func init() {
	serveCmd.AddCommand(serveStoreCmd)
}
