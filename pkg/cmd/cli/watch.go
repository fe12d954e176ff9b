package cli

import (
	"context"
	"os"
	"os/signal"

	colorable "github.com/mattn/go-colorable"
	"github.com/nsyszr/notify/config"
	"github.com/nsyszr/notify/pkg/feed"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type WatchHandler struct {
	c *config.Config
}

func newWatchHandler(c *config.Config) *WatchHandler {
	return &WatchHandler{c: c}
}

// Run follows the live feed for the selected viewer identity and logs
// every reconciled snapshot. Without flags it watches as administrator.
func (h *WatchHandler) Run(cmd *cobra.Command, args []string) {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
		ForceColors:   true,
	})
	log.SetOutput(colorable.NewColorableStdout())

	identity := feed.Administrator()
	if guest, _ := cmd.Flags().GetBool("guest"); guest {
		identity = feed.Guest()
	} else if username, _ := cmd.Flags().GetString("as-user"); username != "" {
		identity = feed.NamedUser(username)
	}

	client := feed.New(feed.Config{
		NATSURL:  h.c.NATSServerURL,
		StoreURL: h.c.StoreURL,
		Identity: identity,
		OnChange: logSnapshot,
	})

	log.Infof("watching notifications as %s", identity)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	client.Run(ctx)
}

func logSnapshot(s feed.State) {
	if s.Stats != nil {
		log.Infof("feed updated: %d notifications shown, %d total, %d users",
			len(s.Notifications), s.Stats.TotalNotifications, s.Stats.TotalUsers)
	} else {
		log.Infof("feed updated: %d notifications shown", len(s.Notifications))
	}

	for i, n := range s.Notifications {
		if i >= 5 {
			break
		}
		target := "broadcast"
		if !n.Broadcast() {
			target = "@" + n.RecipientUsername()
		}
		log.Infof("  [%s] %s (%s)", n.Priority, n.Message, target)
	}
}
