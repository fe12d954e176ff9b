package cli

import "github.com/nsyszr/notify/config"

type Handler struct {
	Migration *MigrateHandler
	Watch     *WatchHandler
}

func NewHandler(c *config.Config) *Handler {
	return &Handler{
		Migration: newMigrateHandler(c),
		Watch:     newWatchHandler(c),
	}
}
