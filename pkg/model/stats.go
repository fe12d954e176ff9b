package model

// Stats holds the aggregate counters shown on the administrator
// dashboard. They are recomputed from the store on every reconciliation
// poll, never derived from push volume.
type Stats struct {
	TotalNotifications int64 `json:"totalNotifications"`
	TotalUsers         int64 `json:"totalUsers"`
}
