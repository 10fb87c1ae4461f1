package sync

// SyncContext holds shared site configuration for remote calls.
// It is immutable after construction.
type SyncContext struct {
	Config         Config
	Site           string
	RecordRequests bool
}
