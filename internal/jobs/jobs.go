// Package jobs holds the two autonomous mutation jobs. The scheduler service
// runs them on timers; super-admins can trigger them through the API. Both
// mutate tasks under a designated system identity and reuse the same storage
// transactions as user-driven mutations.
package jobs

// Result aggregates one job run. Failed items are logged and counted, never
// re-raised; one bad item does not stop the batch.
type Result struct {
	Total   int `json:"total"`
	Success int `json:"success"`
	Failed  int `json:"failed"`
}
