package audithook

// Audit event actions. Each constant corresponds to one ext lifecycle hook
// and becomes the Action field of the audit event.
const (
	ActionJobCreated    = "job.created"
	ActionJobStarted    = "job.started"
	ActionJobCompleted  = "job.completed"
	ActionJobFailed     = "job.failed"
	ActionJobRetrying   = "job.retrying"
	ActionJobCancelled  = "job.cancelled"
	ActionIndexRepaired = "index.repaired"
)

// Audit event categories group related actions.
const (
	CategoryJob   = "tempo.job"
	CategoryIndex = "tempo.index"
)

// Resource types used as the Resource field in audit events.
const (
	ResourceJob        = "job"
	ResourceIndexEntry = "index_entry"
)

// AllActions returns every action this extension can emit.
func AllActions() []string {
	return []string{
		ActionJobCreated,
		ActionJobStarted,
		ActionJobCompleted,
		ActionJobFailed,
		ActionJobRetrying,
		ActionJobCancelled,
		ActionIndexRepaired,
	}
}
