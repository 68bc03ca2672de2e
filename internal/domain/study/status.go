package study

// WorkflowStatus is the canonical fine-grained pipeline state of a study.
type WorkflowStatus string

const (
	StatusNewStudyReceived            WorkflowStatus = "new_study_received"
	StatusPendingAssignment           WorkflowStatus = "pending_assignment"
	StatusAssignedToDoctor            WorkflowStatus = "assigned_to_doctor"
	StatusDoctorOpenedReport          WorkflowStatus = "doctor_opened_report"
	StatusReportInProgress            WorkflowStatus = "report_in_progress"
	StatusReportFinalized             WorkflowStatus = "report_finalized"
	StatusReportUploaded              WorkflowStatus = "report_uploaded"
	StatusReportDownloadedRadiologist WorkflowStatus = "report_downloaded_radiologist"
	StatusReportDownloaded            WorkflowStatus = "report_downloaded"
	StatusFinalReportDownloaded       WorkflowStatus = "final_report_downloaded"
	StatusArchived                    WorkflowStatus = "archived"
)

// Category is the coarse dashboard bucket derived from a WorkflowStatus.
type Category string

const (
	CategoryPending    Category = "pending"
	CategoryInProgress Category = "inprogress"
	CategoryCompleted  Category = "completed"
	CategoryUnknown    Category = "unknown"
)

// statusRank orders statuses by pipeline progression. Transitions may only
// move forward along this order; archived is terminal and reachable from any
// non-terminal state.
var statusRank = map[WorkflowStatus]int{
	StatusNewStudyReceived:            0,
	StatusPendingAssignment:           1,
	StatusAssignedToDoctor:            2,
	StatusDoctorOpenedReport:          3,
	StatusReportInProgress:            4,
	StatusReportFinalized:             5,
	StatusReportUploaded:              6,
	StatusReportDownloadedRadiologist: 7,
	StatusReportDownloaded:            8,
	StatusFinalReportDownloaded:       9,
	StatusArchived:                    10,
}

// categoryTable is the single authoritative status-to-category mapping. Every
// consumer (dashboards, tab counts, filters) goes through CategoryOf or
// ExpandCategory; nothing else may classify a status.
//
// Note: archived is deliberately absent and therefore classifies as unknown.
// Which dashboard bucket an archived study belongs to is an open product
// decision; until it is made, archived studies stay out of the three tabs.
var categoryTable = map[WorkflowStatus]Category{
	StatusNewStudyReceived:            CategoryPending,
	StatusPendingAssignment:           CategoryPending,
	StatusAssignedToDoctor:            CategoryPending,
	StatusDoctorOpenedReport:          CategoryInProgress,
	StatusReportInProgress:            CategoryInProgress,
	StatusReportFinalized:             CategoryCompleted,
	StatusReportUploaded:              CategoryCompleted,
	StatusReportDownloadedRadiologist: CategoryCompleted,
	StatusReportDownloaded:            CategoryCompleted,
	StatusFinalReportDownloaded:       CategoryCompleted,
}

// AllStatuses lists every canonical status in pipeline order.
func AllStatuses() []WorkflowStatus {
	return []WorkflowStatus{
		StatusNewStudyReceived,
		StatusPendingAssignment,
		StatusAssignedToDoctor,
		StatusDoctorOpenedReport,
		StatusReportInProgress,
		StatusReportFinalized,
		StatusReportUploaded,
		StatusReportDownloadedRadiologist,
		StatusReportDownloaded,
		StatusFinalReportDownloaded,
		StatusArchived,
	}
}

// IsValid reports whether s is one of the canonical workflow statuses.
func (s WorkflowStatus) IsValid() bool {
	_, ok := statusRank[s]
	return ok
}

// IsTerminal reports whether s admits no further transitions.
func (s WorkflowStatus) IsTerminal() bool {
	return s == StatusArchived
}

// CategoryOf maps a workflow status to its dashboard category. Unrecognized
// statuses and archived map to CategoryUnknown.
func CategoryOf(s WorkflowStatus) Category {
	if c, ok := categoryTable[s]; ok {
		return c
	}
	return CategoryUnknown
}

// ExpandCategory returns the set of statuses that classify into c, in
// pipeline order. It is the inverse of CategoryOf and shares its table.
func ExpandCategory(c Category) []WorkflowStatus {
	var out []WorkflowStatus
	for _, s := range AllStatuses() {
		if CategoryOf(s) == c {
			out = append(out, s)
		}
	}
	return out
}

// IsValidTransition reports whether a study may move from one status to
// another: strictly forward along the pipeline order, or from any
// non-terminal state to archived.
func IsValidTransition(from, to WorkflowStatus) bool {
	fromRank, ok := statusRank[from]
	if !ok {
		return false
	}
	toRank, ok := statusRank[to]
	if !ok {
		return false
	}
	if from.IsTerminal() {
		return false
	}
	if to == StatusArchived {
		return true
	}
	return toRank > fromRank
}

// ParseWorkflowStatus validates a raw status string from the transport layer.
func ParseWorkflowStatus(raw string) (WorkflowStatus, error) {
	s := WorkflowStatus(raw)
	if !s.IsValid() {
		return "", ErrUnknownStatus
	}
	return s, nil
}

// ParseCategory validates a raw category string from the transport layer.
func ParseCategory(raw string) (Category, error) {
	switch c := Category(raw); c {
	case CategoryPending, CategoryInProgress, CategoryCompleted, CategoryUnknown:
		return c, nil
	}
	return "", ErrUnknownCategory
}
