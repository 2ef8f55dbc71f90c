package workflow

import "github.com/md-rashed-zaman/staffops/services/booking-service/internal/model"

const (
	opAssignManager = "assign_manager"
	opPrepare       = "start_preparation"
	opReady         = "mark_ready"
	opStart         = "start_event"
	opComplete      = "complete_event"
	opCancel        = "cancel_event"
	opIssue         = "report_issue"
	opAssignStaff   = "assign_staff"
	opCheckIn       = "check_in_staff"
	opCheckOut      = "check_out_staff"
)

var (
	active = []model.EventStatus{
		model.EventScheduled,
		model.EventPreparation,
		model.EventInProgress,
		model.EventIssueReported,
	}
	beforeStart = []model.EventStatus{
		model.EventScheduled,
		model.EventPreparation,
		model.EventIssueReported,
	}
)

// allowedFrom lists the statuses each operation may start from. Operations
// missing from the table are allowed from any non-terminal status.
var allowedFrom = map[string][]model.EventStatus{
	opPrepare:  beforeStart,
	opStart:    beforeStart,
	opComplete: {model.EventInProgress, model.EventIssueReported},
	opCancel:   active,
	opIssue:    active,
}

func canTransition(op string, from model.EventStatus) bool {
	if from.Terminal() {
		return false
	}
	allowed, ok := allowedFrom[op]
	if !ok {
		return true
	}
	for _, s := range allowed {
		if s == from {
			return true
		}
	}
	return false
}
