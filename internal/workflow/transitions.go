package workflow

import "github.com/webdoc-rokib/visa-track-sub000/internal/models"

const (
	ActionCreate           = "create_file"
	ActionSendToProcessing = "send_to_processing"
	ActionAcknowledge      = "acknowledge_processing"
	ActionUpdateStatus     = "update_status"
	ActionAddNote          = "add_note"
	ActionEdit             = "edit_file"
	ActionDelete           = "delete_file"
)

var (
	allRoles     = []string{models.RoleSales, models.RoleProcessing, models.RoleAdmin}
	allStatuses  = models.Statuses()
	openStatuses = []string{
		models.StatusReceivedSales,
		models.StatusHandoverProcessing,
		models.StatusDocsPending,
		models.StatusPaymentPending,
		models.StatusSubmitted,
		models.StatusFollowUp,
	}
)

type rule struct {
	roles []string
	from  []string
}

// policyTable maps an action to the roles that may invoke it and the statuses it may start from.
// A nil from list means any status.
var policyTable = map[string]rule{
	ActionCreate:           {roles: allRoles},
	ActionSendToProcessing: {roles: []string{models.RoleSales}, from: []string{models.StatusReceivedSales}},
	ActionAcknowledge:      {roles: []string{models.RoleProcessing}, from: []string{models.StatusHandoverProcessing}},
	ActionUpdateStatus:     {roles: allRoles, from: openStatuses},
	ActionAddNote:          {roles: allRoles, from: allStatuses},
	ActionEdit:             {roles: []string{models.RoleAdmin}},
	ActionDelete:           {roles: []string{models.RoleAdmin}},
}

var targetMap = map[string][]string{
	models.StatusReceivedSales: {models.StatusFollowUp, models.StatusDone},
	models.StatusHandoverProcessing: {
		models.StatusDocsPending, models.StatusPaymentPending, models.StatusSubmitted,
		models.StatusFollowUp, models.StatusDone,
	},
	models.StatusDocsPending: {
		models.StatusHandoverProcessing, models.StatusDocsPending, models.StatusPaymentPending,
		models.StatusSubmitted, models.StatusFollowUp, models.StatusDone,
	},
	models.StatusPaymentPending: {
		models.StatusHandoverProcessing, models.StatusDocsPending, models.StatusPaymentPending,
		models.StatusSubmitted, models.StatusFollowUp, models.StatusDone,
	},
	models.StatusSubmitted: {models.StatusFollowUp, models.StatusDone},
	models.StatusFollowUp: {
		models.StatusHandoverProcessing, models.StatusDocsPending, models.StatusPaymentPending,
		models.StatusSubmitted, models.StatusFollowUp, models.StatusDone,
	},
	models.StatusDone: {},
}

func ValidTransition(action, fromStatus string) bool {
	r, ok := policyTable[action]
	if !ok {
		return false
	}
	return r.from == nil || contains(r.from, fromStatus)
}

func RoleAllowed(action, role string) bool {
	r, ok := policyTable[action]
	if !ok {
		return false
	}
	return contains(r.roles, role)
}

// Allowed combines the role and status checks of the policy table.
func Allowed(action, role, fromStatus string) bool {
	return RoleAllowed(action, role) && ValidTransition(action, fromStatus)
}

func ValidTarget(from, to string) bool {
	return contains(targetMap[from], to)
}

// Targets returns the statuses reachable from the given status by a status update.
func Targets(from string) []string {
	out := make([]string, len(targetMap[from]))
	copy(out, targetMap[from])
	return out
}

// IsOwner reports whether the actor may drive the file's workflow. Processing agents get
// provisional access to any file sitting in the handover state.
func IsOwner(file models.File, actor Actor) bool {
	if file.AssignedTo != "" && file.AssignedTo == actor.Name {
		return true
	}
	return actor.Role == models.RoleProcessing && file.Status == models.StatusHandoverProcessing
}

func check(action string, actor Actor, fromStatus string) error {
	if !ValidTransition(action, fromStatus) {
		return ErrInvalidState
	}
	if !RoleAllowed(action, actor.Role) {
		return ErrNotPermitted
	}
	return nil
}

func contains(values []string, value string) bool {
	for _, item := range values {
		if item == value {
			return true
		}
	}
	return false
}
