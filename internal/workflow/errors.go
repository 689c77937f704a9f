package workflow

import "errors"

var (
	ErrInvalidState        = errors.New("file state does not allow this action")
	ErrInvalidTarget       = errors.New("target status not reachable from current status")
	ErrNotPermitted        = errors.New("action not permitted for this user")
	ErrAssigneeRequired    = errors.New("a processing agent must be chosen")
	ErrAssigneeNotAgent    = errors.New("assignee must be a processing agent")
	ErrResultRequired      = errors.New("a visa result is required to mark the file done")
	ErrResultNotAllowed    = errors.New("a visa result can only be recorded when marking the file done")
	ErrInvalidResult       = errors.New("visa result must be APPROVED or REJECTED")
	ErrEmptyNote           = errors.New("note text is required")
	ErrInvalidReminderDate = errors.New("reminder date must be YYYY-MM-DD")
	ErrNegativeAmount      = errors.New("money fields must not be negative")
	ErrApplicantRequired   = errors.New("applicant name is required")
)

// IsValidation reports whether err is a caller input error rather than a state or permission error.
func IsValidation(err error) bool {
	switch {
	case errors.Is(err, ErrAssigneeRequired),
		errors.Is(err, ErrResultRequired),
		errors.Is(err, ErrResultNotAllowed),
		errors.Is(err, ErrInvalidResult),
		errors.Is(err, ErrEmptyNote),
		errors.Is(err, ErrInvalidReminderDate),
		errors.Is(err, ErrNegativeAmount),
		errors.Is(err, ErrApplicantRequired):
		return true
	default:
		return false
	}
}
