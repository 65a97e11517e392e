package workflows

// Verification statuses a project moves through.
const (
	StatusPending              = "pending"
	StatusLandApproval         = "land approval"
	StatusNGO                  = "ngo"
	StatusDrones               = "drones"
	StatusAdminApprovalPending = "admin approval pending"
	StatusApproved             = "approved"
	StatusRejected             = "rejected"
)

// StateMachine enforces project verification status transitions
type StateMachine struct {
	allowedTransitions map[string][]string
}

// NewStateMachine creates a new state machine with allowed transitions
func NewStateMachine() *StateMachine {
	return &StateMachine{
		allowedTransitions: map[string][]string{
			StatusPending:      {StatusLandApproval, StatusRejected},
			StatusLandApproval: {StatusNGO, StatusRejected},
			StatusNGO:          {StatusDrones, StatusRejected},
			// Assigning a drone operator keeps the project in the drones status.
			StatusDrones: {StatusDrones, StatusAdminApprovalPending, StatusRejected},
			// The only backward edges: admin redo to an earlier stage.
			StatusAdminApprovalPending: {
				StatusApproved,
				StatusRejected,
				StatusPending,
				StatusLandApproval,
			},
			StatusApproved: {},
			StatusRejected: {},
		},
	}
}

// CanTransition checks if a status transition is allowed
func (sm *StateMachine) CanTransition(from, to string) bool {
	allowed, exists := sm.allowedTransitions[from]
	if !exists {
		return false
	}
	for _, allowedTo := range allowed {
		if allowedTo == to {
			return true
		}
	}
	return false
}

// GetAllowedTransitions returns the allowed next statuses for a given status
func (sm *StateMachine) GetAllowedTransitions(from string) []string {
	allowed, exists := sm.allowedTransitions[from]
	if !exists {
		return []string{}
	}
	return allowed
}

// IsTerminal reports whether no transition leaves the given status.
func (sm *StateMachine) IsTerminal(status string) bool {
	allowed, exists := sm.allowedTransitions[status]
	return exists && len(allowed) == 0
}
