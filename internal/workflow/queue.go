package workflow

import (
	"strings"

	"carbon-scribe/verification-registry/internal/projects"
)

// Queue identifies one stage queue of the workflow document.
type Queue string

const (
	QueuePending        Queue = "pending"
	QueueLandApproval   Queue = "landApproval"
	QueueNGOAssigning   Queue = "ngoAssigning"
	QueueNGOAssigned    Queue = "ngoAssigned"
	QueueDroneAssigning Queue = "droneAssigning"
	QueueDroneAssigned  Queue = "droneAssigned"
	QueueAdminApproval  Queue = "adminApproval"
	QueueAccepted       Queue = "accepted"
	QueueRejected       Queue = "rejected"
)

type queueInfo struct {
	path     string
	status   projects.VerificationStatus
	assignee bool
	terminal bool
}

var queues = map[Queue]queueInfo{
	QueuePending:        {path: "pending", status: projects.StatusPending},
	QueueLandApproval:   {path: "landApproval", status: projects.StatusLandApproval},
	QueueNGOAssigning:   {path: "ngoVerification.assigning", status: projects.StatusLandApproval},
	QueueNGOAssigned:    {path: "ngoVerification.assigned", status: projects.StatusNGO, assignee: true},
	QueueDroneAssigning: {path: "droneVerification.assigning", status: projects.StatusDrones},
	QueueDroneAssigned:  {path: "droneVerification.assigned", status: projects.StatusDrones, assignee: true},
	QueueAdminApproval:  {path: "adminApproval", status: projects.StatusAdminApprovalPending},
	QueueAccepted:       {path: "accepted", status: projects.StatusApproved, terminal: true},
	QueueRejected:       {path: "rejected", status: projects.StatusRejected, terminal: true},
}

// allQueues is the display order of every queue.
var allQueues = []Queue{
	QueuePending,
	QueueLandApproval,
	QueueNGOAssigning,
	QueueNGOAssigned,
	QueueDroneAssigning,
	QueueDroneAssigned,
	QueueAdminApproval,
	QueueAccepted,
	QueueRejected,
}

// activeQueues is the order in which rejection looks for a project.
var activeQueues = allQueues[:7]

// redoTargets are the stages an admin may send a project back to.
var redoTargets = map[Queue]bool{
	QueuePending:      true,
	QueueLandApproval: true,
	QueueNGOAssigning: true,
}

// AllQueues returns every queue in workflow order.
func AllQueues() []Queue {
	return append([]Queue(nil), allQueues...)
}

// ActiveQueues returns the non-terminal queues in rejection scan order.
func ActiveQueues() []Queue {
	return append([]Queue(nil), activeQueues...)
}

// RedoTargets returns the stages accepted by Redo.
func RedoTargets() []Queue {
	out := make([]Queue, 0, len(redoTargets))
	for _, q := range allQueues {
		if redoTargets[q] {
			out = append(out, q)
		}
	}
	return out
}

// ParseQueue resolves a queue id ("ngoAssigned") or its persisted dotted
// path ("ngoVerification.assigned").
func ParseQueue(s string) (Queue, error) {
	s = strings.TrimSpace(s)
	if _, ok := queues[Queue(s)]; ok {
		return Queue(s), nil
	}
	for q, info := range queues {
		if info.path == s {
			return q, nil
		}
	}
	return "", errorf(KindInvalidPath, ErrInvalidPath, "%q", s)
}

// Valid reports whether q names a known queue.
func (q Queue) Valid() bool {
	_, ok := queues[q]
	return ok
}

// Path is the queue's location inside the persisted workflow document.
func (q Queue) Path() string {
	return queues[q].path
}

// Status is the project verification status mandated by the queue.
func (q Queue) Status() projects.VerificationStatus {
	return queues[q].status
}

// Terminal reports whether projects rest permanently in q.
func (q Queue) Terminal() bool {
	return queues[q].terminal
}

// HoldsAssignee reports whether entries in q record an NGO or drone operator.
func (q Queue) HoldsAssignee() bool {
	return queues[q].assignee
}

func (q Queue) String() string {
	return string(q)
}
