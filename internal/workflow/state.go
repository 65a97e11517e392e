package workflow

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// StateID is the identifier of the single workflow document.
const StateID = "workflow"

// Entry is one project's position inside a queue.
type Entry struct {
	ProjectID  string    `json:"projectId" bson:"projectId"`
	Message    string    `json:"message" bson:"message"`
	AssigneeID string    `json:"assigneeId,omitempty" bson:"assigneeId,omitempty"`
	EnteredAt  time.Time `json:"enteredAt" bson:"enteredAt"`
}

// AssignmentQueues splits a verification stage into projects waiting for an
// assignee and projects already handed to one.
type AssignmentQueues struct {
	Assigning []Entry `json:"assigning" bson:"assigning"`
	Assigned  []Entry `json:"assigned" bson:"assigned"`
}

// State is the workflow document. Every registered project appears in
// exactly one of its queues.
type State struct {
	ID                string           `json:"id" bson:"_id"`
	Version           int64            `json:"version" bson:"version"`
	Pending           []Entry          `json:"pending" bson:"pending"`
	LandApproval      []Entry          `json:"landApproval" bson:"landApproval"`
	NGOVerification   AssignmentQueues `json:"ngoVerification" bson:"ngoVerification"`
	DroneVerification AssignmentQueues `json:"droneVerification" bson:"droneVerification"`
	AdminApproval     []Entry          `json:"adminApproval" bson:"adminApproval"`
	Accepted          []Entry          `json:"accepted" bson:"accepted"`
	Rejected          []Entry          `json:"rejected" bson:"rejected"`
	UpdatedAt         time.Time        `json:"updatedAt" bson:"updatedAt"`
}

// NewState returns an empty workflow document.
func NewState() *State {
	return &State{
		ID:                StateID,
		Pending:           []Entry{},
		LandApproval:      []Entry{},
		NGOVerification:   AssignmentQueues{Assigning: []Entry{}, Assigned: []Entry{}},
		DroneVerification: AssignmentQueues{Assigning: []Entry{}, Assigned: []Entry{}},
		AdminApproval:     []Entry{},
		Accepted:          []Entry{},
		Rejected:          []Entry{},
	}
}

func (s *State) queue(q Queue) *[]Entry {
	switch q {
	case QueuePending:
		return &s.Pending
	case QueueLandApproval:
		return &s.LandApproval
	case QueueNGOAssigning:
		return &s.NGOVerification.Assigning
	case QueueNGOAssigned:
		return &s.NGOVerification.Assigned
	case QueueDroneAssigning:
		return &s.DroneVerification.Assigning
	case QueueDroneAssigned:
		return &s.DroneVerification.Assigned
	case QueueAdminApproval:
		return &s.AdminApproval
	case QueueAccepted:
		return &s.Accepted
	case QueueRejected:
		return &s.Rejected
	}
	return nil
}

// Entries returns a copy of the entries of q in arrival order.
func (s *State) Entries(q Queue) ([]Entry, error) {
	entries := s.queue(q)
	if entries == nil {
		return nil, errorf(KindInvalidPath, ErrInvalidPath, "%q", q)
	}
	return append([]Entry{}, (*entries)...), nil
}

// Len returns the number of entries in q, zero for unknown queues.
func (s *State) Len(q Queue) int {
	if entries := s.queue(q); entries != nil {
		return len(*entries)
	}
	return 0
}

// Counts returns the length of every queue.
func (s *State) Counts() map[Queue]int {
	counts := make(map[Queue]int, len(allQueues))
	for _, q := range allQueues {
		counts[q] = s.Len(q)
	}
	return counts
}

// Total is the number of entries across all queues.
func (s *State) Total() int {
	total := 0
	for _, q := range allQueues {
		total += s.Len(q)
	}
	return total
}

// Clone returns a deep copy of the document.
func (s *State) Clone() *State {
	c := *s
	for _, q := range allQueues {
		src := s.queue(q)
		dst := c.queue(q)
		*dst = append([]Entry{}, (*src)...)
	}
	return &c
}

// Where reports the queue holding projectID. A project sighted in more
// than one queue is an Inconsistency.
func (s *State) Where(projectID string) (Queue, bool, error) {
	return s.locate(projectID, allQueues)
}

// Locate finds projectID among the active queues, scanning in rejection order.
func (s *State) Locate(projectID string) (Queue, error) {
	q, found, err := s.locate(projectID, activeQueues)
	if err != nil {
		return "", err
	}
	if !found {
		return "", errorf(KindNotFound, ErrProjectNotInQueue, "%s is not in any active queue", projectID)
	}
	return q, nil
}

func (s *State) locate(projectID string, order []Queue) (Queue, bool, error) {
	var seen []Queue
	for _, q := range order {
		for _, e := range *s.queue(q) {
			if e.ProjectID == projectID {
				seen = append(seen, q)
			}
		}
	}
	switch len(seen) {
	case 0:
		return "", false, nil
	case 1:
		return seen[0], true, nil
	default:
		return "", false, errorf(KindInconsistency, ErrMultipleQueues, "%s in %s", projectID, joinQueues(seen))
	}
}

// Duplicates returns every project id that appears more than once across
// the queues, mapped to the queues it was seen in.
func (s *State) Duplicates() map[string][]Queue {
	seen := make(map[string][]Queue)
	for _, q := range allQueues {
		for _, e := range *s.queue(q) {
			seen[e.ProjectID] = append(seen[e.ProjectID], q)
		}
	}
	dups := make(map[string][]Queue)
	for id, qs := range seen {
		if len(qs) > 1 {
			dups[id] = qs
		}
	}
	return dups
}

// CheckPartition verifies that no project occupies two queue slots.
func (s *State) CheckPartition() error {
	dups := s.Duplicates()
	if len(dups) == 0 {
		return nil
	}
	ids := make([]string, 0, len(dups))
	for id := range dups {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, fmt.Sprintf("%s in %s", id, joinQueues(dups[id])))
	}
	return errorf(KindInconsistency, ErrMultipleQueues, "%s", strings.Join(parts, "; "))
}

func joinQueues(qs []Queue) string {
	names := make([]string, len(qs))
	for i, q := range qs {
		names[i] = string(q)
	}
	return strings.Join(names, ", ")
}
