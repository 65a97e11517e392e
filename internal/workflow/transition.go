package workflow

import (
	"slices"
	"time"
)

// EntryFields carries the fields stamped onto an entry when it lands in a queue.
type EntryFields struct {
	Message    string
	AssigneeID string
}

// Move removes projectID from one queue and appends a fresh entry for it to
// another. Both queues resolve before anything is removed, so a failed Move
// leaves the document untouched.
func (s *State) Move(projectID string, from, to Queue, fields EntryFields, now time.Time) (Entry, error) {
	src := s.queue(from)
	if src == nil {
		return Entry{}, errorf(KindInvalidPath, ErrInvalidSourcePath, "%q", from)
	}
	dst := s.queue(to)
	if dst == nil {
		return Entry{}, errorf(KindInvalidPath, ErrInvalidDestinationPath, "%q", to)
	}

	idx := slices.IndexFunc(*src, func(e Entry) bool { return e.ProjectID == projectID })
	if idx < 0 {
		return Entry{}, errorf(KindNotFound, ErrProjectNotInQueue, "%s is not in %s", projectID, from)
	}

	entry := newEntry(projectID, to, fields, now)
	*src = slices.Delete(*src, idx, idx+1)
	*dst = append(*dst, entry)
	return entry, nil
}

// Enqueue appends a project that is not yet part of the workflow.
func (s *State) Enqueue(projectID string, q Queue, fields EntryFields, now time.Time) (Entry, error) {
	dst := s.queue(q)
	if dst == nil {
		return Entry{}, errorf(KindInvalidPath, ErrInvalidDestinationPath, "%q", q)
	}
	current, found, err := s.Where(projectID)
	if err != nil {
		return Entry{}, err
	}
	if found {
		return Entry{}, errorf(KindConflict, ErrAlreadyQueued, "%s is in %s", projectID, current)
	}

	entry := newEntry(projectID, q, fields, now)
	*dst = append(*dst, entry)
	return entry, nil
}

func newEntry(projectID string, q Queue, fields EntryFields, now time.Time) Entry {
	entry := Entry{
		ProjectID: projectID,
		Message:   fields.Message,
		EnteredAt: now.UTC(),
	}
	if q.HoldsAssignee() {
		entry.AssigneeID = fields.AssigneeID
	}
	return entry
}
