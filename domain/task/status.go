package task

import "slices"

// Status is the workflow state of a task. Values are stored and returned as
// slugs.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusToReview  Status = "to_review"
	StatusToBeFixed Status = "to_be_fixed"
	StatusToPublish Status = "to_publish"
	StatusPublished Status = "published"
)

// Statuses lists every status in workflow order.
var Statuses = []Status{
	StatusDraft,
	StatusToReview,
	StatusToBeFixed,
	StatusToPublish,
	StatusPublished,
}

var statusNames = map[Status]string{
	StatusDraft:     "Draft",
	StatusToReview:  "ToReview",
	StatusToBeFixed: "ToBeFixed",
	StatusToPublish: "ToPublish",
	StatusPublished: "Published",
}

// transitions is the forward workflow. Published is terminal.
var transitions = map[Status][]Status{
	StatusDraft:     {StatusToReview},
	StatusToReview:  {StatusToBeFixed, StatusToPublish},
	StatusToBeFixed: {StatusToReview},
	StatusToPublish: {StatusPublished},
}

// ParseStatus accepts a status by display name ("ToReview") or slug
// ("to_review").
func ParseStatus(v string) (Status, bool) {
	if s := Status(v); s.Valid() {
		return s, true
	}
	for s, name := range statusNames {
		if name == v {
			return s, true
		}
	}
	return "", false
}

// Valid reports whether s is one of the five workflow states.
func (s Status) Valid() bool {
	_, ok := statusNames[s]
	return ok
}

// Name returns the display name of s.
func (s Status) Name() string {
	return statusNames[s]
}

// Next returns the statuses reachable from s in one step.
func (s Status) Next() []Status {
	return slices.Clone(transitions[s])
}

// CanTransitionTo reports whether moving from s to to is a legal workflow step.
func (s Status) CanTransitionTo(to Status) bool {
	return slices.Contains(transitions[s], to)
}
