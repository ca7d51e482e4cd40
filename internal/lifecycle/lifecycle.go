// Package lifecycle holds the report status model and its allowed edges.
package lifecycle

import "strings"

type Status string

const (
	StatusPendingReview   Status = "pending_review"
	StatusApprovedSending Status = "approved_sending"
	StatusSent            Status = "sent"
	StatusReplied         Status = "replied"
	StatusRejected        Status = "rejected"
	StatusDeleted         Status = "deleted"
)

const (
	EventDispatchStarted   = "dispatch_started"
	EventDispatchSucceeded = "dispatch_succeeded"
	EventDispatchFailed    = "dispatch_failed"
	EventRejected          = "rejected"
	EventDeleted           = "deleted"
	EventReplyReceived     = "reply_received"
)

var transitions = map[Status]map[Status]string{
	StatusPendingReview: {
		StatusApprovedSending: EventDispatchStarted,
		StatusRejected:        EventRejected,
		StatusDeleted:         EventDeleted,
	},
	StatusApprovedSending: {
		StatusSent:          EventDispatchSucceeded,
		StatusPendingReview: EventDispatchFailed,
		StatusRejected:      EventRejected,
		StatusDeleted:       EventDeleted,
	},
	StatusSent: {
		StatusReplied: EventReplyReceived,
	},
	StatusReplied: {
		StatusReplied: EventReplyReceived,
	},
}

func Normalize(s string) Status {
	return Status(strings.ToLower(strings.TrimSpace(s)))
}

// CanTransition reports whether from -> to is an edge of the state machine.
// Self-loops are only allowed where listed (replied -> replied).
func CanTransition(from, to Status) bool {
	next := transitions[from]
	if next == nil {
		return false
	}
	_, ok := next[to]
	return ok
}

// EventForTransition returns the event name of the edge, or "" when the edge does not exist.
func EventForTransition(from, to Status) string {
	return transitions[from][to]
}

// IsTerminal reports whether no operator action can move the report any more.
// Sent and replied reports only accept replies.
func IsTerminal(s Status) bool {
	switch s {
	case StatusSent, StatusReplied, StatusRejected, StatusDeleted:
		return true
	}
	return false
}

// AcceptsReply reports whether a reply moves the report to replied.
func AcceptsReply(s Status) bool {
	return s == StatusSent || s == StatusReplied
}

func (s Status) Valid() bool {
	for _, v := range AllStatuses() {
		if v == s {
			return true
		}
	}
	return false
}

func AllStatuses() []Status {
	return []Status{
		StatusPendingReview,
		StatusApprovedSending,
		StatusSent,
		StatusReplied,
		StatusRejected,
		StatusDeleted,
	}
}
