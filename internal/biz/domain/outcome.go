package domain

import "time"

// Outcome is the terminal state of handling one message
type Outcome string

const (
	OutcomeIgnoredSelf    Outcome = "ignored_self"
	OutcomeIgnoredChannel Outcome = "ignored_channel"
	OutcomeThrottled      Outcome = "throttled"
	OutcomeBusy           Outcome = "busy"
	OutcomeCanceled       Outcome = "canceled"
	OutcomeGenerateFailed Outcome = "generate_failed"
	OutcomeSendFailed     Outcome = "send_failed"
	OutcomeReplied        Outcome = "replied"
)

// Attempted reports whether the message got past the gate
func (o Outcome) Attempted() bool {
	switch o {
	case OutcomeCanceled, OutcomeGenerateFailed, OutcomeSendFailed, OutcomeReplied:
		return true
	}
	return false
}

// ReplyRecord is one journaled reply attempt
type ReplyRecord struct {
	ID          string
	MessageID   string
	ChannelID   string
	AuthorID    string
	AuthorName  string
	Prompt      string
	Reply       string
	Outcome     Outcome
	Error       string
	ReceivedAt  time.Time
	CompletedAt time.Time
}
