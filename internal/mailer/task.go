package mailer

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// State is the delivery state of a task. A task object only ever moves
// forward: PENDING -> SENDING -> RETRY_SCHEDULED -> SENT or DROPPED.
// SENT and DROPPED are terminal; the task is never re-serialized.
type State string

const (
	StatePending        State = "PENDING"
	StateSending        State = "SENDING"
	StateRetryScheduled State = "RETRY_SCHEDULED"
	StateSent           State = "SENT"
	StateDropped        State = "DROPPED"
)

// Options carries the optional per-task delivery knobs.
type Options struct {
	RecipientName string   `json:"recipientName,omitempty"`
	Attachments   []string `json:"attachments,omitempty"`
	Retries       int      `json:"retries,omitempty"`
	Priority      int      `json:"priority,omitempty"`
}

// Task is the wire format of one email job. Attempts travels with the
// task so the retry budget is cumulative across the primary and retry
// queues; Timestamp is refreshed whenever the task is rescheduled and
// gates how soon the retry consumer may re-attempt it.
type Task struct {
	To        string   `json:"to"`
	Subject   string   `json:"subject"`
	Body      string   `json:"body"`
	Link      string   `json:"link,omitempty"`
	Options   *Options `json:"options,omitempty"`
	Attempts  int      `json:"attempts"`
	Timestamp int64    `json:"timestamp"`
}

func (t *Task) Encode() (string, error) {
	b, err := json.Marshal(t)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func DecodeTask(raw string) (*Task, error) {
	var t Task
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return nil, err
	}
	if strings.TrimSpace(t.To) == "" {
		return nil, errors.New("email task has no recipient")
	}
	return &t, nil
}

// EnqueuedAt converts the epoch-millis timestamp back to a time.
func (t *Task) EnqueuedAt() time.Time {
	return time.UnixMilli(t.Timestamp).UTC()
}

// Refresh stamps the task with the given time.
func (t *Task) Refresh(now time.Time) {
	t.Timestamp = now.UnixMilli()
}
