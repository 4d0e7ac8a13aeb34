package mailer

import (
	"context"
	"fmt"
	"strings"

	"github.com/adlift/trafficd/internal/clock"
	"github.com/adlift/trafficd/internal/queue"
)

// Service is the public producer API for email tasks. Any component may
// hold one and enqueue mail; only the Worker consumes.
type Service struct {
	queue queue.Queue
	clock clock.Clock
}

func NewService(q queue.Queue, c clock.Clock) *Service {
	return &Service{queue: q, clock: c}
}

// Queue serializes an email task and pushes it onto the primary queue.
func (s *Service) Queue(ctx context.Context, to, subject, body, link string, opts *Options) error {
	if strings.TrimSpace(to) == "" {
		return fmt.Errorf("queue email: empty recipient")
	}

	task := &Task{
		To:      to,
		Subject: subject,
		Body:    body,
		Link:    link,
		Options: opts,
	}
	task.Refresh(s.clock.Now())

	raw, err := task.Encode()
	if err != nil {
		return fmt.Errorf("queue email: %w", err)
	}
	return s.queue.Enqueue(ctx, queue.KeyEmailQueue, raw)
}
