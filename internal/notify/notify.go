// Package notify delivers notification payloads to users and runs delayed jobs.
package notify

import (
	"context"
	"errors"
	"fmt"
)

// Payload is what a device shows for a notification
type Payload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url"`
	Icon  string `json:"icon"`
}

// Sender delivers a payload to every device of the given users
type Sender interface {
	Send(ctx context.Context, userIDs []string, p Payload) error
}

// Channel is a Sender reported under a name, such as "websocket" or "apns"
type Channel struct {
	Name string
	Sender
}

// Multi fans a payload out to several channels. Every channel is attempted.
type Multi []Channel

// Send delivers through every channel and joins their errors
func (m Multi) Send(ctx context.Context, userIDs []string, p Payload) error {
	var errs []error
	for _, c := range m {
		if err := sendChannel(ctx, c, userIDs, p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SendEach delivers through every channel and reports each outcome by
// channel name. A nil value means the channel delivered.
func (m Multi) SendEach(ctx context.Context, userIDs []string, p Payload) map[string]error {
	results := make(map[string]error, len(m))
	for _, c := range m {
		results[c.Name] = sendChannel(ctx, c, userIDs, p)
	}
	return results
}

func sendChannel(ctx context.Context, c Channel, userIDs []string, p Payload) error {
	if err := c.Send(ctx, userIDs, p); err != nil {
		return fmt.Errorf("%s: %w", c.Name, err)
	}
	return nil
}
