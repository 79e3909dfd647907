package domain

import (
	"context"
	"errors"
)

var ErrDeliveryFailed = errors.New("notification_delivery_failed")

// Message is a rendered notification. HTMLBody lines are joined with <br>.
type Message struct {
	To       string
	Subject  string
	HTMLBody string
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}
