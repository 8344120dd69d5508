package mailer

import "context"

// SendRequest is one outbound email as the relay sees it
type SendRequest struct {
	To      string
	Subject string
	HTML    string
}

// SendResult carries the relay's reference for a confirmed send
type SendResult struct {
	MessageID string
}

// Sender is the mail relay the dispatcher invokes. Send is synchronous and
// must honor ctx cancellation/deadline; any error is a transport failure.
type Sender interface {
	Send(ctx context.Context, req SendRequest) (SendResult, error)
}
