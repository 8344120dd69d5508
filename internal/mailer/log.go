package mailer

import (
	"context"
	"log"

	"github.com/google/uuid"
)

// LogSender pretends to deliver mail by logging it. Used when no relay API
// key is configured (local development).
type LogSender struct{}

func (LogSender) Send(ctx context.Context, req SendRequest) (SendResult, error) {
	log.Printf("📧 [dry-run] to=%s subject=%q\n", req.To, req.Subject)
	return SendResult{MessageID: "dry-run-" + uuid.NewString()}, nil
}

var _ Sender = LogSender{}
