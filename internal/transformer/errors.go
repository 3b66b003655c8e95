package transformer

import (
	"errors"
	"fmt"

	"github.com/example/whatsapp-gateway/internal/models"
)

// Send error codes surfaced in webhook-shaped failure responses.
const (
	CodeGeneric        = 1
	CodeAuthExpired    = 3
	CodeUnknownStatus  = 4
	CodeInvalidLink    = 11
	CodeMessageBlocked = 8
	CodeAuthInvalid    = 12
	CodeReloaded       = 15
)

// ErrUnknownMessageType is raised for an outbound request whose type is
// outside the supported set.
var ErrUnknownMessageType = errors.New("unknown message type")

// ErrBindTemplate is raised when template components cannot be resolved.
var ErrBindTemplate = errors.New("template binding failed")

// SendError is a classified send failure carrying the numeric code and
// localized title surfaced to webhook consumers.
type SendError struct {
	Code  int
	Title string
}

// Error implements the error interface.
func (e *SendError) Error() string {
	return fmt.Sprintf("send error %d: %s", e.Code, e.Title)
}

// NewSendError constructs a classified send failure.
func NewSendError(code int, title string) *SendError {
	return &SendError{Code: code, Title: title}
}

// IsAuthCode reports whether the code signals session/auth invalidity and
// therefore requires a forced close-and-reconnect.
func (e *SendError) IsAuthCode() bool {
	return e.Code == CodeAuthExpired || e.Code == CodeAuthInvalid
}

// DecryptError marks a protocol stub the network could not decrypt. It
// carries the partially built payload so the failure stays visible to the
// webhook consumer instead of being dropped.
type DecryptError struct {
	Payload models.WebhookPayload
}

// Error implements the error interface.
func (e *DecryptError) Error() string {
	return "message decryption failed"
}

// FailureResponse renders a classified error as a webhook-shaped failure
// response with a failed status entry for the given synthetic message id.
func FailureResponse(phone, messageID, timestamp string, code int, title string) models.SendResponse {
	payload := models.NewWebhookPayload(phone, models.ChangeValue{
		Statuses: []models.Status{{
			ID:        messageID,
			Status:    models.StatusFailed,
			Timestamp: timestamp,
			Errors: []models.ErrorDetail{{
				Code:  code,
				Title: title,
			}},
		}},
	})
	return models.SendResponse{Error: &payload}
}
