package transformer

import (
	"fmt"
	"strings"

	"github.com/example/whatsapp-gateway/internal/models"
)

// stubRevoked is the protocol stub marking a deleted message.
const stubRevoked = 1

// MapStatus maps a protocol delivery state, numeric or symbolic, onto the
// closed webhook set. Unknown states are forced to failed with a synthetic
// error entry so they stay visible downstream.
func MapStatus(raw string) (string, *models.ErrorDetail) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "0", "ERROR":
		return models.StatusFailed, nil
	case "1", "PENDING", "2", "SERVER_ACK":
		return models.StatusSent, nil
	case "3", "DELIVERY_ACK":
		return models.StatusDelivered, nil
	case "4", "READ", "5", "PLAYED":
		return models.StatusRead, nil
	case "DELETED":
		return models.StatusDeleted, nil
	}
	return models.StatusFailed, &models.ErrorDetail{
		Code:  CodeUnknownStatus,
		Title: fmt.Sprintf("Unknown status type %s", raw),
	}
}

// MapReceipt maps acknowledgement timestamps onto a delivery status.
func MapReceipt(r models.NativeReceipt) string {
	if r.ReadTimestamp > 0 {
		return models.StatusRead
	}
	return models.StatusDelivered
}

// Stub parameter substrings marking a message the device could not decrypt.
var decryptStubErrors = []string{
	"message absent from node",
	"invalid prekey id",
	"key used already or never filled",
	"no senderkeyrecord",
	"no session record",
	"no matching sessions",
}

// IsDecryptStub reports whether the stub parameters describe a decryption
// failure. Comparison is case-insensitive and substring based.
func IsDecryptStub(params []string) bool {
	for _, p := range params {
		lower := strings.ToLower(p)
		for _, known := range decryptStubErrors {
			if strings.Contains(lower, known) {
				return true
			}
		}
	}
	return false
}
