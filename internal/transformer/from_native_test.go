package transformer

import (
	"errors"
	"testing"

	"github.com/example/whatsapp-gateway/internal/models"
)

const tenantPhone = "5531912345678"

func changeValue(t *testing.T, payload *models.WebhookPayload) models.ChangeValue {
	t.Helper()
	if payload == nil {
		t.Fatalf("expected payload, got nil")
	}
	if len(payload.Entry) != 1 || len(payload.Entry[0].Changes) != 1 {
		t.Fatalf("expected a single entry with a single change, got %+v", payload)
	}
	return payload.Entry[0].Changes[0].Value
}

func assertSingleMessage(t *testing.T, payload *models.WebhookPayload) models.Message {
	t.Helper()
	value := changeValue(t, payload)
	if len(value.Messages) != 1 {
		t.Fatalf("expected exactly one message, got %d", len(value.Messages))
	}
	if len(value.Statuses) != 0 {
		t.Fatalf("expected no statuses alongside a message, got %d", len(value.Statuses))
	}
	return value.Messages[0]
}

func assertSingleStatus(t *testing.T, payload *models.WebhookPayload) models.Status {
	t.Helper()
	value := changeValue(t, payload)
	if len(value.Statuses) != 1 {
		t.Fatalf("expected exactly one status, got %d", len(value.Statuses))
	}
	if len(value.Messages) != 0 {
		t.Fatalf("expected no messages alongside a status, got %d", len(value.Messages))
	}
	return value.Statuses[0]
}

func TestFromNativeTextMessage(t *testing.T) {
	msg := models.NativeMessage{
		Key: models.NativeKey{
			RemoteJID: "5562981861234@s.whatsapp.net",
			ID:        "3EB0A9253D51F4BC0366",
		},
		Content:          &models.NativeContent{Conversation: "hello there"},
		PushName:         "Alice",
		MessageTimestamp: 1712000000,
	}

	payload, senderPhone, _, err := FromNative(tenantPhone, msg, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if senderPhone != "5562981861234" {
		t.Fatalf("unexpected sender phone %s", senderPhone)
	}

	got := assertSingleMessage(t, payload)
	if got.Type != "text" || got.Text == nil || got.Text.Body != "hello there" {
		t.Fatalf("unexpected message %+v", got)
	}
	if got.From != "5562981861234" {
		t.Fatalf("unexpected from %s", got.From)
	}

	value := changeValue(t, payload)
	if len(value.Contacts) != 1 || value.Contacts[0].Profile.Name != "Alice" {
		t.Fatalf("expected push name in contacts, got %+v", value.Contacts)
	}
	if value.Metadata.DisplayPhoneNumber != tenantPhone {
		t.Fatalf("expected tenant phone in metadata, got %s", value.Metadata.DisplayPhoneNumber)
	}
}

func TestFromNativeGroupParticipantPrefersPN(t *testing.T) {
	msg := models.NativeMessage{
		Key: models.NativeKey{
			RemoteJID:      "123456789-987654@g.us",
			ID:             "3EB0A9253D51F4BC0367",
			Participant:    "98765432109876@lid",
			ParticipantPN:  "5562981861234@s.whatsapp.net",
			ParticipantLID: "98765432109876@lid",
		},
		Content:          &models.NativeContent{Conversation: "from a group"},
		MessageTimestamp: 1712000001,
	}

	payload, senderPhone, senderID, err := FromNative(tenantPhone, msg, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if senderPhone != "5562981861234" {
		t.Fatalf("expected PN identity to win, got %s", senderPhone)
	}
	if senderID != "98765432109876" {
		t.Fatalf("expected LID identity as sender id, got %s", senderID)
	}

	got := assertSingleMessage(t, payload)
	if got.GroupID != "123456789-987654" {
		t.Fatalf("expected group id, got %s", got.GroupID)
	}
}

func TestFromNativeMediaMessage(t *testing.T) {
	msg := models.NativeMessage{
		Key: models.NativeKey{
			RemoteJID: "5562981861234@s.whatsapp.net",
			ID:        "3AF7675E18E861BEF49C",
		},
		Content: &models.NativeContent{Image: &models.NativeMedia{
			Mimetype:   "image/jpeg",
			Caption:    "a photo",
			FileSHA256: "hash",
		}},
		MessageTimestamp: 1712000002,
	}

	payload, _, _, err := FromNative(tenantPhone, msg, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := assertSingleMessage(t, payload)
	if got.Type != "image" || got.Image == nil {
		t.Fatalf("unexpected message %+v", got)
	}
	if got.Image.ID != tenantPhone+"/3AF7675E18E861BEF49C" {
		t.Fatalf("unexpected media id %s", got.Image.ID)
	}
	if got.Image.Filename != "3AF7675E18E861BEF49C.jpg" {
		t.Fatalf("unexpected synthesized filename %s", got.Image.Filename)
	}
}

func TestFromNativeWrappedContentUnwraps(t *testing.T) {
	inner := &models.NativeContent{Conversation: "disappearing"}
	msg := models.NativeMessage{
		Key: models.NativeKey{
			RemoteJID: "5562981861234@s.whatsapp.net",
			ID:        "3EB0A9253D51F4BC0368",
		},
		Content: &models.NativeContent{
			Ephemeral: &models.NativeWrapped{Message: &models.NativeContent{
				ViewOnce: &models.NativeWrapped{Message: inner},
			}},
		},
		MessageTimestamp: 1712000003,
	}

	payload, _, _, err := FromNative(tenantPhone, msg, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := assertSingleMessage(t, payload)
	if got.Text == nil || got.Text.Body != "disappearing" {
		t.Fatalf("expected nested content to surface, got %+v", got)
	}
}

func TestFromNativeContactMessage(t *testing.T) {
	card := "BEGIN:VCARD\r\nVERSION:4.0\r\nFN:Bob Jones\r\nTEL:+5562981861234\r\nEND:VCARD\r\n"
	msg := models.NativeMessage{
		Key: models.NativeKey{
			RemoteJID: "5562981861234@s.whatsapp.net",
			ID:        "3EB0A9253D51F4BC0369",
		},
		Content: &models.NativeContent{Contact: &models.NativeContact{
			DisplayName: "Bob",
			Vcard:       card,
		}},
		MessageTimestamp: 1712000004,
	}

	payload, _, _, err := FromNative(tenantPhone, msg, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := assertSingleMessage(t, payload)
	if got.Type != "contacts" || len(got.Contacts) != 1 {
		t.Fatalf("unexpected message %+v", got)
	}
	if got.Contacts[0].Name.FormattedName != "Bob Jones" {
		t.Fatalf("expected vcard name, got %s", got.Contacts[0].Name.FormattedName)
	}
	if len(got.Contacts[0].Phones) != 1 || got.Contacts[0].Phones[0].Phone != "+5562981861234" {
		t.Fatalf("expected vcard phone, got %+v", got.Contacts[0].Phones)
	}
}

func TestFromNativeReactionAsReply(t *testing.T) {
	msg := models.NativeMessage{
		Key: models.NativeKey{
			RemoteJID: "5562981861234@s.whatsapp.net",
			ID:        "3EB0A9253D51F4BC0370",
		},
		Content: &models.NativeContent{Reaction: &models.NativeReaction{
			Key:  &models.NativeKey{ID: "3EB0TARGET"},
			Text: "👍",
		}},
		MessageTimestamp: 1712000005,
	}

	payload, _, _, err := FromNative(tenantPhone, msg, Options{SendReactionAsReply: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := assertSingleMessage(t, payload)
	if got.Type != "text" || got.Text.Body != "👍" {
		t.Fatalf("expected reaction rendered as text reply, got %+v", got)
	}
	if got.Context == nil || got.Context.MessageID != "3EB0TARGET" {
		t.Fatalf("expected reply context, got %+v", got.Context)
	}
}

func TestFromNativeStatusUpdate(t *testing.T) {
	msg := models.NativeMessage{
		Key: models.NativeKey{
			RemoteJID: "5562981861234@s.whatsapp.net",
			ID:        "3EB0A9253D51F4BC0371",
			FromMe:    true,
		},
		Update:           &models.NativeUpdate{Status: "DELIVERY_ACK"},
		MessageTimestamp: 1712000006,
	}

	payload, _, _, err := FromNative(tenantPhone, msg, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := assertSingleStatus(t, payload)
	if got.Status != models.StatusDelivered {
		t.Fatalf("expected delivered, got %s", got.Status)
	}
}

func TestFromNativeUnknownStatusForcedToFailed(t *testing.T) {
	msg := models.NativeMessage{
		Key: models.NativeKey{
			RemoteJID: "5562981861234@s.whatsapp.net",
			ID:        "3EB0A9253D51F4BC0372",
			FromMe:    true,
		},
		Update: &models.NativeUpdate{Status: "WARP_SPEED"},
	}

	payload, _, _, err := FromNative(tenantPhone, msg, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := assertSingleStatus(t, payload)
	if got.Status != models.StatusFailed {
		t.Fatalf("expected failed, got %s", got.Status)
	}
	if len(got.Errors) != 1 || got.Errors[0].Code != CodeUnknownStatus {
		t.Fatalf("expected synthetic unknown-status error, got %+v", got.Errors)
	}
}

func TestFromNativeReceipt(t *testing.T) {
	msg := models.NativeMessage{
		Key: models.NativeKey{
			RemoteJID: "5562981861234@s.whatsapp.net",
			ID:        "3EB0A9253D51F4BC0373",
			FromMe:    true,
		},
		Receipt: &models.NativeReceipt{ReadTimestamp: 1712000010},
	}

	payload, _, _, err := FromNative(tenantPhone, msg, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := assertSingleStatus(t, payload); got.Status != models.StatusRead {
		t.Fatalf("expected read, got %s", got.Status)
	}
}

func TestFromNativeReceiptForOwnMessageNamesCounterparty(t *testing.T) {
	msg := models.NativeMessage{
		Key: models.NativeKey{
			RemoteJID: "4917012345678@s.whatsapp.net",
			ID:        "3EB0A9253D51F4BC0380",
			FromMe:    true,
		},
		Receipt: &models.NativeReceipt{ReadTimestamp: 1712000011},
	}

	payload, _, _, err := FromNative(tenantPhone, msg, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := assertSingleStatus(t, payload)
	if got.RecipientID != "4917012345678" {
		t.Fatalf("expected chat counterparty as recipient, got %s", got.RecipientID)
	}
	if got.Status != models.StatusRead {
		t.Fatalf("expected read, got %s", got.Status)
	}
}

func TestFromNativeStatusUpdateNamesCounterparty(t *testing.T) {
	msg := models.NativeMessage{
		Key: models.NativeKey{
			RemoteJID: "4917012345678@s.whatsapp.net",
			ID:        "3EB0A9253D51F4BC0381",
			FromMe:    true,
		},
		Update: &models.NativeUpdate{Status: "READ"},
	}

	payload, _, _, err := FromNative(tenantPhone, msg, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := assertSingleStatus(t, payload); got.RecipientID != "4917012345678" {
		t.Fatalf("expected chat counterparty as recipient, got %s", got.RecipientID)
	}
}

func TestFromNativeEmptyStatusUpdateDropped(t *testing.T) {
	msg := models.NativeMessage{
		Key: models.NativeKey{
			RemoteJID: "5562981861234@s.whatsapp.net",
			ID:        "3EB0A9253D51F4BC0382",
			FromMe:    true,
		},
		Update: &models.NativeUpdate{},
	}

	payload, _, _, err := FromNative(tenantPhone, msg, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payload != nil {
		t.Fatalf("expected status-less update to map to nil, got %+v", payload)
	}
}

func TestFromNativeDocumentMimeInferredFromFilename(t *testing.T) {
	msg := models.NativeMessage{
		Key: models.NativeKey{
			RemoteJID: "5562981861234@s.whatsapp.net",
			ID:        "3EB0A9253D51F4BC0383",
		},
		Content: &models.NativeContent{Document: &models.NativeMedia{
			FileName: "report.pdf",
		}},
		MessageTimestamp: 1712000012,
	}

	payload, _, _, err := FromNative(tenantPhone, msg, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := assertSingleMessage(t, payload)
	if got.Document == nil || got.Document.MimeType != "application/pdf" {
		t.Fatalf("expected mime inferred from filename, got %+v", got.Document)
	}
}

func TestFromNativeAudioMimeParametersStripped(t *testing.T) {
	msg := models.NativeMessage{
		Key: models.NativeKey{
			RemoteJID: "5562981861234@s.whatsapp.net",
			ID:        "3EB0A9253D51F4BC0384",
		},
		Content: &models.NativeContent{Audio: &models.NativeMedia{
			Mimetype: "audio/ogg; codecs=opus",
			PTT:      true,
		}},
		MessageTimestamp: 1712000013,
	}

	payload, _, _, err := FromNative(tenantPhone, msg, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := assertSingleMessage(t, payload)
	if got.Audio == nil || got.Audio.MimeType != "audio/ogg" {
		t.Fatalf("expected codec parameters stripped, got %+v", got.Audio)
	}
	if !got.Audio.Voice {
		t.Fatalf("expected voice flag preserved")
	}
}

func TestFromNativeUnknownMimeFallsBackToBinary(t *testing.T) {
	msg := models.NativeMessage{
		Key: models.NativeKey{
			RemoteJID: "5562981861234@s.whatsapp.net",
			ID:        "3EB0A9253D51F4BC0385",
		},
		Content:          &models.NativeContent{Document: &models.NativeMedia{}},
		MessageTimestamp: 1712000014,
	}

	payload, _, _, err := FromNative(tenantPhone, msg, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := assertSingleMessage(t, payload)
	if got.Document == nil || got.Document.MimeType != "application/octet-stream" {
		t.Fatalf("expected binary fallback, got %+v", got.Document)
	}
}

func TestFromNativeRoundVideoNoteMapsAsVideo(t *testing.T) {
	msg := models.NativeMessage{
		Key: models.NativeKey{
			RemoteJID: "5562981861234@s.whatsapp.net",
			ID:        "3EB0A9253D51F4BC0386",
		},
		Content: &models.NativeContent{PTV: &models.NativeMedia{
			Mimetype: "video/mp4",
			Seconds:  7,
		}},
		MessageTimestamp: 1712000015,
	}

	payload, _, _, err := FromNative(tenantPhone, msg, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := assertSingleMessage(t, payload)
	if got.Type != "video" || got.Video == nil {
		t.Fatalf("expected video message, got %+v", got)
	}
	if got.Video.MimeType != "video/mp4" || got.Video.Seconds != 7 {
		t.Fatalf("unexpected video payload %+v", got.Video)
	}
}

func TestFromNativeRevokeStub(t *testing.T) {
	msg := models.NativeMessage{
		Key: models.NativeKey{
			RemoteJID: "5562981861234@s.whatsapp.net",
			ID:        "3EB0A9253D51F4BC0374",
		},
		MessageStubType: stubRevoked,
	}

	payload, _, _, err := FromNative(tenantPhone, msg, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := assertSingleStatus(t, payload); got.Status != models.StatusDeleted {
		t.Fatalf("expected deleted, got %s", got.Status)
	}
}

func TestFromNativeDecryptStubRaisesDecryptError(t *testing.T) {
	msg := models.NativeMessage{
		Key: models.NativeKey{
			RemoteJID: "5562981861234@s.whatsapp.net",
			ID:        "3EB0A9253D51F4BC0375",
		},
		MessageStubType:       2,
		MessageStubParameters: []string{"Invalid PreKey ID"},
	}

	payload, _, _, err := FromNative(tenantPhone, msg, Options{})
	if err == nil {
		t.Fatalf("expected decrypt error")
	}
	var decErr *DecryptError
	if !errors.As(err, &decErr) {
		t.Fatalf("expected DecryptError, got %v", err)
	}
	got := assertSingleMessage(t, payload)
	if len(got.Errors) != 1 {
		t.Fatalf("expected error entry on message, got %+v", got.Errors)
	}
}

func TestFromNativeIgnorableStubReturnsNil(t *testing.T) {
	msg := models.NativeMessage{
		Key: models.NativeKey{
			RemoteJID: "5562981861234@s.whatsapp.net",
			ID:        "3EB0A9253D51F4BC0376",
		},
		MessageStubType:       40,
		MessageStubParameters: []string{"group subject changed"},
	}

	payload, _, _, err := FromNative(tenantPhone, msg, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payload != nil {
		t.Fatalf("expected ignorable stub to map to nil, got %+v", payload)
	}
}

func TestFromNativeUnrecognizedContentReturnsNil(t *testing.T) {
	msg := models.NativeMessage{
		Key: models.NativeKey{
			RemoteJID: "5562981861234@s.whatsapp.net",
			ID:        "3EB0A9253D51F4BC0377",
		},
		Content: &models.NativeContent{},
	}

	payload, _, _, err := FromNative(tenantPhone, msg, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payload != nil {
		t.Fatalf("expected nil payload for empty content, got %+v", payload)
	}
}

func TestFromNativeProtocolRevoke(t *testing.T) {
	msg := models.NativeMessage{
		Key: models.NativeKey{
			RemoteJID: "5562981861234@s.whatsapp.net",
			ID:        "3EB0A9253D51F4BC0378",
		},
		Content: &models.NativeContent{Protocol: &models.NativeProtocol{
			Type: "REVOKE",
			Key:  &models.NativeKey{ID: "3EB0DELETED"},
		}},
	}

	payload, _, _, err := FromNative(tenantPhone, msg, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := assertSingleStatus(t, payload)
	if got.ID != "3EB0DELETED" || got.Status != models.StatusDeleted {
		t.Fatalf("expected deleted status for revoked id, got %+v", got)
	}
}
