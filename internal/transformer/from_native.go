package transformer

import (
	"strconv"
	"strings"

	"github.com/emersion/go-vcard"

	"github.com/example/whatsapp-gateway/internal/models"
)

// Options controls tenant-dependent mapping behaviour.
type Options struct {
	SendReactionAsReply bool
}

// FromNative maps one protocol event and the owning tenant phone onto a
// webhook envelope. It returns the envelope (nil when the event carries
// nothing to forward), the canonical sender phone and sender id, and an
// error only for decrypt failures, which still carry the partial payload.
func FromNative(phone string, msg models.NativeMessage, opts Options) (*models.WebhookPayload, string, string, error) {
	chatJID := CleanJID(firstJID(msg.Key.RemoteJID, msg.Key.RemoteJIDAlt))

	phoneJID, idJID := resolveParticipant(msg)
	senderPhone := WaIDFromJID(phoneJID)
	senderID := WaIDFromJID(idJID)
	// Statuses always name the chat counterparty, even for own-device
	// events; only the message sender flips to the tenant on FromMe.
	recipient := senderPhone
	if msg.Key.FromMe {
		senderPhone = keepDigits(phone)
		senderID = senderPhone
	}

	ts := strconv.FormatInt(msg.MessageTimestamp, 10)

	if msg.Receipt != nil {
		return statusPayload(phone, models.Status{
			ID:          msg.Key.ID,
			RecipientID: recipient,
			Status:      MapReceipt(*msg.Receipt),
			Timestamp:   ts,
		}), senderPhone, senderID, nil
	}

	if msg.Update != nil || (msg.Status != "" && msg.Content == nil) {
		st, ok := statusUpdate(msg, ts, recipient)
		if !ok {
			return nil, senderPhone, senderID, nil
		}
		return statusPayload(phone, st), senderPhone, senderID, nil
	}

	if msg.MessageStubType != 0 {
		return stubPayload(phone, msg, ts, recipient, senderPhone, senderID)
	}

	if msg.Content == nil {
		return nil, senderPhone, senderID, nil
	}

	content, _ := unwrap(msg.Content)
	if content == nil {
		return nil, senderPhone, senderID, nil
	}

	if content.Protocol != nil {
		if strings.EqualFold(content.Protocol.Type, "revoke") && content.Protocol.Key != nil {
			return statusPayload(phone, models.Status{
				ID:          content.Protocol.Key.ID,
				RecipientID: recipient,
				Status:      models.StatusDeleted,
				Timestamp:   ts,
			}), senderPhone, senderID, nil
		}
		return nil, senderPhone, senderID, nil
	}

	message := models.Message{
		From:      senderPhone,
		ID:        msg.Key.ID,
		Timestamp: ts,
	}
	if IsGroupJID(chatJID) {
		message.GroupID = jidUser(chatJID)
	}

	if !fillContent(&message, content, phone, msg, opts) {
		return nil, senderPhone, senderID, nil
	}

	name := msg.PushName
	if name == "" {
		name = msg.VerifiedBizName
	}
	payload := models.NewWebhookPayload(phone, models.ChangeValue{
		Messages: []models.Message{message},
		Contacts: []models.Contact{{
			Profile: models.Profile{Name: name},
			WaID:    senderPhone,
		}},
	})
	return &payload, senderPhone, senderID, nil
}

// resolveParticipant picks the canonical phone-bearing and id-bearing JIDs
// for the event sender. PN identities win over LID identities wherever both
// are present; the precedence order is part of the external contract.
func resolveParticipant(msg models.NativeMessage) (phoneJID, idJID string) {
	k := msg.Key
	phoneJID = firstJID(
		k.ParticipantPN,
		k.SenderPN,
		k.Participant,
		msg.Participant,
		k.RemoteJID,
		k.RemoteJIDAlt,
	)
	idJID = firstJID(
		k.SenderLID,
		k.ParticipantAlt,
		k.ParticipantLID,
		k.Participant,
		msg.Participant,
		k.RemoteJIDAlt,
		k.RemoteJID,
	)
	return CleanJID(phoneJID), CleanJID(idJID)
}

// unwrap peels wrapper kinds (edits, view-once, ephemeral, captioned
// documents) until a concrete content remains. Each step strictly reduces
// nesting, so the loop terminates by construction.
func unwrap(c *models.NativeContent) (*models.NativeContent, bool) {
	edited := false
	for c != nil {
		switch {
		case c.Edited != nil:
			edited = true
			c = c.Edited.Message
		case c.ViewOnce != nil:
			c = c.ViewOnce.Message
		case c.ViewOnceV2 != nil:
			c = c.ViewOnceV2.Message
		case c.Ephemeral != nil:
			c = c.Ephemeral.Message
		case c.DocWithCaption != nil:
			c = c.DocWithCaption.Message
		default:
			return c, edited
		}
	}
	return nil, edited
}

func fillContent(message *models.Message, c *models.NativeContent, phone string, msg models.NativeMessage, opts Options) bool {
	switch {
	case c.Conversation != "":
		message.Type = models.TypeText
		message.Text = &models.Text{Body: c.Conversation}
	case c.ExtendedText != nil:
		message.Type = models.TypeText
		message.Text = &models.Text{Body: c.ExtendedText.Text}
		applyContext(message, c.ExtendedText.ContextInfo)
	case c.Image != nil:
		message.Type = models.TypeImage
		message.Image = mediaPayload(phone, msg.Key.ID, c.Image)
		applyContext(message, c.Image.ContextInfo)
	case c.Video != nil:
		message.Type = models.TypeVideo
		message.Video = mediaPayload(phone, msg.Key.ID, c.Video)
		applyContext(message, c.Video.ContextInfo)
	case c.PTV != nil:
		// Round video notes surface as plain videos downstream.
		message.Type = models.TypeVideo
		message.Video = mediaPayload(phone, msg.Key.ID, c.PTV)
		applyContext(message, c.PTV.ContextInfo)
	case c.Audio != nil:
		message.Type = models.TypeAudio
		message.Audio = mediaPayload(phone, msg.Key.ID, c.Audio)
	case c.Document != nil:
		message.Type = models.TypeDocument
		message.Document = mediaPayload(phone, msg.Key.ID, c.Document)
		applyContext(message, c.Document.ContextInfo)
	case c.Sticker != nil:
		message.Type = models.TypeSticker
		message.Sticker = mediaPayload(phone, msg.Key.ID, c.Sticker)
	case c.Contact != nil:
		message.Type = models.TypeContacts
		message.Contacts = []models.SharedContact{parseVcard(*c.Contact)}
	case c.ContactsArray != nil:
		message.Type = models.TypeContacts
		for _, nc := range c.ContactsArray.Contacts {
			message.Contacts = append(message.Contacts, parseVcard(nc))
		}
	case c.Location != nil:
		message.Type = "location"
		message.Location = locationPayload(c.Location)
	case c.LiveLocation != nil:
		message.Type = "location"
		message.Location = locationPayload(c.LiveLocation)
	case c.Reaction != nil:
		refID := ""
		if c.Reaction.Key != nil {
			refID = c.Reaction.Key.ID
		}
		if opts.SendReactionAsReply {
			message.Type = models.TypeText
			message.Text = &models.Text{Body: c.Reaction.Text}
			message.Context = &models.MessageContext{MessageID: refID, ID: refID}
		} else {
			message.Type = "reaction"
			message.Reaction = &models.Reaction{MessageID: refID, Emoji: c.Reaction.Text}
		}
	case c.ListResponse != nil:
		message.Type = models.TypeText
		title := c.ListResponse.SelectedRowTitle
		if title == "" {
			title = c.ListResponse.Title
		}
		message.Text = &models.Text{Body: title}
	case c.ButtonsResponse != nil:
		message.Type = models.TypeText
		message.Text = &models.Text{Body: c.ButtonsResponse.SelectedDisplayText}
	case c.TemplateReply != nil:
		message.Type = models.TypeText
		message.Text = &models.Text{Body: c.TemplateReply.SelectedDisplayText}
	default:
		return false
	}
	return true
}

func applyContext(message *models.Message, info *models.NativeContextInfo) {
	if info == nil {
		return
	}
	if info.StanzaID != "" {
		message.Context = &models.MessageContext{
			MessageID: info.StanzaID,
			ID:        info.StanzaID,
			From:      WaIDFromJID(info.Participant),
		}
	}
	if ad := info.ExternalAdReply; ad != nil {
		message.Referral = &models.Referral{
			SourceURL:    ad.SourceURL,
			SourceID:     ad.SourceID,
			SourceType:   ad.SourceType,
			Headline:     ad.Title,
			Body:         ad.Body,
			MediaType:    ad.MediaType,
			ImageURL:     ad.MediaURL,
			ThumbnailURL: ad.ThumbnailURL,
		}
	}
}

func mediaPayload(phone, id string, m *models.NativeMedia) *models.Media {
	mediaID := keepDigits(phone) + "/" + id
	filename := m.FileName
	if filename == "" {
		filename = FilenameForMime(id, m.Mimetype)
	}
	mimeType := byExtension(m.FileName)
	if mimeType == "" {
		mimeType = m.Mimetype
	}
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	if mimeType == "" {
		mimeType = mimeBinary
	}
	return &models.Media{
		ID:        mediaID,
		Caption:   m.Caption,
		Filename:  filename,
		MimeType:  mimeType,
		SHA256:    m.FileSHA256,
		EncSHA256: m.FileEncSHA256,
		MediaKey:  m.MediaKey,
		Voice:     m.PTT,
		Seconds:   m.Seconds,
	}
}

func locationPayload(l *models.NativeLocation) *models.Location {
	return &models.Location{
		Latitude:  l.DegreesLatitude,
		Longitude: l.DegreesLongitude,
		Name:      l.Name,
		Address:   l.Address,
		URL:       l.URL,
	}
}

func parseVcard(nc models.NativeContact) models.SharedContact {
	out := models.SharedContact{
		Name: models.ContactName{FormattedName: nc.DisplayName},
	}
	dec := vcard.NewDecoder(strings.NewReader(nc.Vcard))
	card, err := dec.Decode()
	if err != nil {
		return out
	}
	if fn := card.PreferredValue(vcard.FieldFormattedName); fn != "" {
		out.Name.FormattedName = fn
	}
	for _, tel := range card.Values(vcard.FieldTelephone) {
		tel = strings.TrimSpace(tel)
		if tel != "" {
			out.Phones = append(out.Phones, models.ContactPhone{Phone: tel})
		}
	}
	return out
}

// statusUpdate maps an update event onto a status entry. Updates that carry
// no status at all are dropped rather than guessed at.
func statusUpdate(msg models.NativeMessage, ts, recipient string) (models.Status, bool) {
	st := models.Status{
		ID:          msg.Key.ID,
		RecipientID: recipient,
		Timestamp:   ts,
	}
	u := msg.Update
	switch {
	case u != nil && u.MessageStubType == stubRevoked:
		st.Status = models.StatusDeleted
	case u != nil && u.Starred != nil && *u.Starred:
		st.Status = models.StatusRead
	default:
		raw := msg.Status
		if u != nil && u.Status != "" {
			raw = u.Status
		}
		if raw == "" {
			return models.Status{}, false
		}
		status, detail := MapStatus(raw)
		st.Status = status
		if detail != nil {
			st.Errors = append(st.Errors, *detail)
		}
	}
	return st, true
}

func stubPayload(phone string, msg models.NativeMessage, ts, recipient, senderPhone, senderID string) (*models.WebhookPayload, string, string, error) {
	if msg.MessageStubType == stubRevoked {
		return statusPayload(phone, models.Status{
			ID:          msg.Key.ID,
			RecipientID: recipient,
			Status:      models.StatusDeleted,
			Timestamp:   ts,
		}), senderPhone, senderID, nil
	}
	if !IsDecryptStub(msg.MessageStubParameters) {
		return nil, senderPhone, senderID, nil
	}

	title := "message decryption failed"
	if len(msg.MessageStubParameters) > 0 {
		title = msg.MessageStubParameters[0]
	}
	payload := models.NewWebhookPayload(phone, models.ChangeValue{
		Messages: []models.Message{{
			From:      senderPhone,
			ID:        msg.Key.ID,
			Timestamp: ts,
			Type:      models.TypeText,
			Text:      &models.Text{Body: "Failed to decrypt message, please open it on your phone."},
			Errors: []models.ErrorDetail{{
				Code:  CodeUnknownStatus,
				Title: title,
			}},
		}},
		Contacts: []models.Contact{{
			Profile: models.Profile{Name: msg.PushName},
			WaID:    senderPhone,
		}},
	})
	return &payload, senderPhone, senderID, &DecryptError{Payload: payload}
}

func statusPayload(phone string, st models.Status) *models.WebhookPayload {
	payload := models.NewWebhookPayload(phone, models.ChangeValue{
		Statuses: []models.Status{st},
	})
	return &payload
}

func firstJID(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func jidUser(jid string) string {
	if i := strings.Index(jid, "@"); i >= 0 {
		return jid[:i]
	}
	return jid
}
