package meow

import (
	"context"
	"encoding/base64"
	"fmt"

	"go.mau.fi/whatsmeow/proto/waCommon"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"github.com/example/whatsapp-gateway/internal/models"
)

// handleEvent normalizes protocol events into native message batches. History
// syncs are dropped here; replaying old conversations through the webhook
// would flood every tenant on each pairing.
func (c *Client) handleEvent(evt interface{}) {
	ctx := context.Background()
	switch e := evt.(type) {
	case *events.Connected:
		c.logger.Info().Msg("transport connected")
		if c.callbacks.OnConnected != nil {
			c.callbacks.OnConnected()
		}
	case *events.Disconnected:
		c.logger.Warn().Msg("transport disconnected")
		if c.callbacks.OnDisconnected != nil {
			c.callbacks.OnDisconnected("connection dropped")
		}
	case *events.StreamReplaced:
		c.logger.Warn().Msg("stream replaced by another session")
		c.cli.Disconnect()
		if c.callbacks.OnDisconnected != nil {
			c.callbacks.OnDisconnected("stream replaced")
		}
	case *events.LoggedOut:
		c.logger.Warn().Int("reason", int(e.Reason)).Msg("device logged out")
		if c.callbacks.OnLoggedOut != nil {
			c.callbacks.OnLoggedOut()
		}
	case *events.Message:
		c.deliverMessage(ctx, e)
	case *events.Receipt:
		c.deliverReceipt(ctx, e)
	case *events.CallOffer:
		if c.callbacks.OnCall != nil {
			c.callbacks.OnCall(ctx, e.CallID, e.From.String())
		}
	case *events.TemporaryBan:
		reason := fmt.Sprintf("%v", e.Code)
		c.logger.Error().Str("code", reason).Msg("account temporarily banned")
		if c.callbacks.OnNotify != nil {
			c.callbacks.OnNotify(ctx, "error", "Account temporarily banned: "+reason)
		}
	case *events.ConnectFailure:
		c.logger.Error().Int("reason", int(e.Reason)).Str("message", e.Message).Msg("connect failure")
		if c.callbacks.OnDisconnected != nil {
			c.callbacks.OnDisconnected("connect failure: " + e.Message)
		}
	}
}

func (c *Client) deliverMessage(ctx context.Context, e *events.Message) {
	if c.callbacks.OnEvents == nil {
		return
	}

	kind := models.EventMessage
	if e.Message != nil && e.Message.ProtocolMessage != nil &&
		e.Message.ProtocolMessage.GetType() == waE2E.ProtocolMessage_REVOKE {
		kind = models.EventDelete
	}

	msg := models.NativeMessage{
		Key:              messageKey(e.Info),
		Content:          convertContent(e.Message),
		PushName:         e.Info.PushName,
		MessageTimestamp: e.Info.Timestamp.Unix(),
	}
	if e.Info.VerifiedName != nil && e.Info.VerifiedName.Details != nil {
		msg.VerifiedBizName = e.Info.VerifiedName.Details.GetVerifiedName()
	}
	if e.UnavailableRequestID != "" && msg.Content == nil {
		// The network withheld the payload; surface it as a decrypt stub so
		// the transformer produces the open-on-phone notice.
		msg.MessageStubParameters = []string{"Message absent from node"}
	}
	c.callbacks.OnEvents(ctx, kind, []models.NativeMessage{msg})
}

func (c *Client) deliverReceipt(ctx context.Context, e *events.Receipt) {
	if c.callbacks.OnEvents == nil || len(e.MessageIDs) == 0 {
		return
	}

	receipt := &models.NativeReceipt{ReceiptTimestamp: e.Timestamp.Unix()}
	if e.Type == events.ReceiptTypeRead || e.Type == events.ReceiptTypeReadSelf || e.Type == events.ReceiptTypePlayed {
		receipt.ReadTimestamp = e.Timestamp.Unix()
	}

	msgs := make([]models.NativeMessage, 0, len(e.MessageIDs))
	for _, id := range e.MessageIDs {
		msgs = append(msgs, models.NativeMessage{
			Key: models.NativeKey{
				RemoteJID:   e.Chat.String(),
				ID:          id,
				Participant: e.Sender.String(),
				FromMe:      true,
			},
			Receipt:          receipt,
			MessageTimestamp: e.Timestamp.Unix(),
		})
	}
	c.callbacks.OnEvents(ctx, models.EventUpdate, msgs)
}

// messageKey carries both address forms of the sender so downstream identity
// resolution can prefer the phone number over the device alias.
func messageKey(info types.MessageInfo) models.NativeKey {
	key := models.NativeKey{
		RemoteJID: info.Chat.String(),
		FromMe:    info.IsFromMe,
		ID:        info.ID,
	}
	if info.Chat.Server == types.GroupServer || info.Chat.Server == types.BroadcastServer {
		key.Participant = info.Sender.String()
	}
	if info.Sender.Server == types.DefaultUserServer {
		key.SenderPN = info.Sender.String()
	}
	if info.SenderAlt.Server == types.DefaultUserServer {
		key.SenderPN = info.SenderAlt.String()
	}
	if info.Sender.Server == types.HiddenUserServer {
		key.SenderLID = info.Sender.String()
	}
	if info.SenderAlt.Server == types.HiddenUserServer {
		key.SenderLID = info.SenderAlt.String()
	}
	return key
}

// convertContent maps the wire payload union into the normalized content
// union the transformer consumes.
func convertContent(m *waE2E.Message) *models.NativeContent {
	if m == nil {
		return nil
	}
	out := &models.NativeContent{}
	switch {
	case m.Conversation != nil:
		out.Conversation = m.GetConversation()
	case m.ExtendedTextMessage != nil:
		out.ExtendedText = &models.NativeExtendedText{
			Text:        m.ExtendedTextMessage.GetText(),
			ContextInfo: convertContextInfo(m.ExtendedTextMessage.GetContextInfo()),
		}
	case m.ImageMessage != nil:
		out.Image = convertMedia(
			m.ImageMessage.GetURL(), m.ImageMessage.GetMimetype(), m.ImageMessage.GetCaption(), "",
			m.ImageMessage.GetFileSHA256(), m.ImageMessage.GetFileEncSHA256(), m.ImageMessage.GetMediaKey(),
			m.ImageMessage.GetFileLength(), 0, false, m.ImageMessage.GetContextInfo(),
		)
	case m.VideoMessage != nil:
		out.Video = convertMedia(
			m.VideoMessage.GetURL(), m.VideoMessage.GetMimetype(), m.VideoMessage.GetCaption(), "",
			m.VideoMessage.GetFileSHA256(), m.VideoMessage.GetFileEncSHA256(), m.VideoMessage.GetMediaKey(),
			m.VideoMessage.GetFileLength(), m.VideoMessage.GetSeconds(), false, m.VideoMessage.GetContextInfo(),
		)
	case m.PtvMessage != nil:
		out.PTV = convertMedia(
			m.PtvMessage.GetURL(), m.PtvMessage.GetMimetype(), m.PtvMessage.GetCaption(), "",
			m.PtvMessage.GetFileSHA256(), m.PtvMessage.GetFileEncSHA256(), m.PtvMessage.GetMediaKey(),
			m.PtvMessage.GetFileLength(), m.PtvMessage.GetSeconds(), false, m.PtvMessage.GetContextInfo(),
		)
	case m.AudioMessage != nil:
		out.Audio = convertMedia(
			m.AudioMessage.GetURL(), m.AudioMessage.GetMimetype(), "", "",
			m.AudioMessage.GetFileSHA256(), m.AudioMessage.GetFileEncSHA256(), m.AudioMessage.GetMediaKey(),
			m.AudioMessage.GetFileLength(), m.AudioMessage.GetSeconds(), m.AudioMessage.GetPTT(), m.AudioMessage.GetContextInfo(),
		)
	case m.DocumentMessage != nil:
		out.Document = convertMedia(
			m.DocumentMessage.GetURL(), m.DocumentMessage.GetMimetype(), m.DocumentMessage.GetCaption(), m.DocumentMessage.GetFileName(),
			m.DocumentMessage.GetFileSHA256(), m.DocumentMessage.GetFileEncSHA256(), m.DocumentMessage.GetMediaKey(),
			m.DocumentMessage.GetFileLength(), 0, false, m.DocumentMessage.GetContextInfo(),
		)
	case m.StickerMessage != nil:
		out.Sticker = convertMedia(
			m.StickerMessage.GetURL(), m.StickerMessage.GetMimetype(), "", "",
			m.StickerMessage.GetFileSHA256(), m.StickerMessage.GetFileEncSHA256(), m.StickerMessage.GetMediaKey(),
			m.StickerMessage.GetFileLength(), 0, false, m.StickerMessage.GetContextInfo(),
		)
	case m.ContactMessage != nil:
		out.Contact = &models.NativeContact{
			DisplayName: m.ContactMessage.GetDisplayName(),
			Vcard:       m.ContactMessage.GetVcard(),
		}
	case m.ContactsArrayMessage != nil:
		list := &models.NativeContactsList{DisplayName: m.ContactsArrayMessage.GetDisplayName()}
		for _, contact := range m.ContactsArrayMessage.GetContacts() {
			list.Contacts = append(list.Contacts, models.NativeContact{
				DisplayName: contact.GetDisplayName(),
				Vcard:       contact.GetVcard(),
			})
		}
		out.ContactsArray = list
	case m.LocationMessage != nil:
		out.Location = &models.NativeLocation{
			DegreesLatitude:  m.LocationMessage.GetDegreesLatitude(),
			DegreesLongitude: m.LocationMessage.GetDegreesLongitude(),
			Name:             m.LocationMessage.GetName(),
			Address:          m.LocationMessage.GetAddress(),
			URL:              m.LocationMessage.GetURL(),
		}
	case m.LiveLocationMessage != nil:
		out.LiveLocation = &models.NativeLocation{
			DegreesLatitude:  m.LiveLocationMessage.GetDegreesLatitude(),
			DegreesLongitude: m.LiveLocationMessage.GetDegreesLongitude(),
			Name:             m.LiveLocationMessage.GetCaption(),
		}
	case m.ReactionMessage != nil:
		out.Reaction = &models.NativeReaction{
			Key:  convertKey(m.ReactionMessage.GetKey()),
			Text: m.ReactionMessage.GetText(),
		}
	case m.ProtocolMessage != nil:
		proto := &models.NativeProtocol{Key: convertKey(m.ProtocolMessage.GetKey())}
		if m.ProtocolMessage.GetType() == waE2E.ProtocolMessage_REVOKE {
			proto.Type = "REVOKE"
		}
		out.Protocol = proto
	case m.EditedMessage != nil:
		out.Edited = &models.NativeWrapped{Message: convertContent(m.EditedMessage.GetMessage())}
	case m.ViewOnceMessage != nil:
		out.ViewOnce = &models.NativeWrapped{Message: convertContent(m.ViewOnceMessage.GetMessage())}
	case m.ViewOnceMessageV2 != nil:
		out.ViewOnceV2 = &models.NativeWrapped{Message: convertContent(m.ViewOnceMessageV2.GetMessage())}
	case m.EphemeralMessage != nil:
		out.Ephemeral = &models.NativeWrapped{Message: convertContent(m.EphemeralMessage.GetMessage())}
	case m.DocumentWithCaptionMessage != nil:
		out.DocWithCaption = &models.NativeWrapped{Message: convertContent(m.DocumentWithCaptionMessage.GetMessage())}
	case m.ListResponseMessage != nil:
		resp := &models.NativeListResponse{Title: m.ListResponseMessage.GetTitle()}
		if reply := m.ListResponseMessage.GetSingleSelectReply(); reply != nil {
			resp.SelectedRowID = reply.GetSelectedRowID()
		}
		out.ListResponse = resp
	case m.ButtonsResponseMessage != nil:
		out.ButtonsResponse = &models.NativeButtonsReply{
			SelectedButtonID:    m.ButtonsResponseMessage.GetSelectedButtonID(),
			SelectedDisplayText: m.ButtonsResponseMessage.GetSelectedDisplayText(),
		}
	case m.TemplateButtonReplyMessage != nil:
		out.TemplateReply = &models.NativeTemplateReply{
			SelectedID:          m.TemplateButtonReplyMessage.GetSelectedID(),
			SelectedDisplayText: m.TemplateButtonReplyMessage.GetSelectedDisplayText(),
		}
	default:
		return nil
	}
	return out
}

func convertMedia(url, mimetype, caption, filename string, sha, encSHA, mediaKey []byte, length uint64, seconds uint32, ptt bool, info *waE2E.ContextInfo) *models.NativeMedia {
	return &models.NativeMedia{
		URL:           url,
		Mimetype:      mimetype,
		Caption:       caption,
		FileName:      filename,
		FileSHA256:    base64.StdEncoding.EncodeToString(sha),
		FileEncSHA256: base64.StdEncoding.EncodeToString(encSHA),
		MediaKey:      base64.StdEncoding.EncodeToString(mediaKey),
		FileLength:    length,
		Seconds:       seconds,
		PTT:           ptt,
		ContextInfo:   convertContextInfo(info),
	}
}

func convertContextInfo(info *waE2E.ContextInfo) *models.NativeContextInfo {
	if info == nil {
		return nil
	}
	out := &models.NativeContextInfo{
		StanzaID:      info.GetStanzaID(),
		Participant:   info.GetParticipant(),
		QuotedMessage: convertContent(info.GetQuotedMessage()),
		Expiration:    info.GetExpiration(),
	}
	if ad := info.GetExternalAdReply(); ad != nil {
		out.ExternalAdReply = &models.NativeExternalAd{
			Title:        ad.GetTitle(),
			Body:         ad.GetBody(),
			SourceURL:    ad.GetSourceURL(),
			SourceID:     ad.GetSourceID(),
			SourceType:   ad.GetSourceType(),
			MediaType:    ad.GetMediaType().String(),
			ThumbnailURL: ad.GetThumbnailURL(),
			MediaURL:     ad.GetMediaURL(),
		}
	}
	return out
}

func convertKey(key *waCommon.MessageKey) *models.NativeKey {
	if key == nil {
		return nil
	}
	return &models.NativeKey{
		RemoteJID:   key.GetRemoteJID(),
		FromMe:      key.GetFromMe(),
		ID:          key.GetID(),
		Participant: key.GetParticipant(),
	}
}
