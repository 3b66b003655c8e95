// Package meow implements the native protocol transport on top of
// go.mau.fi/whatsmeow. One Client wraps one device session; pairing state
// lives in a shared sqlstore container keyed by phone number.
package meow

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"time"

	qrCode "github.com/skip2/go-qrcode"
	"github.com/rs/zerolog"
	"google.golang.org/protobuf/proto"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"

	"github.com/example/whatsapp-gateway/internal/config"
	"github.com/example/whatsapp-gateway/internal/models"
	"github.com/example/whatsapp-gateway/internal/transformer"
	"github.com/example/whatsapp-gateway/internal/transport"
)

// Container wraps the shared whatsmeow device store.
type Container struct {
	store     *sqlstore.Container
	http      *http.Client
	logger    zerolog.Logger
	qrTimeout time.Duration
}

// NewContainer opens the device store backing all native sessions.
func NewContainer(ctx context.Context, driver, dsn string, qrTimeout time.Duration, logger zerolog.Logger) (*Container, error) {
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	datastore, err := sqlstore.New(ctx, driver, dsn, nil)
	if err != nil {
		return nil, fmt.Errorf("meow: open device store: %w", err)
	}
	if qrTimeout <= 0 {
		qrTimeout = time.Minute
	}
	return &Container{
		store:     datastore,
		http:      &http.Client{Timeout: 60 * time.Second},
		logger:    logger.With().Str("component", "meow-transport").Logger(),
		qrTimeout: qrTimeout,
	}, nil
}

// Factory returns a transport.Factory building native clients from this
// container.
func (c *Container) Factory() transport.Factory {
	return func(ctx context.Context, tenant config.Tenant, callbacks transport.Callbacks) (transport.Client, error) {
		device, err := c.deviceFor(ctx, tenant.Phone)
		if err != nil {
			return nil, err
		}
		cli := whatsmeow.NewClient(device, nil)
		cli.EnableAutoReconnect = true
		cli.AutoTrustIdentity = true

		client := &Client{
			cli:       cli,
			http:      c.http,
			tenant:    tenant,
			callbacks: callbacks,
			qrTimeout: c.qrTimeout,
			logger:    c.logger.With().Str("phone", tenant.Phone).Logger(),
		}
		cli.AddEventHandler(client.handleEvent)
		return client, nil
	}
}

// deviceFor finds the paired device whose JID user matches the phone, or
// creates a fresh one that will pair through the QR flow.
func (c *Container) deviceFor(ctx context.Context, phone string) (*store.Device, error) {
	digits := transformer.WaIDFromJID(phone)
	devices, err := c.store.GetAllDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("meow: list devices: %w", err)
	}
	for _, device := range devices {
		if device.ID != nil && device.ID.User == digits {
			return device, nil
		}
	}
	return c.store.NewDevice(), nil
}

// Client is the native protocol transport for one tenant.
type Client struct {
	cli       *whatsmeow.Client
	http      *http.Client
	tenant    config.Tenant
	callbacks transport.Callbacks
	qrTimeout time.Duration
	logger    zerolog.Logger
}

// Connect opens the socket. Unpaired devices start the QR flow; each issued
// code is reported through OnQRCode and the session stays in connecting
// until the network confirms the login.
func (c *Client) Connect(ctx context.Context) error {
	if c.cli.Store.ID == nil {
		qrChan, err := c.cli.GetQRChannel(ctx)
		if err != nil {
			return fmt.Errorf("meow: qr channel: %w", err)
		}
		if err := c.cli.Connect(); err != nil {
			return fmt.Errorf("meow: connect: %w", err)
		}
		go c.consumeQR(ctx, qrChan)
		return nil
	}
	if err := c.cli.Connect(); err != nil {
		return fmt.Errorf("meow: connect: %w", err)
	}
	return nil
}

func (c *Client) consumeQR(ctx context.Context, qrChan <-chan whatsmeow.QRChannelItem) {
	attempt := 0
	timeout := time.NewTimer(c.qrTimeout)
	defer timeout.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timeout.C:
			c.logger.Warn().Int("attempts", attempt).Msg("qr pairing timed out")
			if c.callbacks.OnDisconnected != nil {
				c.callbacks.OnDisconnected("qr pairing timed out")
			}
			return
		case item, ok := <-qrChan:
			if !ok {
				return
			}
			switch item.Event {
			case "code":
				attempt++
				png, err := qrCode.Encode(item.Code, qrCode.Medium, 256)
				if err != nil {
					c.logger.Error().Err(err).Msg("failed to render qr code")
					continue
				}
				if c.callbacks.OnQRCode != nil {
					c.callbacks.OnQRCode(ctx, attempt, item.Code, png)
				}
			case whatsmeow.QRChannelSuccess.Event:
				c.logger.Info().Int("attempts", attempt).Msg("qr pairing succeeded")
				return
			default:
				c.logger.Warn().Str("event", item.Event).Msg("qr channel closed")
				if c.callbacks.OnDisconnected != nil {
					c.callbacks.OnDisconnected("qr channel " + item.Event)
				}
				return
			}
		}
	}
}

// Send uploads media when needed, assembles the wire message and sends it.
func (c *Client) Send(ctx context.Context, to string, content *models.NativeSend, opts models.SendOptions) (*models.NativeSendResult, error) {
	jid, err := c.destinationJID(ctx, to)
	if err != nil {
		return nil, err
	}

	message, err := c.buildMessage(ctx, content, opts)
	if err != nil {
		return nil, err
	}

	if opts.TTL > 0 {
		if err := c.cli.SetDisappearingTimer(ctx, jid, time.Duration(opts.TTL)*time.Second, time.Now()); err != nil {
			c.logger.Warn().Err(err).Msg("failed to set disappearing timer")
		}
	}
	if opts.Composing {
		if err := c.cli.SendChatPresence(ctx, jid, types.ChatPresenceComposing, types.ChatPresenceMediaText); err != nil {
			c.logger.Debug().Err(err).Msg("failed to send composing presence")
		}
		defer func() {
			_ = c.cli.SendChatPresence(ctx, jid, types.ChatPresencePaused, types.ChatPresenceMediaText)
		}()
	}

	extra := whatsmeow.SendRequestExtra{ID: c.cli.GenerateMessageID()}
	resp, err := c.cli.SendMessage(ctx, jid, message, extra)
	if err != nil {
		return nil, err
	}

	return &models.NativeSendResult{
		Key: models.NativeKey{
			RemoteJID: jid.String(),
			FromMe:    true,
			ID:        extra.ID,
		},
		Timestamp: resp.Timestamp.Unix(),
	}, nil
}

// Read marks the referenced message as read in its chat.
func (c *Client) Read(ctx context.Context, key models.NativeKey) error {
	chat, err := types.ParseJID(key.RemoteJID)
	if err != nil {
		return fmt.Errorf("meow: parse chat jid: %w", err)
	}
	sender := chat
	if key.Participant != "" {
		if p, err := types.ParseJID(key.Participant); err == nil {
			sender = p
		}
	}
	return c.cli.MarkRead(ctx, []types.MessageID{key.ID}, time.Now(), chat, sender)
}

// Delete revokes the referenced message for everyone.
func (c *Client) Delete(ctx context.Context, key models.NativeKey) error {
	chat, err := types.ParseJID(key.RemoteJID)
	if err != nil {
		return fmt.Errorf("meow: parse chat jid: %w", err)
	}
	_, err = c.cli.SendMessage(ctx, chat, c.cli.BuildRevoke(chat, types.EmptyJID, key.ID))
	return err
}

// RejectCall is not exposed by the underlying library; the session layer
// still answers with the configured rejection text.
func (c *Client) RejectCall(_ context.Context, _, _ string) error {
	return transport.ErrNotSupported
}

// Exists verifies a destination is registered on the network.
func (c *Client) Exists(ctx context.Context, phone string) (models.Exists, error) {
	digits := transformer.WaIDFromJID(phone)
	out := models.Exists{Phone: phone}
	infos, err := c.cli.IsOnWhatsApp(ctx, []string{"+" + digits})
	if err != nil {
		return out, err
	}
	if len(infos) == 0 || !infos[0].IsIn {
		return out, nil
	}
	out.Valid = true
	out.JID = infos[0].JID.String()
	return out, nil
}

// ProfilePictureURL fetches the preview picture of a contact or group.
func (c *Client) ProfilePictureURL(ctx context.Context, jid string) (string, error) {
	target, err := types.ParseJID(transformer.ToJID(jid))
	if err != nil {
		return "", fmt.Errorf("meow: parse jid: %w", err)
	}
	info, err := c.cli.GetProfilePictureInfo(ctx, target, &whatsmeow.GetProfilePictureParams{Preview: true})
	if err != nil {
		return "", err
	}
	if info == nil {
		return "", nil
	}
	return info.URL, nil
}

// GroupMetadata fetches the subject and participant list of a group.
func (c *Client) GroupMetadata(ctx context.Context, jid string) (*transport.GroupMetadata, error) {
	target, err := types.ParseJID(transformer.ToJID(jid))
	if err != nil {
		return nil, fmt.Errorf("meow: parse group jid: %w", err)
	}
	info, err := c.cli.GetGroupInfo(ctx, target)
	if err != nil {
		return nil, err
	}
	meta := &transport.GroupMetadata{
		ID:      info.JID.String(),
		Subject: info.Name,
	}
	for _, p := range info.Participants {
		meta.Participants = append(meta.Participants, p.JID.String())
	}
	return meta, nil
}

// Logout invalidates the pairing and drops the socket.
func (c *Client) Logout(ctx context.Context) error {
	return c.cli.Logout(ctx)
}

// Close drops the socket without touching the pairing state.
func (c *Client) Close() error {
	c.cli.Disconnect()
	return nil
}

// destinationJID resolves the target, verifying personal destinations are
// registered so sends fail before reaching the wire.
func (c *Client) destinationJID(ctx context.Context, to string) (types.JID, error) {
	jid, err := types.ParseJID(transformer.ToJID(to))
	if err != nil {
		return types.EmptyJID, fmt.Errorf("meow: parse destination: %w", err)
	}
	if jid.Server != types.GroupServer {
		exists, err := c.Exists(ctx, to)
		if err == nil && !exists.Valid {
			return types.EmptyJID, transformer.NewSendError(transformer.CodeInvalidLink, "The destination number is not on the network")
		}
	}
	return jid, nil
}

func (c *Client) buildMessage(ctx context.Context, content *models.NativeSend, opts models.SendOptions) (*waE2E.Message, error) {
	if content == nil {
		return nil, fmt.Errorf("meow: content is required")
	}
	contextInfo := quotedContext(opts.Quoted)

	switch {
	case content.Media != nil:
		return c.buildMediaMessage(ctx, content.Media, contextInfo)
	case content.Vcards != nil:
		return buildContactsMessage(content.Vcards), nil
	case content.Location != nil:
		return &waE2E.Message{LocationMessage: &waE2E.LocationMessage{
			DegreesLatitude:  proto.Float64(content.Location.Latitude),
			DegreesLongitude: proto.Float64(content.Location.Longitude),
			Name:             proto.String(content.Location.Name),
			Address:          proto.String(content.Location.Address),
		}}, nil
	case content.List != nil:
		return buildListMessage(content.List), nil
	case content.Template != nil:
		return textMessage(content.Template.Text, contextInfo), nil
	default:
		return textMessage(content.Text, contextInfo), nil
	}
}

func textMessage(text string, contextInfo *waE2E.ContextInfo) *waE2E.Message {
	if contextInfo == nil {
		return &waE2E.Message{Conversation: proto.String(text)}
	}
	return &waE2E.Message{ExtendedTextMessage: &waE2E.ExtendedTextMessage{
		Text:        proto.String(text),
		ContextInfo: contextInfo,
	}}
}

func quotedContext(quoted *models.NativeMessage) *waE2E.ContextInfo {
	if quoted == nil || quoted.Key.ID == "" {
		return nil
	}
	info := &waE2E.ContextInfo{
		StanzaID: proto.String(quoted.Key.ID),
	}
	if quoted.Key.Participant != "" {
		info.Participant = proto.String(quoted.Key.Participant)
	} else if quoted.Key.RemoteJID != "" {
		info.Participant = proto.String(quoted.Key.RemoteJID)
	}
	if quoted.Content != nil && quoted.Content.Conversation != "" {
		info.QuotedMessage = &waE2E.Message{Conversation: proto.String(quoted.Content.Conversation)}
	}
	return info
}

func (c *Client) buildMediaMessage(ctx context.Context, media *models.SendMedia, contextInfo *waE2E.ContextInfo) (*waE2E.Message, error) {
	data, err := c.fetchMedia(ctx, media.URL)
	if err != nil {
		return nil, err
	}

	switch media.Kind {
	case models.TypeImage:
		up, err := c.cli.Upload(ctx, data, whatsmeow.MediaImage)
		if err != nil {
			return nil, fmt.Errorf("meow: upload image: %w", err)
		}
		return &waE2E.Message{ImageMessage: &waE2E.ImageMessage{
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			Mimetype:      proto.String(media.MimeType),
			Caption:       proto.String(media.Caption),
			FileLength:    proto.Uint64(up.FileLength),
			FileSHA256:    up.FileSHA256,
			FileEncSHA256: up.FileEncSHA256,
			MediaKey:      up.MediaKey,
			ContextInfo:   contextInfo,
		}}, nil
	case models.TypeVideo:
		up, err := c.cli.Upload(ctx, data, whatsmeow.MediaVideo)
		if err != nil {
			return nil, fmt.Errorf("meow: upload video: %w", err)
		}
		return &waE2E.Message{VideoMessage: &waE2E.VideoMessage{
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			Mimetype:      proto.String(media.MimeType),
			Caption:       proto.String(media.Caption),
			FileLength:    proto.Uint64(up.FileLength),
			FileSHA256:    up.FileSHA256,
			FileEncSHA256: up.FileEncSHA256,
			MediaKey:      up.MediaKey,
			ContextInfo:   contextInfo,
		}}, nil
	case models.TypeAudio:
		up, err := c.cli.Upload(ctx, data, whatsmeow.MediaAudio)
		if err != nil {
			return nil, fmt.Errorf("meow: upload audio: %w", err)
		}
		return &waE2E.Message{AudioMessage: &waE2E.AudioMessage{
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			Mimetype:      proto.String(media.MimeType),
			PTT:           proto.Bool(media.Voice),
			FileLength:    proto.Uint64(up.FileLength),
			FileSHA256:    up.FileSHA256,
			FileEncSHA256: up.FileEncSHA256,
			MediaKey:      up.MediaKey,
			ContextInfo:   contextInfo,
		}}, nil
	case models.TypeSticker:
		up, err := c.cli.Upload(ctx, data, whatsmeow.MediaImage)
		if err != nil {
			return nil, fmt.Errorf("meow: upload sticker: %w", err)
		}
		return &waE2E.Message{StickerMessage: &waE2E.StickerMessage{
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			Mimetype:      proto.String(media.MimeType),
			FileLength:    proto.Uint64(up.FileLength),
			FileSHA256:    up.FileSHA256,
			FileEncSHA256: up.FileEncSHA256,
			MediaKey:      up.MediaKey,
			ContextInfo:   contextInfo,
		}}, nil
	case models.TypeDocument:
		up, err := c.cli.Upload(ctx, data, whatsmeow.MediaDocument)
		if err != nil {
			return nil, fmt.Errorf("meow: upload document: %w", err)
		}
		return &waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			Mimetype:      proto.String(media.MimeType),
			FileName:      proto.String(media.FileName),
			Caption:       proto.String(media.Caption),
			FileLength:    proto.Uint64(up.FileLength),
			FileSHA256:    up.FileSHA256,
			FileEncSHA256: up.FileEncSHA256,
			MediaKey:      up.MediaKey,
			ContextInfo:   contextInfo,
		}}, nil
	}
	return nil, fmt.Errorf("meow: unsupported media kind %s", media.Kind)
}

// fetchMedia downloads the media link before uploading it to the network.
// A failed download surfaces as an invalid-link send error.
func (c *Client) fetchMedia(ctx context.Context, link string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, transformer.NewSendError(transformer.CodeInvalidLink, "The media link is invalid")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, transformer.NewSendError(transformer.CodeInvalidLink, "The media link could not be fetched")
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, transformer.NewSendError(transformer.CodeInvalidLink, fmt.Sprintf("The media link returned status %d", resp.StatusCode))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transformer.NewSendError(transformer.CodeInvalidLink, "The media link could not be read")
	}
	return data, nil
}

func buildContactsMessage(vcards *models.SendVcards) *waE2E.Message {
	if len(vcards.Cards) == 1 {
		return &waE2E.Message{ContactMessage: &waE2E.ContactMessage{
			DisplayName: proto.String(vcards.DisplayName),
			Vcard:       proto.String(vcards.Cards[0]),
		}}
	}
	arr := &waE2E.ContactsArrayMessage{DisplayName: proto.String(vcards.DisplayName)}
	for _, card := range vcards.Cards {
		arr.Contacts = append(arr.Contacts, &waE2E.ContactMessage{
			DisplayName: proto.String(vcards.DisplayName),
			Vcard:       proto.String(card),
		})
	}
	return &waE2E.Message{ContactsArrayMessage: arr}
}

// buildListMessage renders a list wrapped as a message forwarded from self;
// the network rejects plain lists from regular accounts.
func buildListMessage(list *models.SendList) *waE2E.Message {
	msg := &waE2E.ListMessage{
		Title:       proto.String(list.Title),
		Description: proto.String(list.Body),
		FooterText:  proto.String(list.Footer),
		ButtonText:  proto.String(list.ButtonText),
		ListType:    waE2E.ListMessage_SINGLE_SELECT.Enum(),
		ContextInfo: &waE2E.ContextInfo{
			IsForwarded:     proto.Bool(true),
			ForwardingScore: proto.Uint32(1),
		},
	}
	for _, section := range list.Sections {
		rows := make([]*waE2E.ListMessage_Row, 0, len(section.Rows))
		for _, row := range section.Rows {
			rows = append(rows, &waE2E.ListMessage_Row{
				RowID:       proto.String(row.ID),
				Title:       proto.String(row.Title),
				Description: proto.String(row.Description),
			})
		}
		msg.Sections = append(msg.Sections, &waE2E.ListMessage_Section{
			Title: proto.String(section.Title),
			Rows:  rows,
		})
	}
	return &waE2E.Message{ListMessage: msg}
}
