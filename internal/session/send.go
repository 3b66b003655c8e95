package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/example/whatsapp-gateway/internal/metrics"
	"github.com/example/whatsapp-gateway/internal/models"
	"github.com/example/whatsapp-gateway/internal/store"
	"github.com/example/whatsapp-gateway/internal/transformer"
	"github.com/example/whatsapp-gateway/internal/transport"
)

const mediaUploadFailure = "media upload failed on all hosts"

// Send runs the outbound pipeline for one request: status updates resolve
// stored keys, content sends build native content, throttle first contacts,
// and classify failures into webhook-shaped responses. Unclassified errors
// propagate unchanged.
func (s *Session) Send(ctx context.Context, req models.SendRequest) (models.SendResponse, error) {
	if req.Status != "" {
		return s.sendStatus(ctx, req)
	}
	return s.sendContent(ctx, req)
}

// sendStatus applies read and deleted transitions through the transport and
// records every other status directly. Keys with a grouping separator are
// not actionable at protocol level and are acknowledged without action.
func (s *Session) sendStatus(ctx context.Context, req models.SendRequest) (models.SendResponse, error) {
	switch req.Status {
	case models.StatusRead, models.StatusDeleted:
		key, err := s.resolveKey(ctx, req.MessageID)
		if err != nil {
			s.logger.Warn().Err(err).Str("message_id", req.MessageID).Str("status", req.Status).Msg("no stored key for status update")
			return okSuccess(), nil
		}
		if strings.Contains(key.ID, "-") {
			s.logger.Debug().Str("message_id", key.ID).Msg("grouped id skipped for status update")
			return okSuccess(), nil
		}

		client, err := s.clientFor()
		if err != nil {
			return s.classified(ctx, req, err)
		}
		if req.Status == models.StatusRead {
			err = client.Read(ctx, *key)
		} else {
			err = client.Delete(ctx, *key)
		}
		if err != nil {
			return s.classified(ctx, req, err)
		}
		if err := s.stores.Data.SetMessageStatus(ctx, s.phone, req.MessageID, req.Status); err != nil {
			s.logger.Warn().Err(err).Msg("failed to record message status")
		}
		return okSuccess(), nil

	default:
		if err := s.stores.Data.SetMessageStatus(ctx, s.phone, req.MessageID, req.Status); err != nil {
			s.logger.Warn().Err(err).Msg("failed to record message status")
		}
		return okSuccess(), nil
	}
}

func (s *Session) sendContent(ctx context.Context, req models.SendRequest) (models.SendResponse, error) {
	content, err := transformer.ToNative(req)
	if err != nil {
		if errors.Is(err, transformer.ErrUnknownMessageType) || errors.Is(err, transformer.ErrBindTemplate) {
			return s.classified(ctx, req, transformer.NewSendError(transformer.CodeGeneric, err.Error()))
		}
		return models.SendResponse{}, err
	}

	opts := models.SendOptions{
		TTL:       req.TTL,
		Composing: s.tenant.Composing,
	}
	if req.Context != nil {
		opts.Quoted = s.resolveQuote(ctx, req.Context)
	}

	destination := transformer.PhoneFromJID(req.To)
	if s.throttle.FirstContact(destination) {
		s.logger.Debug().Str("to", destination).Msg("first contact, delaying send")
		if err := s.sleep(ctx, s.cfg.ThrottleDelay); err != nil {
			return models.SendResponse{}, err
		}
	}

	client, err := s.clientFor()
	if err != nil {
		return s.classified(ctx, req, err)
	}

	result, err := client.Send(ctx, destination, content, opts)
	if err != nil {
		return s.classifySendFailure(ctx, req, content, err)
	}

	s.recordOutbound(ctx, req, result)
	go s.enrichDestination(context.WithoutCancel(ctx), destination)

	return models.SendResponse{Ok: &models.OkPayload{
		MessagingProduct: "whatsapp",
		Contacts:         []models.WaContact{{WaID: transformer.WaIDFromJID(req.To)}},
		Messages:         []models.MessageID{{ID: result.Key.ID}},
	}}, nil
}

// resolveQuote finds the native message a reply references. Quoting is best
// effort; a miss returns nil and the send proceeds unquoted.
func (s *Session) resolveQuote(ctx context.Context, msgCtx *models.MessageContext) *models.NativeMessage {
	id := msgCtx.MessageID
	if id == "" {
		id = msgCtx.ID
	}
	if id == "" {
		return nil
	}
	if msg, err := s.stores.Data.GetMessage(ctx, s.phone, id); err == nil {
		return msg
	}
	alias, err := s.stores.Data.GetIDByAlias(ctx, s.phone, id)
	if err != nil {
		return nil
	}
	if msg, err := s.stores.Data.GetMessage(ctx, s.phone, alias); err == nil {
		return msg
	}
	if key, err := s.stores.Data.GetKey(ctx, s.phone, alias); err == nil {
		return &models.NativeMessage{Key: *key}
	}
	return nil
}

// resolveKey finds the stored protocol key for an external message id,
// falling back through the alias table.
func (s *Session) resolveKey(ctx context.Context, id string) (*models.NativeKey, error) {
	key, err := s.stores.Data.GetKey(ctx, s.phone, id)
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	alias, err := s.stores.Data.GetIDByAlias(ctx, s.phone, id)
	if err != nil {
		return nil, err
	}
	return s.stores.Data.GetKey(ctx, s.phone, alias)
}

// recordOutbound stores the protocol key and the id alias of a confirmed
// send so later status updates and quotes can find it.
func (s *Session) recordOutbound(ctx context.Context, req models.SendRequest, result *models.NativeSendResult) {
	if result == nil || result.Key.ID == "" {
		return
	}
	if err := s.stores.Data.SetKey(ctx, s.phone, result.Key.ID, result.Key); err != nil {
		s.logger.Warn().Err(err).Msg("failed to store outbound key")
	}
	if req.MessageID != "" && req.MessageID != result.Key.ID {
		if err := s.stores.Data.SetIDAlias(ctx, s.phone, req.MessageID, result.Key.ID); err != nil {
			s.logger.Warn().Err(err).Msg("failed to store id alias")
		}
	}
	if err := s.stores.Data.SetMessageStatus(ctx, s.phone, result.Key.ID, models.StatusSent); err != nil {
		s.logger.Warn().Err(err).Msg("failed to record sent status")
	}
}

// classifySendFailure converts transport failures into structured responses.
// The media-upload failure is re-diagnosed with a link probe; auth codes
// force a close-and-reconnect before the response is returned. Anything
// unrecognized propagates unchanged.
func (s *Session) classifySendFailure(ctx context.Context, req models.SendRequest, content *models.NativeSend, err error) (models.SendResponse, error) {
	if strings.Contains(strings.ToLower(err.Error()), mediaUploadFailure) && content != nil && content.Media != nil {
		if !s.probeMediaLink(ctx, content.Media.URL) {
			return s.classified(ctx, req, transformer.NewSendError(transformer.CodeInvalidLink, "The media link is not reachable"))
		}
	}

	var sendErr *transformer.SendError
	if errors.As(err, &sendErr) {
		return s.classified(ctx, req, sendErr)
	}
	if errors.Is(err, transport.ErrNotConnected) || errors.Is(err, transport.ErrReloadedSession) {
		return s.classified(ctx, req, err)
	}
	return models.SendResponse{}, err
}

// classified renders a classified error as a webhook-shaped failure response
// and runs its side effects: an in-session failure notice always, and a
// forced close-and-reconnect for authentication codes.
func (s *Session) classified(ctx context.Context, req models.SendRequest, err error) (models.SendResponse, error) {
	sendErr := asSendError(err)
	metrics.SendFailures.WithLabelValues(strconv.Itoa(sendErr.Code)).Inc()
	s.notify(ctx, "warn", fmt.Sprintf("Send to %s failed: %s", req.To, sendErr.Title))

	if sendErr.IsAuthCode() {
		s.logger.Warn().Int("code", sendErr.Code).Msg("auth failure, forcing session reload")
		s.Disconnect(ctx)
		if s.onDown != nil {
			s.onDown("auth failure", 1)
		}
	}

	messageID := req.MessageID
	if messageID == "" {
		messageID = uuid.NewString()
	}
	timestamp := fmt.Sprintf("%d", s.now().Unix())
	return transformer.FailureResponse(s.phone, messageID, timestamp, sendErr.Code, sendErr.Title), nil
}

func asSendError(err error) *transformer.SendError {
	var sendErr *transformer.SendError
	if errors.As(err, &sendErr) {
		return sendErr
	}
	if errors.Is(err, transport.ErrNotConnected) {
		// Not an auth failure: the connect attempt is still in flight and
		// must not be torn down, the caller just retries.
		return transformer.NewSendError(transformer.CodeReloaded, "The session is not online yet, retry the request")
	}
	if errors.Is(err, transport.ErrReloadedSession) {
		return transformer.NewSendError(transformer.CodeReloaded, "The session was reloaded, retry the request")
	}
	return transformer.NewSendError(transformer.CodeGeneric, err.Error())
}

// probeMediaLink issues a lightweight existence check against the media link.
func (s *Session) probeMediaLink(ctx context.Context, link string) bool {
	if link == "" {
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, link, nil)
	if err != nil {
		return false
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode <= 299
}

// enrichDestination fetches chat metadata after a successful send. Best
// effort: every failure is logged and dropped.
func (s *Session) enrichDestination(ctx context.Context, destination string) {
	client, err := s.clientFor()
	if err != nil {
		return
	}
	if transformer.IsGroupJID(destination) {
		meta, err := client.GroupMetadata(ctx, destination)
		if err != nil {
			s.logger.Debug().Err(err).Str("to", destination).Msg("group metadata fetch failed")
			return
		}
		s.logger.Debug().Str("to", destination).Str("subject", meta.Subject).Int("participants", len(meta.Participants)).Msg("group metadata fetched")
	}
	url, err := client.ProfilePictureURL(ctx, destination)
	if err != nil {
		s.logger.Debug().Err(err).Str("to", destination).Msg("picture fetch failed")
		return
	}
	if url != "" {
		s.logger.Debug().Str("to", destination).Msg("profile picture fetched")
	}
}

func okSuccess() models.SendResponse {
	return models.SendResponse{Ok: &models.OkPayload{Success: true}}
}
