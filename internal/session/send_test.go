package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/whatsapp-gateway/internal/config"
	"github.com/example/whatsapp-gateway/internal/models"
	"github.com/example/whatsapp-gateway/internal/transformer"
)

func textRequest(to, body string) models.SendRequest {
	return models.SendRequest{
		Type: models.TypeText,
		To:   to,
		Text: &models.Text{Body: body},
	}
}

func TestFirstSendToNewDestinationDelayedOnce(t *testing.T) {
	env := newTestEnv(t, nil)
	s := env.online(t)

	if _, err := s.Send(context.Background(), textRequest("4917012345678", "one")); err != nil {
		t.Fatalf("first send failed: %v", err)
	}
	if _, err := s.Send(context.Background(), textRequest("4917012345678", "two")); err != nil {
		t.Fatalf("second send failed: %v", err)
	}

	env.sleepMu.Lock()
	delays := append([]time.Duration(nil), env.sleeps...)
	env.sleepMu.Unlock()
	if len(delays) != 1 {
		t.Fatalf("expected exactly one throttle delay, got %d", len(delays))
	}
	if delays[0] != 50*time.Millisecond {
		t.Fatalf("expected the configured delay, got %s", delays[0])
	}
}

func TestDistinctDestinationsEachThrottledOnce(t *testing.T) {
	env := newTestEnv(t, nil)
	s := env.online(t)

	for _, to := range []string{"4917012345678", "4915511112222", "4917012345678"} {
		if _, err := s.Send(context.Background(), textRequest(to, "hi")); err != nil {
			t.Fatalf("send to %s failed: %v", to, err)
		}
	}

	env.sleepMu.Lock()
	delays := len(env.sleeps)
	env.sleepMu.Unlock()
	if delays != 2 {
		t.Fatalf("expected two throttle delays for two destinations, got %d", delays)
	}
}

func TestReadStatusWithGroupedKeySkipsTransport(t *testing.T) {
	env := newTestEnv(t, nil)
	s := env.online(t)

	grouped := models.NativeKey{RemoteJID: "4917012345678@s.whatsapp.net", ID: "3EB0-9F1C-22"}
	if err := s.stores.Data.SetKey(context.Background(), testPhone, "ext-1", grouped); err != nil {
		t.Fatalf("failed to seed key: %v", err)
	}

	resp, err := s.Send(context.Background(), models.SendRequest{Status: models.StatusRead, MessageID: "ext-1"})
	if err != nil {
		t.Fatalf("status send failed: %v", err)
	}
	if resp.Ok == nil || !resp.Ok.Success {
		t.Fatalf("expected {ok:{success:true}}, got %+v", resp)
	}

	env.client.mu.Lock()
	reads := len(env.client.readCalls)
	env.client.mu.Unlock()
	if reads != 0 {
		t.Fatalf("expected no read action for grouped id, got %d", reads)
	}
}

func TestReadStatusInvokesTransportAndRecords(t *testing.T) {
	env := newTestEnv(t, nil)
	s := env.online(t)

	key := models.NativeKey{RemoteJID: "4917012345678@s.whatsapp.net", ID: "3EB09F1C22"}
	if err := s.stores.Data.SetKey(context.Background(), testPhone, "ext-2", key); err != nil {
		t.Fatalf("failed to seed key: %v", err)
	}

	resp, err := s.Send(context.Background(), models.SendRequest{Status: models.StatusRead, MessageID: "ext-2"})
	if err != nil {
		t.Fatalf("status send failed: %v", err)
	}
	if resp.Ok == nil || !resp.Ok.Success {
		t.Fatalf("expected success payload, got %+v", resp)
	}

	env.client.mu.Lock()
	reads := len(env.client.readCalls)
	env.client.mu.Unlock()
	if reads != 1 {
		t.Fatalf("expected one read action, got %d", reads)
	}

	status, err := s.stores.Data.GetMessageStatus(context.Background(), testPhone, "ext-2")
	if err != nil {
		t.Fatalf("expected recorded status: %v", err)
	}
	if status != models.StatusRead {
		t.Fatalf("expected read status recorded, got %s", status)
	}
}

func TestStatusUpdateResolvesAlias(t *testing.T) {
	env := newTestEnv(t, nil)
	s := env.online(t)

	key := models.NativeKey{RemoteJID: "4917012345678@s.whatsapp.net", ID: "WIREID1"}
	if err := s.stores.Data.SetKey(context.Background(), testPhone, "WIREID1", key); err != nil {
		t.Fatalf("failed to seed key: %v", err)
	}
	if err := s.stores.Data.SetIDAlias(context.Background(), testPhone, "external-9", "WIREID1"); err != nil {
		t.Fatalf("failed to seed alias: %v", err)
	}

	if _, err := s.Send(context.Background(), models.SendRequest{Status: models.StatusDeleted, MessageID: "external-9"}); err != nil {
		t.Fatalf("status send failed: %v", err)
	}

	env.client.mu.Lock()
	deletes := len(env.client.deleteCalls)
	env.client.mu.Unlock()
	if deletes != 1 {
		t.Fatalf("expected one delete action via alias, got %d", deletes)
	}
}

func TestClassifiedSendErrorYieldsWebhookShapedFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	s := env.online(t)
	env.client.sendErr = transformer.NewSendError(transformer.CodeMessageBlocked, "The message was blocked by the network")

	resp, err := s.Send(context.Background(), textRequest("4917012345678", "hi"))
	if err != nil {
		t.Fatalf("expected classified response, got error: %v", err)
	}
	if code := failureCode(t, resp); code != transformer.CodeMessageBlocked {
		t.Fatalf("expected code %d, got %d", transformer.CodeMessageBlocked, code)
	}
}

func TestUnclassifiedSendErrorPropagatesUnchanged(t *testing.T) {
	env := newTestEnv(t, nil)
	s := env.online(t)
	boom := errors.New("socket write failed mid-frame")
	env.client.sendErr = boom

	resp, err := s.Send(context.Background(), textRequest("4917012345678", "hi"))
	if !errors.Is(err, boom) {
		t.Fatalf("expected the original error, got %v", err)
	}
	if resp.Ok != nil || resp.Error != nil {
		t.Fatalf("expected empty response with propagated error, got %+v", resp)
	}
}

func TestUnknownMessageTypeIsClassified(t *testing.T) {
	env := newTestEnv(t, nil)
	s := env.online(t)

	resp, err := s.Send(context.Background(), models.SendRequest{Type: "carrier-pigeon", To: "4917012345678"})
	if err != nil {
		t.Fatalf("expected classified response, got error: %v", err)
	}
	if code := failureCode(t, resp); code != transformer.CodeGeneric {
		t.Fatalf("expected generic code %d, got %d", transformer.CodeGeneric, code)
	}
}

func TestSendWhileConnectingDoesNotTearDownConnect(t *testing.T) {
	env := newTestEnv(t, func(tn *config.Tenant) {
		tn.ConnectionType = config.ConnectionNative
	})
	s, err := env.registry.GetOrCreate(context.Background(), testPhone)
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	if err := s.Connect(context.Background(), 1); err != nil {
		t.Fatalf("failed to start connect: %v", err)
	}
	if s.State() != StateConnecting {
		t.Fatalf("expected connecting state before pairing completes, got %s", s.State())
	}

	resp, err := s.Send(context.Background(), textRequest("4917012345678", "hi"))
	if err != nil {
		t.Fatalf("expected classified response, got error: %v", err)
	}
	if code := failureCode(t, resp); code != transformer.CodeReloaded {
		t.Fatalf("expected retryable code %d, got %d", transformer.CodeReloaded, code)
	}
	if s.State() != StateConnecting {
		t.Fatalf("expected connect attempt left running, got %s", s.State())
	}
}

func TestAuthCodeForcesSessionReload(t *testing.T) {
	env := newTestEnv(t, nil)
	s := env.online(t)
	env.client.sendErr = transformer.NewSendError(transformer.CodeAuthInvalid, "The pairing is no longer valid")

	resp, err := s.Send(context.Background(), textRequest("4917012345678", "hi"))
	if err != nil {
		t.Fatalf("expected classified response, got error: %v", err)
	}
	if code := failureCode(t, resp); code != transformer.CodeAuthInvalid {
		t.Fatalf("expected code %d, got %d", transformer.CodeAuthInvalid, code)
	}
	if s.State() != StateDisconnected {
		t.Fatalf("expected forced disconnect after auth failure, got %s", s.State())
	}
}

func TestSuccessfulSendRecordsKeyAndAlias(t *testing.T) {
	env := newTestEnv(t, nil)
	s := env.online(t)

	req := textRequest("4917012345678", "hello")
	req.MessageID = "external-1"
	resp, err := s.Send(context.Background(), req)
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if resp.Ok == nil || len(resp.Ok.Messages) != 1 {
		t.Fatalf("expected ok payload with one message id, got %+v", resp)
	}
	wireID := resp.Ok.Messages[0].ID

	if _, err := s.stores.Data.GetKey(context.Background(), testPhone, wireID); err != nil {
		t.Fatalf("expected stored wire key: %v", err)
	}
	alias, err := s.stores.Data.GetIDByAlias(context.Background(), testPhone, "external-1")
	if err != nil {
		t.Fatalf("expected alias lookup: %v", err)
	}
	if alias != wireID {
		t.Fatalf("expected alias to resolve to %s, got %s", wireID, alias)
	}
}

func TestQuoteResolutionIsBestEffort(t *testing.T) {
	env := newTestEnv(t, nil)
	s := env.online(t)

	req := textRequest("4917012345678", "reply")
	req.Context = &models.MessageContext{MessageID: "never-stored"}
	resp, err := s.Send(context.Background(), req)
	if err != nil {
		t.Fatalf("expected quote miss to be tolerated: %v", err)
	}
	if resp.Ok == nil {
		t.Fatalf("expected ok payload despite quote miss, got %+v", resp)
	}
}
