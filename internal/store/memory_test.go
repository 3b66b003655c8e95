package store

import (
	"context"
	"errors"
	"testing"

	"github.com/example/whatsapp-gateway/internal/models"
)

const testPhone = "5531912345678"

func TestMemoryDataStoreKeyRoundtrip(t *testing.T) {
	s := NewMemoryDataStore()
	ctx := context.Background()

	key := models.NativeKey{ID: "3EB0ABC", RemoteJID: "4917012345678@s.whatsapp.net", FromMe: true}
	if err := s.SetKey(ctx, testPhone, key.ID, key); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := s.GetKey(ctx, testPhone, key.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.RemoteJID != key.RemoteJID || !got.FromMe {
		t.Fatalf("unexpected key: %+v", got)
	}

	if _, err := s.GetKey(ctx, testPhone, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryDataStoreScopesByPhone(t *testing.T) {
	s := NewMemoryDataStore()
	ctx := context.Background()

	key := models.NativeKey{ID: "3EB0ABC"}
	if err := s.SetKey(ctx, testPhone, key.ID, key); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.GetKey(ctx, "4917012345678", key.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected tenant isolation, got %v", err)
	}
}

func TestMemoryDataStoreAliasResolution(t *testing.T) {
	s := NewMemoryDataStore()
	ctx := context.Background()

	if err := s.SetIDAlias(ctx, testPhone, "caller-id", "3EB0ABC"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	id, err := s.GetIDByAlias(ctx, testPhone, "caller-id")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "3EB0ABC" {
		t.Fatalf("expected wire id, got %s", id)
	}
}

func TestMemoryDataStoreStatusAndMedia(t *testing.T) {
	s := NewMemoryDataStore()
	ctx := context.Background()

	if err := s.SetMessageStatus(ctx, testPhone, "3EB0ABC", models.StatusRead); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	status, err := s.GetMessageStatus(ctx, testPhone, "3EB0ABC")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != models.StatusRead {
		t.Fatalf("expected read, got %s", status)
	}

	payload := MediaPayload{MessagingProduct: "whatsapp", ID: "553/3AF", MimeType: "image/jpeg", SHA256: "hash"}
	if err := s.SetMediaPayload(ctx, testPhone, "3AF", payload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := s.GetMediaPayload(ctx, testPhone, "3AF")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != payload.ID || got.MimeType != payload.MimeType {
		t.Fatalf("unexpected payload: %+v", got)
	}
}

func TestMemorySessionStoreStatus(t *testing.T) {
	s := NewMemorySessionStore()
	ctx := context.Background()

	if err := s.SetStatus(ctx, testPhone, "online"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	status, err := s.GetStatus(ctx, testPhone)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != "online" {
		t.Fatalf("expected online, got %s", status)
	}
}
