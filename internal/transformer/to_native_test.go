package transformer

import (
	"errors"
	"strings"
	"testing"

	"github.com/example/whatsapp-gateway/internal/models"
)

func TestToNativeText(t *testing.T) {
	send, err := ToNative(models.SendRequest{
		Type: "text",
		To:   "5562981861234",
		Text: &models.Text{Body: "hi"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if send.Text != "hi" {
		t.Fatalf("unexpected content %+v", send)
	}
}

func TestToNativeUnknownTypeFails(t *testing.T) {
	_, err := ToNative(models.SendRequest{Type: "carrier-pigeon", To: "5562981861234"})
	if !errors.Is(err, ErrUnknownMessageType) {
		t.Fatalf("expected unknown message type error, got %v", err)
	}
}

func TestToNativeImageInfersMimeFromLink(t *testing.T) {
	send, err := ToNative(models.SendRequest{
		Type:  "image",
		To:    "5562981861234",
		Image: &models.Media{Link: "https://cdn.example.com/pics/cat.png", Caption: "cat"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if send.Media == nil || send.Media.MimeType != "image/png" {
		t.Fatalf("expected image/png, got %+v", send.Media)
	}
	if send.Media.Caption != "cat" {
		t.Fatalf("expected caption preserved, got %+v", send.Media)
	}
}

func TestToNativeMimeFromQueryHint(t *testing.T) {
	link := "https://storage.example.com/bucket/object?response-content-type=image%2Fwebp"
	send, err := ToNative(models.SendRequest{
		Type:    "sticker",
		To:      "5562981861234",
		Sticker: &models.Media{Link: link},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if send.Media.MimeType != "image/webp" {
		t.Fatalf("expected mime from query hint, got %s", send.Media.MimeType)
	}
}

func TestToNativeAudioDefaultsToVoiceCodec(t *testing.T) {
	send, err := ToNative(models.SendRequest{
		Type:  "audio",
		To:    "5562981861234",
		Audio: &models.Media{Link: "https://cdn.example.com/media/note", Voice: true},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if send.Media.MimeType != "audio/ogg; codecs=opus" {
		t.Fatalf("expected voice codec default, got %s", send.Media.MimeType)
	}
}

func TestToNativeMediaWithoutLinkFails(t *testing.T) {
	_, err := ToNative(models.SendRequest{
		Type:  "video",
		To:    "5562981861234",
		Video: &models.Media{},
	})
	var sendErr *SendError
	if !errors.As(err, &sendErr) || sendErr.Code != CodeInvalidLink {
		t.Fatalf("expected invalid link send error, got %v", err)
	}
}

func TestToNativeContactsRendersOneVcardPerPhone(t *testing.T) {
	send, err := ToNative(models.SendRequest{
		Type: "contacts",
		To:   "5562981861234",
		Contacts: []models.SendContact{{
			Name: models.ContactName{FormattedName: "Bob Jones"},
			Phones: []models.ContactPhone{
				{Phone: "+5562981861234"},
				{Phone: "+5531912345678"},
			},
		}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if send.Vcards == nil || len(send.Vcards.Cards) != 2 {
		t.Fatalf("expected two vcards, got %+v", send.Vcards)
	}
	for _, card := range send.Vcards.Cards {
		if !strings.Contains(card, "FN:Bob Jones") {
			t.Fatalf("expected formatted name in vcard: %s", card)
		}
	}
}

func TestToNativeInteractiveFullList(t *testing.T) {
	send, err := ToNative(models.SendRequest{
		Type: "interactive",
		To:   "5562981861234",
		Interactive: &models.Interactive{
			Type:   "list",
			Header: &models.InteractiveHeader{Type: "text", Text: "Menu"},
			Body:   &models.InteractiveText{Text: "Pick one"},
			Action: &models.InteractiveAction{
				Button: "Open",
				Sections: []models.ListSection{{
					Title: "Drinks",
					Rows:  []models.ListRow{{ID: "1", Title: "Coffee"}},
				}},
			},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if send.List == nil || send.List.Title != "Menu" || len(send.List.Sections) != 1 {
		t.Fatalf("unexpected list %+v", send.List)
	}
}

func TestToNativeInteractiveDegradesWithoutHeader(t *testing.T) {
	send, err := ToNative(models.SendRequest{
		Type: "interactive",
		To:   "5562981861234",
		Interactive: &models.Interactive{
			Type: "button",
			Body: &models.InteractiveText{Text: "Pick one"},
			Action: &models.InteractiveAction{
				Buttons: []models.InteractiveButton{
					{Reply: models.ButtonReply{ID: "a", Title: "Yes"}},
					{Reply: models.ButtonReply{ID: "b", Title: "No"}},
				},
			},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(send.List.Sections) != 1 || send.List.Sections[0].Title != degradedListSection {
		t.Fatalf("expected degraded single-section list, got %+v", send.List)
	}
	if len(send.List.Sections[0].Rows) != 2 {
		t.Fatalf("expected one row per button, got %+v", send.List.Sections[0].Rows)
	}
}

func TestBindTemplate(t *testing.T) {
	tpl, err := BindTemplate(&models.TemplateRef{
		Name: "order_update",
		Components: []models.TemplateComponent{{
			Type: "body",
			Parameters: []models.TemplateParameter{
				{Type: "text", Text: "Your order"},
				{Type: "text", Text: "has shipped"},
			},
		}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tpl.Text != "Your order\nhas shipped" {
		t.Fatalf("unexpected bound text %q", tpl.Text)
	}
}

func TestBindTemplateMissingNameFails(t *testing.T) {
	_, err := BindTemplate(nil)
	if !errors.Is(err, ErrBindTemplate) {
		t.Fatalf("expected bind error, got %v", err)
	}
}
