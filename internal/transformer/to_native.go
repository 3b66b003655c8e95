package transformer

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/emersion/go-vcard"

	"github.com/example/whatsapp-gateway/internal/models"
)

const degradedListSection = "Opções"

// ToNative builds the protocol-native content for an outbound request. The
// request type selects the build path; unknown types fail before any
// transport work happens.
func ToNative(req models.SendRequest) (*models.NativeSend, error) {
	switch req.Type {
	case models.TypeText:
		if req.Text == nil {
			return nil, fmt.Errorf("text payload is required")
		}
		return &models.NativeSend{Text: req.Text.Body}, nil

	case models.TypeImage, models.TypeAudio, models.TypeDocument, models.TypeVideo, models.TypeSticker:
		return mediaSend(req)

	case models.TypeContacts:
		return contactsSend(req)

	case models.TypeInteractive:
		return interactiveSend(req)

	case models.TypeTemplate:
		tpl, err := BindTemplate(req.Template)
		if err != nil {
			return nil, err
		}
		return &models.NativeSend{Template: tpl}, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrUnknownMessageType, req.Type)
}

func mediaSend(req models.SendRequest) (*models.NativeSend, error) {
	m := mediaField(req)
	if m == nil || m.Link == "" {
		return nil, NewSendError(CodeInvalidLink, "The media link is missing or empty")
	}

	fallback := ""
	if req.Type == models.TypeAudio {
		fallback = AudioFallback(m.Voice)
	}
	mimeType := m.MimeType
	if mimeType == "" {
		mimeType = MimeForLink(m.Link, m.Filename, fallback)
	}

	return &models.NativeSend{Media: &models.SendMedia{
		Kind:     req.Type,
		URL:      m.Link,
		MimeType: mimeType,
		FileName: m.Filename,
		Caption:  m.Caption,
		Voice:    m.Voice,
	}}, nil
}

func mediaField(req models.SendRequest) *models.Media {
	switch req.Type {
	case models.TypeImage:
		return req.Image
	case models.TypeAudio:
		return req.Audio
	case models.TypeDocument:
		return req.Document
	case models.TypeVideo:
		return req.Video
	case models.TypeSticker:
		return req.Sticker
	}
	return nil
}

// contactsSend renders one VCARD per phone entry so every number stays
// individually selectable on the receiving device.
func contactsSend(req models.SendRequest) (*models.NativeSend, error) {
	if len(req.Contacts) == 0 {
		return nil, fmt.Errorf("contacts payload is required")
	}

	out := &models.SendVcards{}
	for _, c := range req.Contacts {
		name := c.Name.FormattedName
		if out.DisplayName == "" {
			out.DisplayName = name
		}
		for _, p := range c.Phones {
			card, err := renderVcard(name, p.Phone)
			if err != nil {
				return nil, err
			}
			out.Cards = append(out.Cards, card)
		}
	}
	if len(out.Cards) == 0 {
		return nil, fmt.Errorf("contacts payload has no phone entries")
	}
	return &models.NativeSend{Vcards: out}, nil
}

func renderVcard(name, phone string) (string, error) {
	card := make(vcard.Card)
	card.SetValue(vcard.FieldFormattedName, name)
	card.SetValue(vcard.FieldTelephone, phone)
	vcard.ToV4(card)

	var buf bytes.Buffer
	if err := vcard.NewEncoder(&buf).Encode(card); err != nil {
		return "", fmt.Errorf("encode vcard: %w", err)
	}
	return buf.String(), nil
}

// interactiveSend builds a list message. Requests without a header degrade
// to a single generated section built from the reply buttons.
func interactiveSend(req models.SendRequest) (*models.NativeSend, error) {
	i := req.Interactive
	if i == nil || i.Action == nil {
		return nil, fmt.Errorf("interactive payload is required")
	}

	list := &models.SendList{ButtonText: i.Action.Button}
	if i.Header != nil {
		list.Title = i.Header.Text
	}
	if i.Body != nil {
		list.Body = i.Body.Text
	}
	if i.Footer != nil {
		list.Footer = i.Footer.Text
	}

	switch {
	case len(i.Action.Sections) > 0 && i.Header != nil:
		list.Sections = i.Action.Sections
	case len(i.Action.Buttons) > 0:
		section := models.ListSection{Title: degradedListSection}
		for _, b := range i.Action.Buttons {
			section.Rows = append(section.Rows, models.ListRow{
				ID:    b.Reply.ID,
				Title: b.Reply.Title,
			})
		}
		list.Sections = []models.ListSection{section}
	case len(i.Action.Sections) > 0:
		list.Sections = i.Action.Sections
	default:
		return nil, fmt.Errorf("interactive payload has no sections or buttons")
	}

	if list.ButtonText == "" {
		list.ButtonText = degradedListSection
	}
	return &models.NativeSend{List: list}, nil
}

// BindTemplate resolves the named components of a template request into the
// flat text the protocol can carry.
func BindTemplate(tpl *models.TemplateRef) (*models.SendTemplate, error) {
	if tpl == nil || strings.TrimSpace(tpl.Name) == "" {
		return nil, fmt.Errorf("%w: template name is required", ErrBindTemplate)
	}

	var parts []string
	for _, comp := range tpl.Components {
		for _, param := range comp.Parameters {
			if param.Type == "text" && param.Text != "" {
				parts = append(parts, param.Text)
			}
		}
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("%w: template %s has no bindable text components", ErrBindTemplate, tpl.Name)
	}

	return &models.SendTemplate{
		Name: tpl.Name,
		Text: strings.Join(parts, "\n"),
	}, nil
}
