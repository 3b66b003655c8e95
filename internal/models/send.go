package models

import "time"

// Send request types accepted by the gateway. Unknown types fail with an
// unknown-message-type error before reaching the transport.
const (
	TypeText        = "text"
	TypeImage       = "image"
	TypeAudio       = "audio"
	TypeDocument    = "document"
	TypeVideo       = "video"
	TypeSticker     = "sticker"
	TypeContacts    = "contacts"
	TypeInteractive = "interactive"
	TypeTemplate    = "template"
)

// SendRequest is the normalized outbound request. It is either a status
// update (Status set, referencing MessageID) or a content send (Type and To
// set).
type SendRequest struct {
	MessageID   string          `json:"message_id,omitempty"`
	Status      string          `json:"status,omitempty"`
	Type        string          `json:"type,omitempty"`
	To          string          `json:"to,omitempty"`
	Text        *Text           `json:"text,omitempty"`
	Image       *Media          `json:"image,omitempty"`
	Audio       *Media          `json:"audio,omitempty"`
	Document    *Media          `json:"document,omitempty"`
	Video       *Media          `json:"video,omitempty"`
	Sticker     *Media          `json:"sticker,omitempty"`
	Contacts    []SendContact   `json:"contacts,omitempty"`
	Interactive *Interactive    `json:"interactive,omitempty"`
	Template    *TemplateRef    `json:"template,omitempty"`
	Context     *MessageContext `json:"context,omitempty"`
	TTL         int64           `json:"ttl,omitempty"`
}

// SendContact is one outbound contact card.
type SendContact struct {
	Name   ContactName    `json:"name"`
	Phones []ContactPhone `json:"phones,omitempty"`
}

// Interactive is a Cloud-API interactive payload. Only list and button
// shapes are supported.
type Interactive struct {
	Type   string             `json:"type,omitempty"`
	Header *InteractiveHeader `json:"header,omitempty"`
	Body   *InteractiveText   `json:"body,omitempty"`
	Footer *InteractiveText   `json:"footer,omitempty"`
	Action *InteractiveAction `json:"action,omitempty"`
}

// InteractiveHeader is the optional header of an interactive message.
type InteractiveHeader struct {
	Type string `json:"type,omitempty"`
	Text string `json:"text,omitempty"`
}

// InteractiveText wraps a plain text body or footer.
type InteractiveText struct {
	Text string `json:"text,omitempty"`
}

// InteractiveAction carries the list sections or reply buttons.
type InteractiveAction struct {
	Button   string              `json:"button,omitempty"`
	Sections []ListSection       `json:"sections,omitempty"`
	Buttons  []InteractiveButton `json:"buttons,omitempty"`
}

// InteractiveButton is one quick-reply button.
type InteractiveButton struct {
	Type  string      `json:"type,omitempty"`
	Reply ButtonReply `json:"reply"`
}

// ButtonReply identifies a quick-reply button.
type ButtonReply struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// TemplateRef names a template and its component bindings.
type TemplateRef struct {
	Name       string              `json:"name"`
	Language   *TemplateLanguage   `json:"language,omitempty"`
	Components []TemplateComponent `json:"components,omitempty"`
}

// TemplateLanguage selects the template locale.
type TemplateLanguage struct {
	Code string `json:"code,omitempty"`
}

// TemplateComponent binds parameters to one template component.
type TemplateComponent struct {
	Type       string              `json:"type"`
	Parameters []TemplateParameter `json:"parameters,omitempty"`
}

// TemplateParameter is one bound template value.
type TemplateParameter struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// SendResponse is the structured outcome of a send. Exactly one of Ok or
// Error is set; classified failures never surface as bare errors.
type SendResponse struct {
	Ok    *OkPayload      `json:"ok,omitempty"`
	Error *WebhookPayload `json:"error,omitempty"`
}

// OkPayload mirrors the Cloud API success body.
type OkPayload struct {
	MessagingProduct string      `json:"messaging_product,omitempty"`
	Contacts         []WaContact `json:"contacts,omitempty"`
	Messages         []MessageID `json:"messages,omitempty"`
	Success          bool        `json:"success,omitempty"`
}

// WaContact echoes the resolved destination.
type WaContact struct {
	WaID string `json:"wa_id"`
}

// MessageID wraps the id assigned to an accepted message.
type MessageID struct {
	ID string `json:"id"`
}

// SendOptions carries the per-send knobs resolved by the pipeline before the
// transport is invoked.
type SendOptions struct {
	Quoted    *NativeMessage
	TTL       int64
	Composing bool
}

// Exists reports whether a destination is reachable on the network.
type Exists struct {
	Phone string `json:"phone"`
	JID   string `json:"jid,omitempty"`
	Valid bool   `json:"valid"`
}

// OutgoingJob is the broker payload binding a send request to its tenant.
type OutgoingJob struct {
	Phone     string      `json:"phone"`
	Request   SendRequest `json:"request"`
	TraceID   string      `json:"trace_id,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}
