package models

// WebhookPayload is the Cloud-API-shaped envelope delivered to tenant
// webhooks. Every inbound protocol event is normalized into this structure
// regardless of the transport variant that produced it.
type WebhookPayload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

// Entry groups the changes for a single tenant account.
type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

// Change wraps one value under the "messages" field.
type Change struct {
	Value ChangeValue `json:"value"`
	Field string      `json:"field"`
}

// ChangeValue carries the normalized messages, contacts, statuses and errors
// for one webhook delivery.
type ChangeValue struct {
	MessagingProduct string         `json:"messaging_product"`
	Metadata         ChangeMetadata `json:"metadata"`
	Messages         []Message      `json:"messages,omitempty"`
	Contacts         []Contact      `json:"contacts,omitempty"`
	Statuses         []Status       `json:"statuses,omitempty"`
	Errors           []ErrorDetail  `json:"errors,omitempty"`
}

// ChangeMetadata identifies the tenant the change belongs to. The gateway
// uses the tenant phone number for both fields.
type ChangeMetadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

// Contact describes the sender of an inbound message.
type Contact struct {
	Profile Profile `json:"profile"`
	WaID    string  `json:"wa_id"`
}

// Profile holds the display attributes of a contact.
type Profile struct {
	Name    string `json:"name"`
	Picture string `json:"picture,omitempty"`
}

// Message is one normalized inbound message.
type Message struct {
	From      string          `json:"from"`
	ID        string          `json:"id"`
	Timestamp string          `json:"timestamp"`
	Type      string          `json:"type"`
	Text      *Text           `json:"text,omitempty"`
	Image     *Media          `json:"image,omitempty"`
	Audio     *Media          `json:"audio,omitempty"`
	Video     *Media          `json:"video,omitempty"`
	Document  *Media          `json:"document,omitempty"`
	Sticker   *Media          `json:"sticker,omitempty"`
	Contacts  []SharedContact `json:"contacts,omitempty"`
	Location  *Location       `json:"location,omitempty"`
	Reaction  *Reaction       `json:"reaction,omitempty"`
	Context   *MessageContext `json:"context,omitempty"`
	Referral  *Referral       `json:"referral,omitempty"`
	GroupID   string          `json:"group_id,omitempty"`
	Errors    []ErrorDetail   `json:"errors,omitempty"`
}

// Text holds the body of a text message.
type Text struct {
	Body string `json:"body"`
}

// Media describes a media attachment. The id doubles as the handle used by
// media download endpoints.
type Media struct {
	ID        string `json:"id,omitempty"`
	Link      string `json:"link,omitempty"`
	Caption   string `json:"caption,omitempty"`
	Filename  string `json:"filename,omitempty"`
	MimeType  string `json:"mime_type,omitempty"`
	SHA256    string `json:"sha256,omitempty"`
	EncSHA256 string `json:"enc_sha256,omitempty"`
	MediaKey  string `json:"media_key,omitempty"`
	Voice     bool   `json:"voice,omitempty"`
	Seconds   uint32 `json:"seconds,omitempty"`
}

// SharedContact is a contact-card payload carried by a contacts message.
type SharedContact struct {
	Name   ContactName    `json:"name"`
	Phones []ContactPhone `json:"phones,omitempty"`
}

// ContactName holds the formatted name of a shared contact.
type ContactName struct {
	FormattedName string `json:"formatted_name"`
}

// ContactPhone is one phone entry of a shared contact.
type ContactPhone struct {
	Phone string `json:"phone"`
}

// Location carries geographic coordinates.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      string  `json:"name,omitempty"`
	Address   string  `json:"address,omitempty"`
	URL       string  `json:"url,omitempty"`
}

// Reaction references an earlier message with an emoji.
type Reaction struct {
	MessageID string `json:"message_id"`
	Emoji     string `json:"emoji"`
}

// MessageContext links a message to the one it replies to.
type MessageContext struct {
	MessageID string `json:"message_id,omitempty"`
	ID        string `json:"id,omitempty"`
	From      string `json:"from,omitempty"`
}

// Referral carries external-ad attribution on an inbound message.
type Referral struct {
	SourceURL    string `json:"source_url,omitempty"`
	SourceID     string `json:"source_id,omitempty"`
	SourceType   string `json:"source_type,omitempty"`
	Headline     string `json:"headline,omitempty"`
	Body         string `json:"body,omitempty"`
	MediaType    string `json:"media_type,omitempty"`
	ImageURL     string `json:"image_url,omitempty"`
	VideoURL     string `json:"video_url,omitempty"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
}

// Status is one delivery-state transition for an outbound message.
type Status struct {
	ID          string        `json:"id"`
	RecipientID string        `json:"recipient_id,omitempty"`
	Status      string        `json:"status"`
	Timestamp   string        `json:"timestamp"`
	Errors      []ErrorDetail `json:"errors,omitempty"`
}

// ErrorDetail carries a numeric code and human-readable title, mirroring the
// Cloud API error object.
type ErrorDetail struct {
	Code      int    `json:"code"`
	Title     string `json:"title"`
	Message   string `json:"message,omitempty"`
	ErrorData any    `json:"error_data,omitempty"`
}

// Delivery statuses used in Status.Status. Unknown protocol codes are forced
// to StatusFailed with a synthetic error entry.
const (
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
	StatusFailed    = "failed"
	StatusDeleted   = "deleted"
)

// NewWebhookPayload builds an envelope for the given tenant phone with the
// supplied change value arrays already attached.
func NewWebhookPayload(phone string, value ChangeValue) WebhookPayload {
	value.MessagingProduct = "whatsapp"
	value.Metadata = ChangeMetadata{
		DisplayPhoneNumber: phone,
		PhoneNumberID:      phone,
	}
	return WebhookPayload{
		Object: "whatsapp_business_account",
		Entry: []Entry{{
			ID: phone,
			Changes: []Change{{
				Value: value,
				Field: "messages",
			}},
		}},
	}
}
