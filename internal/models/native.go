package models

// EventKind tags a batch of normalized events handed to the listener.
type EventKind string

const (
	EventMessage EventKind = "message"
	EventUpdate  EventKind = "update"
	EventDelete  EventKind = "delete"
	EventHistory EventKind = "history"
	EventStatus  EventKind = "status"
	EventQRCode  EventKind = "qrcode"
	EventNotify  EventKind = "notify"
	EventAppend  EventKind = "append"
)

// NativeKey identifies a protocol message. Alternate identity fields carry
// the PN (phone number) and LID (linked device) addresses of the same
// participant when the network supplies both.
type NativeKey struct {
	RemoteJID      string `json:"remoteJid,omitempty"`
	RemoteJIDAlt   string `json:"remoteJidAlt,omitempty"`
	FromMe         bool   `json:"fromMe,omitempty"`
	ID             string `json:"id,omitempty"`
	Participant    string `json:"participant,omitempty"`
	ParticipantAlt string `json:"participantAlt,omitempty"`
	ParticipantPN  string `json:"participantPn,omitempty"`
	ParticipantLID string `json:"participantLid,omitempty"`
	SenderPN       string `json:"senderPn,omitempty"`
	SenderLID      string `json:"senderLid,omitempty"`
}

// NativeMessage is one protocol event as received from the transport. The
// transformer treats it as a tagged union: exactly one of Content, Update,
// Receipt, or a stub type describes the event.
type NativeMessage struct {
	Key                   NativeKey      `json:"key"`
	Content               *NativeContent `json:"message,omitempty"`
	Update                *NativeUpdate  `json:"update,omitempty"`
	Receipt               *NativeReceipt `json:"receipt,omitempty"`
	Status                string         `json:"status,omitempty"`
	Participant           string         `json:"participant,omitempty"`
	PushName              string         `json:"pushName,omitempty"`
	VerifiedBizName       string         `json:"verifiedBizName,omitempty"`
	MessageTimestamp      int64          `json:"messageTimestamp,omitempty"`
	MessageStubType       int            `json:"messageStubType,omitempty"`
	MessageStubParameters []string       `json:"messageStubParameters,omitempty"`
}

// NativeUpdate carries a delivery-state transition for an earlier message.
type NativeUpdate struct {
	Status          string `json:"status,omitempty"`
	MessageStubType int    `json:"messageStubType,omitempty"`
	Starred         *bool  `json:"starred,omitempty"`
}

// NativeReceipt carries read/delivery acknowledgement timestamps.
type NativeReceipt struct {
	ReadTimestamp    int64 `json:"readTimestamp,omitempty"`
	ReceiptTimestamp int64 `json:"receiptTimestamp,omitempty"`
}

// NativeContent is the payload union of a protocol message. At most one of
// the kind fields is set; wrapper kinds nest another NativeContent.
type NativeContent struct {
	Conversation    string               `json:"conversation,omitempty"`
	ExtendedText    *NativeExtendedText  `json:"extendedTextMessage,omitempty"`
	Image           *NativeMedia         `json:"imageMessage,omitempty"`
	Video           *NativeMedia         `json:"videoMessage,omitempty"`
	PTV             *NativeMedia         `json:"ptvMessage,omitempty"`
	Audio           *NativeMedia         `json:"audioMessage,omitempty"`
	Document        *NativeMedia         `json:"documentMessage,omitempty"`
	Sticker         *NativeMedia         `json:"stickerMessage,omitempty"`
	Contact         *NativeContact       `json:"contactMessage,omitempty"`
	ContactsArray   *NativeContactsList  `json:"contactsArrayMessage,omitempty"`
	Location        *NativeLocation      `json:"locationMessage,omitempty"`
	LiveLocation    *NativeLocation      `json:"liveLocationMessage,omitempty"`
	Reaction        *NativeReaction      `json:"reactionMessage,omitempty"`
	Protocol        *NativeProtocol      `json:"protocolMessage,omitempty"`
	Edited          *NativeWrapped       `json:"editedMessage,omitempty"`
	ViewOnce        *NativeWrapped       `json:"viewOnceMessage,omitempty"`
	ViewOnceV2      *NativeWrapped       `json:"viewOnceMessageV2,omitempty"`
	Ephemeral       *NativeWrapped       `json:"ephemeralMessage,omitempty"`
	DocWithCaption  *NativeWrapped       `json:"documentWithCaptionMessage,omitempty"`
	ListResponse    *NativeListResponse  `json:"listResponseMessage,omitempty"`
	ButtonsResponse *NativeButtonsReply  `json:"buttonsResponseMessage,omitempty"`
	TemplateReply   *NativeTemplateReply `json:"templateButtonReplyMessage,omitempty"`
}

// NativeExtendedText is a text message with context (quote, ad referral).
type NativeExtendedText struct {
	Text        string             `json:"text,omitempty"`
	ContextInfo *NativeContextInfo `json:"contextInfo,omitempty"`
}

// NativeContextInfo links a message to a quoted message or an external ad.
type NativeContextInfo struct {
	StanzaID        string            `json:"stanzaId,omitempty"`
	Participant     string            `json:"participant,omitempty"`
	QuotedMessage   *NativeContent    `json:"quotedMessage,omitempty"`
	Expiration      uint32            `json:"expiration,omitempty"`
	ExternalAdReply *NativeExternalAd `json:"externalAdReply,omitempty"`
}

// NativeExternalAd describes the ad a conversation was started from.
type NativeExternalAd struct {
	Title        string `json:"title,omitempty"`
	Body         string `json:"body,omitempty"`
	SourceURL    string `json:"sourceUrl,omitempty"`
	SourceID     string `json:"sourceId,omitempty"`
	SourceType   string `json:"sourceType,omitempty"`
	MediaType    string `json:"mediaType,omitempty"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty"`
	MediaURL     string `json:"mediaUrl,omitempty"`
}

// NativeMedia describes a media attachment on the wire.
type NativeMedia struct {
	URL           string             `json:"url,omitempty"`
	Mimetype      string             `json:"mimetype,omitempty"`
	Caption       string             `json:"caption,omitempty"`
	FileName      string             `json:"fileName,omitempty"`
	FileSHA256    string             `json:"fileSha256,omitempty"`
	FileEncSHA256 string             `json:"fileEncSha256,omitempty"`
	MediaKey      string             `json:"mediaKey,omitempty"`
	FileLength    uint64             `json:"fileLength,omitempty"`
	Seconds       uint32             `json:"seconds,omitempty"`
	PTT           bool               `json:"ptt,omitempty"`
	ContextInfo   *NativeContextInfo `json:"contextInfo,omitempty"`
}

// NativeContact is one contact card.
type NativeContact struct {
	DisplayName string `json:"displayName,omitempty"`
	Vcard       string `json:"vcard,omitempty"`
}

// NativeContactsList is a multi-card contacts message.
type NativeContactsList struct {
	DisplayName string          `json:"displayName,omitempty"`
	Contacts    []NativeContact `json:"contacts,omitempty"`
}

// NativeLocation carries coordinates, shared either statically or live.
type NativeLocation struct {
	DegreesLatitude  float64 `json:"degreesLatitude,omitempty"`
	DegreesLongitude float64 `json:"degreesLongitude,omitempty"`
	Name             string  `json:"name,omitempty"`
	Address          string  `json:"address,omitempty"`
	URL              string  `json:"url,omitempty"`
}

// NativeReaction references an earlier message with an emoji. An empty Text
// removes the reaction.
type NativeReaction struct {
	Key  *NativeKey `json:"key,omitempty"`
	Text string     `json:"text,omitempty"`
}

// NativeProtocol is a protocol-control payload, most notably revokes.
type NativeProtocol struct {
	Type string     `json:"type,omitempty"`
	Key  *NativeKey `json:"key,omitempty"`
}

// NativeWrapped nests another content one level down (edits, view-once,
// ephemeral, captioned documents).
type NativeWrapped struct {
	Message *NativeContent `json:"message,omitempty"`
	Key     *NativeKey     `json:"key,omitempty"`
}

// NativeListResponse is the row a recipient picked from a list message.
type NativeListResponse struct {
	Title             string `json:"title,omitempty"`
	SelectedRowID     string `json:"selectedRowId,omitempty"`
	SelectedRowTitle  string `json:"selectedRowTitle,omitempty"`
	SingleSelectReply *struct {
		SelectedRowID string `json:"selectedRowId,omitempty"`
	} `json:"singleSelectReply,omitempty"`
}

// NativeButtonsReply is a pressed quick-reply button.
type NativeButtonsReply struct {
	SelectedButtonID    string `json:"selectedButtonId,omitempty"`
	SelectedDisplayText string `json:"selectedDisplayText,omitempty"`
}

// NativeTemplateReply is a pressed template button.
type NativeTemplateReply struct {
	SelectedID          string `json:"selectedId,omitempty"`
	SelectedDisplayText string `json:"selectedDisplayText,omitempty"`
}

// NativeSend is the protocol-native content produced for an outbound send.
// Exactly one of the kind fields is populated.
type NativeSend struct {
	Text     string        `json:"text,omitempty"`
	Media    *SendMedia    `json:"media,omitempty"`
	Vcards   *SendVcards   `json:"vcards,omitempty"`
	Location *Location     `json:"location,omitempty"`
	List     *SendList     `json:"list,omitempty"`
	Template *SendTemplate `json:"template,omitempty"`
}

// SendMedia is outbound media referenced by link.
type SendMedia struct {
	Kind     string `json:"kind"`
	URL      string `json:"url"`
	MimeType string `json:"mime_type,omitempty"`
	FileName string `json:"file_name,omitempty"`
	Caption  string `json:"caption,omitempty"`
	Voice    bool   `json:"voice,omitempty"`
}

// SendVcards carries one rendered VCARD per phone entry.
type SendVcards struct {
	DisplayName string   `json:"display_name,omitempty"`
	Cards       []string `json:"cards"`
}

// SendList is an interactive list, possibly degraded to a single section
// built from reply buttons when the request had no header.
type SendList struct {
	Title      string        `json:"title,omitempty"`
	Body       string        `json:"body,omitempty"`
	Footer     string        `json:"footer,omitempty"`
	ButtonText string        `json:"button_text,omitempty"`
	Sections   []ListSection `json:"sections"`
}

// ListSection groups rows under a section title.
type ListSection struct {
	Title string    `json:"title,omitempty"`
	Rows  []ListRow `json:"rows"`
}

// ListRow is one selectable list entry.
type ListRow struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// SendTemplate is a template send after component binding.
type SendTemplate struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

// NativeSendResult is the transport's acknowledgement of a send.
type NativeSendResult struct {
	Key       NativeKey `json:"key"`
	Timestamp int64     `json:"messageTimestamp,omitempty"`
}
