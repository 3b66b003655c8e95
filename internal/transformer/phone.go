package transformer

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// JID server suffixes used by the protocol.
const (
	serverUser      = "s.whatsapp.net"
	serverGroup     = "g.us"
	serverLID       = "lid"
	serverBroadcast = "broadcast"
)

// CleanJID strips the device/resource part of a JID while keeping the server
// suffix, so "5531999@2:62@s.whatsapp.net" style ids compare stably.
func CleanJID(jid string) string {
	user, server, ok := strings.Cut(jid, "@")
	if !ok {
		return jid
	}
	if i := strings.Index(user, ":"); i >= 0 {
		user = user[:i]
	}
	return user + "@" + server
}

// IsGroupJID reports whether the JID addresses a group chat.
func IsGroupJID(jid string) bool {
	return strings.HasSuffix(jid, "@"+serverGroup)
}

// IsBroadcastJID reports whether the JID addresses a broadcast list or the
// status feed.
func IsBroadcastJID(jid string) bool {
	return strings.HasSuffix(jid, "@"+serverBroadcast)
}

// IsStatusJID reports whether the JID is the status feed.
func IsStatusJID(jid string) bool {
	return jid == "status@broadcast"
}

// IsIndividualJID reports whether the JID addresses a single contact, either
// by PN or by LID.
func IsIndividualJID(jid string) bool {
	return strings.HasSuffix(jid, "@"+serverUser) || strings.HasSuffix(jid, "@"+serverLID)
}

// PhoneFromJID extracts the canonical "+"-prefixed phone string from a JID.
func PhoneFromJID(jid string) string {
	return jidToPhoneNumber(jid, "+", true)
}

// WaIDFromJID returns the digits-only canonical id used in webhook payloads.
func WaIDFromJID(jid string) string {
	return jidToPhoneNumber(jid, "", true)
}

// ToJID renders a destination phone or group id as a protocol JID.
func ToJID(destination string) string {
	if strings.Contains(destination, "@") {
		return destination
	}
	if strings.Contains(destination, "-") || len(destination) > 15 {
		return destination + "@" + serverGroup
	}
	return strings.TrimPrefix(destination, "+") + "@" + serverUser
}

// jidToPhoneNumber canonicalizes a JID or raw phone into a phone string.
// Brazilian numbers that fail validation and are one digit short get the
// mobile ninth digit re-inserted after the area code; the retry flag bounds
// the correction to a single pass.
func jidToPhoneNumber(value, plus string, retry bool) string {
	user := value
	if i := strings.Index(user, "@"); i >= 0 {
		user = user[:i]
	}
	if i := strings.Index(user, ":"); i >= 0 {
		user = user[:i]
	}
	digits := keepDigits(user)
	if digits == "" {
		return ""
	}

	if strings.HasPrefix(digits, "55") && retry && len(digits) > 4 && len(digits) < 13 {
		parsed, err := phonenumbers.Parse("+"+digits, "")
		if err != nil || !phonenumbers.IsValidNumber(parsed) {
			corrected := digits[:4] + "9" + digits[4:]
			return jidToPhoneNumber(corrected, plus, false)
		}
	}

	return plus + digits
}

func keepDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
