package transformer

import "testing"

func TestPhoneFromJIDStripsResourceAndServer(t *testing.T) {
	got := PhoneFromJID("5491133334444:62@s.whatsapp.net")
	if got != "+5491133334444" {
		t.Fatalf("expected +5491133334444, got %s", got)
	}
}

func TestPhoneFromJIDBrazilNinthDigitCorrection(t *testing.T) {
	got := PhoneFromJID("556281861234@s.whatsapp.net")
	if got != "+5562981861234" {
		t.Fatalf("expected corrected number +5562981861234, got %s", got)
	}
}

func TestPhoneFromJIDIsIdempotentAfterCorrection(t *testing.T) {
	once := PhoneFromJID("556281861234@s.whatsapp.net")
	twice := PhoneFromJID(once)
	if once != twice {
		t.Fatalf("expected idempotent canonicalization, got %s then %s", once, twice)
	}
}

func TestPhoneFromJIDLeavesValidBrazilNumbersAlone(t *testing.T) {
	got := PhoneFromJID("5562981861234@s.whatsapp.net")
	if got != "+5562981861234" {
		t.Fatalf("expected +5562981861234 unchanged, got %s", got)
	}
}

func TestWaIDFromJIDOmitsPlus(t *testing.T) {
	got := WaIDFromJID("4917012345678@s.whatsapp.net")
	if got != "4917012345678" {
		t.Fatalf("expected 4917012345678, got %s", got)
	}
}

func TestToJID(t *testing.T) {
	cases := map[string]string{
		"+5562981861234":        "5562981861234@s.whatsapp.net",
		"5562981861234":         "5562981861234@s.whatsapp.net",
		"123456789-987654@g.us": "123456789-987654@g.us",
		"123456789-987654":      "123456789-987654@g.us",
	}
	for in, want := range cases {
		if got := ToJID(in); got != want {
			t.Fatalf("ToJID(%s): expected %s, got %s", in, want, got)
		}
	}
}

func TestCleanJID(t *testing.T) {
	got := CleanJID("5531999998888:12@s.whatsapp.net")
	if got != "5531999998888@s.whatsapp.net" {
		t.Fatalf("expected resource stripped, got %s", got)
	}
}

func TestJIDKindPredicates(t *testing.T) {
	if !IsGroupJID("123-456@g.us") {
		t.Fatalf("expected group jid to be detected")
	}
	if !IsStatusJID("status@broadcast") {
		t.Fatalf("expected status jid to be detected")
	}
	if !IsIndividualJID("5531999998888@s.whatsapp.net") {
		t.Fatalf("expected individual jid to be detected")
	}
	if !IsIndividualJID("123456789012345@lid") {
		t.Fatalf("expected lid jid to be individual")
	}
	if IsIndividualJID("123-456@g.us") {
		t.Fatalf("group jid must not be individual")
	}
}
