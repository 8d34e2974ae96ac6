package loader

import "testing"

func TestCanonicalName(t *testing.T) {
	cases := map[string]string{
		"SMTP":      "smtp",
		"smtp.so":   "smtp",
		"IMAP.SO":   "imap",
		"chanserv":  "chanserv",
		"irc-relay": "irc-relay",
	}
	for in, want := range cases {
		if got := canonicalName(in); got != want {
			t.Errorf("canonicalName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestStateString(t *testing.T) {
	if StateLoaded.String() != "loaded" {
		t.Fatalf("unexpected State.String(): %s", StateLoaded)
	}
	if !StateFailed.terminal() {
		t.Fatalf("StateFailed should be terminal")
	}
	if StateOpening.terminal() {
		t.Fatalf("StateOpening should not be terminal")
	}
}
