package identity

import (
	"crypto/ed25519"
	"testing"
)

func TestNormalizeDisplayName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"  Alice  ", "Alice", true},
		{"Ame\u0301lie", "Am\u00e9lie", true},
		{"", "", false},
		{"tab\tname", "", false},
		{"zero\u200bwidth", "zero\u200bwidth", true},
		{string([]byte{0xff, 0xfe}), "", false},
	}
	for _, tc := range tests {
		got, err := NormalizeDisplayName(tc.in)
		if (err == nil) != tc.ok || got != tc.want {
			t.Fatalf("NormalizeDisplayName(%q)=(%q,%v) want=(%q,ok=%v)", tc.in, got, err, tc.want, tc.ok)
		}
	}
}

func TestFingerprint(t *testing.T) {
	t.Parallel()

	seed := make([]byte, ed25519.SeedSize)
	pub := ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey)
	fpr := Fingerprint(pub)
	if len(fpr) != 2*FingerprintBytes {
		t.Fatalf("Fingerprint() len=%d want=%d", len(fpr), 2*FingerprintBytes)
	}
	if Fingerprint(pub) != fpr {
		t.Fatalf("Fingerprint() not deterministic")
	}
	if NormalizeFingerprint("  "+fpr[:4]+"AB ") != fpr[:4]+"ab" {
		t.Fatalf("NormalizeFingerprint() did not trim and lower-case")
	}
}
