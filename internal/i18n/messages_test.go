package i18n

import "testing"

func TestMatch(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"id-ID,en;q=0.8", "id"},
		{"en-US,en;q=0.9", "en"},
		{"ID", "id"},
		{"fr-FR", ""},
		{"", ""},
		{";;;", ""},
	}
	for _, tc := range tests {
		if got := Match(tc.in); got != tc.want {
			t.Errorf("Match(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeDefaultsToEnglish(t *testing.T) {
	if got := Normalize("de"); got != "en" {
		t.Fatalf("Normalize(de) = %q, want en", got)
	}
	if got := Normalize("id"); got != "id" {
		t.Fatalf("Normalize(id) = %q, want id", got)
	}
}

func TestT(t *testing.T) {
	if got := T("en", MsgInsufficientCredits, 3, 1); got != "Not enough credits. You need 3, you have 1." {
		t.Fatalf("en = %q", got)
	}
	if got := T("id", MsgInsufficientCredits, 3, 1); got != "Kredit tidak cukup. Dibutuhkan 3, tersedia 1." {
		t.Fatalf("id = %q", got)
	}
	if got := T("xx", MsgTaskNotFound); got != "Task not found." {
		t.Fatalf("fallback = %q", got)
	}
}

func TestKindLabel(t *testing.T) {
	if got := KindLabel("id", "video"); got != "Video" {
		t.Fatalf("id video = %q", got)
	}
	if got := KindLabel("en", "image"); got != "image" {
		t.Fatalf("en image = %q", got)
	}
}
