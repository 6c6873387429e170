package messaging

import (
	"errors"
	"testing"

	"github.com/tiendabot/tiendabot/internal/models"
)

func TestCanonicalizeRecipient(t *testing.T) {
	cases := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"plain digits", "15551234567", "15551234567", false},
		{"plus prefix", "+15551234567", "15551234567", false},
		{"formatted", "+1 (555) 123-4567", "15551234567", false},
		{"whatsapp prefix", "whatsapp:+15551234567", "15551234567", false},
		{"too short", "12345", "", true},
		{"letters only", "hello", "", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := CanonicalizeRecipient(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tc.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestCanonicalizeRecipientEmpty(t *testing.T) {
	_, err := CanonicalizeRecipient("")
	if !errors.Is(err, models.ErrEmptyRecipient) {
		t.Errorf("expected ErrEmptyRecipient, got %v", err)
	}
}
