package importer

import (
	"testing"

	"github.com/dnovak/invoice-finder/internal/model"
)

func TestNormalizeVendor(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"ACME d.o.o.", "acmedoo"},
		{"Hrvatski Telekom d.d.", "hrvatskitelekomdd"},
		{"A1 Hrvatska", "a1hrvatska"},
		{"...", ""},
		{"", ""},
	}

	for _, tt := range tests {
		if got := NormalizeVendor(tt.name); got != tt.want {
			t.Errorf("NormalizeVendor(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestMatchVendor(t *testing.T) {
	vendors := []model.Vendor{
		{ID: "v1", Name: "ACME d.o.o."},
		{ID: "v2", Name: "Telekom", Keywords: []string{"t-com", "hosting"}},
	}

	tests := []struct {
		name        string
		recipient   string
		description string
		wantID      string
	}{
		{name: "normalized name in recipient", recipient: "ACME D.O.O. Zagreb", wantID: "v1"},
		{name: "name in description", description: "uplata acme doo racun", wantID: "v1"},
		{name: "keyword match", description: "T-COM pretplata", wantID: "v2"},
		{name: "first vendor wins", recipient: "acme doo", description: "hosting", wantID: "v1"},
		{name: "no match", recipient: "Unknown", description: "stuff"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MatchVendor(tt.recipient, tt.description, vendors)
			switch {
			case tt.wantID == "" && got != nil:
				t.Errorf("MatchVendor = %+v, want nil", got)
			case tt.wantID != "" && got == nil:
				t.Errorf("MatchVendor = nil, want %s", tt.wantID)
			case tt.wantID != "" && got.ID != tt.wantID:
				t.Errorf("MatchVendor = %s, want %s", got.ID, tt.wantID)
			}
		})
	}
}
