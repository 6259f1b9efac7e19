package importer

import (
	"strings"

	"github.com/dnovak/invoice-finder/internal/model"
)

// NormalizeVendor reduces a vendor name to lowercase alphanumerics so
// that punctuation and legal-form suffixes ("d.o.o.") do not break
// matching.
func NormalizeVendor(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// MatchVendor finds the first vendor whose normalized name appears in
// the transaction's recipient or description, or whose keywords do. Nil
// when nothing matches.
func MatchVendor(recipient, description string, vendors []model.Vendor) *model.Vendor {
	searchText := strings.ToLower(recipient + " " + description)
	normalized := NormalizeVendor(searchText)

	for i := range vendors {
		v := &vendors[i]
		if name := NormalizeVendor(v.Name); name != "" && strings.Contains(normalized, name) {
			return v
		}
		for _, keyword := range v.Keywords {
			if keyword != "" && strings.Contains(searchText, strings.ToLower(keyword)) {
				return v
			}
		}
	}
	return nil
}
