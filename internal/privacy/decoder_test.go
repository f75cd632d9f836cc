package privacy

import (
	"reflect"
	"testing"
)

func TestDecodeDetection(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		tier  DecodeTier
		want  map[Category][]string
	}{
		{
			name:  "strict object with aliases and unknown keys",
			reply: `{"names": ["John Smith"], "email": ["a@b.co"], "passport": ["X1"], "ssn": []}`,
			tier:  TierStrict,
			want:  map[Category][]string{CategoryName: {"John Smith"}, CategoryEmail: {"a@b.co"}},
		},
		{
			name:  "object inside prose",
			reply: "Sure! Here is the result:\n```json\n{\"ssn\": [\"123-45-6789\"]}\n```\nLet me know {if} you need more.",
			tier:  TierExtracted,
			want:  map[Category][]string{CategorySSN: {"123-45-6789"}},
		},
		{
			name:  "first balanced candidate is not json",
			reply: `Pattern {like this} then {"phone": ["555-123-4567"]}`,
			tier:  TierExtracted,
			want:  map[Category][]string{CategoryPhone: {"555-123-4567"}},
		},
		{
			name:  "braces inside strings",
			reply: `note: {"address": ["Apt {4} } Main St"]} end`,
			tier:  TierExtracted,
			want:  map[Category][]string{CategoryAddress: {"Apt {4} } Main St"}},
		},
		{
			name:  "numbers keep their literal text",
			reply: `{"account_number": [12345678, "ACC-9"]}`,
			tier:  TierStrict,
			want:  map[Category][]string{CategoryAccountNumber: {"12345678", "ACC-9"}},
		},
		{
			name:  "no json at all",
			reply: "I could not find any PII in this text.",
			tier:  TierEmpty,
		},
		{
			name:  "top-level array",
			reply: `["a@b.co"]`,
			tier:  TierEmpty,
		},
		{
			name:  "truncated object",
			reply: `{"email": ["a@b.co"`,
			tier:  TierEmpty,
		},
		{
			name:  "empty reply",
			reply: "",
			tier:  TierEmpty,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, tier := DecodeDetection(tt.reply)
			if tier != tt.tier {
				t.Errorf("tier = %s, want %s", tier, tt.tier)
			}
			if len(got) != len(Categories) {
				t.Errorf("every category must be present, got %d", len(got))
			}
			for _, c := range Categories {
				want := tt.want[c]
				if want == nil {
					want = []string{}
				}
				if !reflect.DeepEqual(got[c], want) {
					t.Errorf("%s = %v, want %v", c, got[c], want)
				}
			}
		})
	}
}

func TestDecodeTierString(t *testing.T) {
	if TierStrict.String() != "strict" || TierExtracted.String() != "extracted" || TierEmpty.String() != "empty" {
		t.Error("unexpected tier names")
	}
}
