package privacy

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestPlaceholder(t *testing.T) {
	if got := Placeholder(CategoryCreditCard, 12); got != "[CREDIT_CARD_12]" {
		t.Errorf("got %s", got)
	}

	tests := []struct {
		token string
		cat   Category
		n     int
		ok    bool
	}{
		{"[CREDIT_CARD_12]", CategoryCreditCard, 12, true},
		{"[DATE_OF_BIRTH_1]", CategoryDateOfBirth, 1, true},
		{"[NAME_0]", "", 0, false},
		{"[PASSPORT_1]", "", 0, false},
		{"[NAME_1] ", "", 0, false},
		{"NAME_1", "", 0, false},
	}
	for _, tt := range tests {
		c, n, ok := ParsePlaceholder(tt.token)
		if ok != tt.ok || c != tt.cat || n != tt.n {
			t.Errorf("ParsePlaceholder(%q) = %q, %d, %v", tt.token, c, n, ok)
		}
	}
}

func TestMappingJSON(t *testing.T) {
	t.Run("marshal keeps insertion order", func(t *testing.T) {
		m := NewMapping()
		m.Set("[SSN_1]", "123-45-6789")
		m.Set("[EMAIL_1]", "a@b.co")
		m.Set("[NAME_1]", `Jo "JJ" Doe`)

		data, err := json.Marshal(m)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		want := `{"[SSN_1]":"123-45-6789","[EMAIL_1]":"a@b.co","[NAME_1]":"Jo \"JJ\" Doe"}`
		if string(data) != want {
			t.Errorf("got %s, want %s", data, want)
		}
	})

	t.Run("empty and nil marshal to an object", func(t *testing.T) {
		data, _ := json.Marshal(NewMapping())
		if string(data) != "{}" {
			t.Errorf("got %s", data)
		}
		var nilMapping *Mapping
		data, _ = nilMapping.MarshalJSON()
		if string(data) != "{}" {
			t.Errorf("got %s", data)
		}
	})

	t.Run("unmarshal keeps document order", func(t *testing.T) {
		var m Mapping
		if err := json.Unmarshal([]byte(`{"[NAME_2]":"Bob","[NAME_1]":"Alice"}`), &m); err != nil {
			t.Fatalf("Unmarshal: %v", err)
		}
		if got := m.Placeholders(); !reflect.DeepEqual(got, []string{"[NAME_2]", "[NAME_1]"}) {
			t.Errorf("got %v", got)
		}
		if got := m.Detected()[CategoryName]; !reflect.DeepEqual(got, []string{"Bob", "Alice"}) {
			t.Errorf("got %v", got)
		}
	})

	t.Run("unmarshal rejects non-string values", func(t *testing.T) {
		var m Mapping
		if err := json.Unmarshal([]byte(`{"[NAME_1]":42}`), &m); err == nil {
			t.Error("expected error")
		}
		if err := json.Unmarshal([]byte(`["[NAME_1]"]`), &m); err == nil {
			t.Error("expected error for array")
		}
	})

	t.Run("embedded in a struct", func(t *testing.T) {
		var req struct {
			Text    string   `json:"text"`
			Mapping *Mapping `json:"mapping"`
		}
		if err := json.Unmarshal([]byte(`{"text":"hi [NAME_1]","mapping":{"[NAME_1]":"Ann"}}`), &req); err != nil {
			t.Fatalf("Unmarshal: %v", err)
		}
		if got := Unmask(req.Text, req.Mapping); got != "hi Ann" {
			t.Errorf("got %q", got)
		}
	})
}

func TestMappingFromMap(t *testing.T) {
	m := MappingFromMap(map[string]string{
		"[NAME_1]":   "n",
		"[EMAIL_10]": "e10",
		"[EMAIL_2]":  "e2",
		"[EMAIL_1]":  "e1",
		"[CUSTOM]":   "c",
	})
	want := []string{"[EMAIL_1]", "[EMAIL_2]", "[EMAIL_10]", "[NAME_1]", "[CUSTOM]"}
	if got := m.Placeholders(); !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestMappingSetOverwrites(t *testing.T) {
	m := NewMapping()
	m.Set("[NAME_1]", "a")
	m.Set("[NAME_1]", "b")
	if m.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", m.Len())
	}
	if got, _ := m.Get("[NAME_1]"); got != "b" {
		t.Errorf("got %q", got)
	}

	c := m.Clone()
	c.Set("[NAME_2]", "c")
	if m.Len() != 1 {
		t.Error("clone shares state with the original")
	}
}
