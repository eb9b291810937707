package docstruct

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/brunobiangulo/docstruct/element"
)

func TestResultJSON(t *testing.T) {
	tests := []struct {
		name   string
		result Result
		want   string
	}{
		{"empty success", NewResult(nil), `{"success":true,"slides":[]}`},
		{"failure", FailureResult(errors.New("boom")), `{"success":false,"error":"boom"}`},
		{"nil error", FailureResult(nil), `{"success":false,"error":"unknown error"}`},
		{
			"slides",
			NewResult([]element.SlideRecord{{Slide: 2, Elements: []element.LabeledElement{
				{Type: "Text", Text: "hi", Metadata: element.Metadata{SlideNumber: 2, RawCategory: "UncategorizedText"}},
			}}}),
			`{"success":true,"slides":[{"slide":2,"elements":[{"type":"Text","text":"hi","metadata":{"slide_number":2,"filename":null,"coordinates":null,"element_id":null,"raw_category":"UncategorizedText"}}]}]}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := json.Marshal(tt.result)
			if err != nil {
				t.Fatal(err)
			}
			if string(got) != tt.want {
				t.Errorf("got  %s\nwant %s", got, tt.want)
			}
		})
	}
}

func TestResultDecode(t *testing.T) {
	var r Result
	if err := json.Unmarshal([]byte(`{"success":false,"error":"bad file"}`), &r); err != nil {
		t.Fatal(err)
	}
	if r.Success || r.Err() == nil || r.Err().Error() != "bad file" {
		t.Errorf("decoded = %+v", r)
	}
	if NewResult(nil).Err() != nil {
		t.Error("success Result should have nil Err")
	}
}
