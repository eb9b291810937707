package docstruct

import (
	"encoding/json"
	"errors"

	"github.com/brunobiangulo/docstruct/element"
)

// Result is the boundary value returned by the microservice and the
// remote client: either the slide records or an error message.
type Result struct {
	Success bool                  `json:"success"`
	Slides  []element.SlideRecord `json:"slides,omitempty"`
	Error   string                `json:"error,omitempty"`
}

// NewResult wraps slide records in a successful Result.
func NewResult(slides []element.SlideRecord) Result {
	if slides == nil {
		slides = []element.SlideRecord{}
	}
	return Result{Success: true, Slides: slides}
}

// FailureResult wraps err in a failed Result. It never carries slides.
func FailureResult(err error) Result {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return Result{Error: msg}
}

// Err returns the failure as an error, or nil for a successful Result.
func (r Result) Err() error {
	if r.Success {
		return nil
	}
	return errors.New(r.Error)
}

// MarshalJSON always emits "slides" on success, even when empty, and never
// on failure.
func (r Result) MarshalJSON() ([]byte, error) {
	type wire struct {
		Success bool                   `json:"success"`
		Slides  *[]element.SlideRecord `json:"slides,omitempty"`
		Error   string                 `json:"error,omitempty"`
	}
	w := wire{Success: r.Success}
	if r.Success {
		slides := r.Slides
		if slides == nil {
			slides = []element.SlideRecord{}
		}
		w.Slides = &slides
	} else {
		w.Error = r.Error
	}
	return json.Marshal(w)
}
