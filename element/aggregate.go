package element

import (
	"sort"
	"strings"
)

// Options tunes an Aggregator.
type Options struct {
	// Clean runs Clean on each element's text before classification.
	Clean bool
}

// Aggregator groups raw elements into slide records.
type Aggregator struct {
	opts Options
}

// NewAggregator returns an Aggregator with the given options.
func NewAggregator(opts Options) *Aggregator {
	return &Aggregator{opts: opts}
}

// Aggregate groups elements with default options: text is trimmed only.
func Aggregate(elements []RawElement) []SlideRecord {
	return NewAggregator(Options{}).Aggregate(elements)
}

// Aggregate trims, classifies and buckets elements by slide number.
// Elements whose text is empty after trimming are dropped. The returned
// records are sorted by ascending slide number and keep arrival order
// within each slide.
func (a *Aggregator) Aggregate(elements []RawElement) []SlideRecord {
	buckets := make(map[int][]LabeledElement)

	for _, el := range elements {
		text := strings.TrimSpace(el.Text)
		if a.opts.Clean {
			text = Clean(text)
		}
		if text == "" {
			continue
		}

		slide := el.PageNumber
		if slide < 0 {
			slide = 0
		}
		category := el.Category
		if category == "" {
			category = LabelUnknown
		}

		buckets[slide] = append(buckets[slide], LabeledElement{
			Type: Classify(text, category),
			Text: text,
			Metadata: Metadata{
				SlideNumber: slide,
				Filename:    optional(el.Filename),
				Coordinates: el.Coordinates,
				ElementID:   optional(el.ElementID),
				RawCategory: category,
			},
		})
	}

	nums := make([]int, 0, len(buckets))
	for n := range buckets {
		nums = append(nums, n)
	}
	sort.Ints(nums)

	slides := make([]SlideRecord, 0, len(nums))
	for _, n := range nums {
		slides = append(slides, SlideRecord{Slide: n, Elements: buckets[n]})
	}
	return slides
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// CountLabels returns how many elements carry each label across slides.
func CountLabels(slides []SlideRecord) map[string]int {
	counts := make(map[string]int)
	for _, s := range slides {
		for _, el := range s.Elements {
			counts[el.Type]++
		}
	}
	return counts
}

// Composition returns the normalised label histogram of a slide, one
// dimension per entry of Labels. Labels outside the vocabulary count towards
// Unknown. An empty slide yields the zero vector.
func Composition(s SlideRecord) []float32 {
	vec := make([]float32, len(Labels))
	if len(s.Elements) == 0 {
		return vec
	}
	index := make(map[string]int, len(Labels))
	for i, l := range Labels {
		index[l] = i
	}
	unknown := index[LabelUnknown]
	for _, el := range s.Elements {
		i, ok := index[el.Type]
		if !ok {
			i = unknown
		}
		vec[i]++
	}
	n := float32(len(s.Elements))
	for i := range vec {
		vec[i] /= n
	}
	return vec
}
