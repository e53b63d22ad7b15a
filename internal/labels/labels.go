// Package labels holds the class label sets the classifier was trained on
// and the reference text shown for each diagnosis.
package labels

import (
	"fmt"
	"strings"
)

type Variant string

const (
	// VariantMulticlass is the 38-class PlantVillage classifier.
	VariantMulticlass Variant = "multiclass"
	// VariantBinary is the healthy/diseased sigmoid classifier.
	VariantBinary Variant = "binary"
)

const (
	Healthy  = "Healthy"
	Diseased = "Diseased"
)

// Order matches the output units of the trained network.
var plantVillage = []string{
	"Apple___Apple_scab", "Apple___Black_rot", "Apple___Cedar_apple_rust", "Apple___healthy",
	"Blueberry___healthy", "Cherry_(including_sour)___Powdery_mildew", "Cherry_(including_sour)___healthy",
	"Corn_(maize)___Cercospora_leaf_spot Gray_leaf_spot", "Corn_(maize)___Common_rust_",
	"Corn_(maize)___Northern_Leaf_Blight", "Corn_(maize)___healthy", "Grape___Black_rot",
	"Grape___Esca_(Black_Measles)", "Grape___Leaf_blight_(Isariopsis_Leaf_Spot)", "Grape___healthy",
	"Orange___Haunglongbing_(Citrus_greening)", "Peach___Bacterial_spot", "Peach___healthy",
	"Pepper,_bell___Bacterial_spot", "Pepper,_bell___healthy", "Potato___Early_blight",
	"Potato___Late_blight", "Potato___healthy", "Raspberry___healthy", "Soybean___healthy",
	"Squash___Powdery_mildew", "Strawberry___Leaf_scorch", "Strawberry___healthy",
	"Tomato___Bacterial_spot", "Tomato___Early_blight", "Tomato___Late_blight",
	"Tomato___Leaf_Mold", "Tomato___Septoria_leaf_spot", "Tomato___Spider_mites Two-spotted_spider_mite",
	"Tomato___Target_Spot", "Tomato___Tomato_Yellow_Leaf_Curl_Virus", "Tomato___Tomato_mosaic_virus",
	"Tomato___healthy",
}

// Binary output is P(Diseased); Healthy is listed first so it wins a 0.5 tie.
var binary = []string{Healthy, Diseased}

// Set is an ordered, immutable list of class labels.
type Set struct {
	variant Variant
	names   []string
	index   map[string]int
}

// ForVariant returns the label set for v.
func ForVariant(v Variant) (*Set, error) {
	switch v {
	case VariantMulticlass:
		return newSet(v, plantVillage), nil
	case VariantBinary:
		return newSet(v, binary), nil
	default:
		return nil, fmt.Errorf("unknown model variant %q", v)
	}
}

// MustForVariant is ForVariant for package-level and test setup.
func MustForVariant(v Variant) *Set {
	s, err := ForVariant(v)
	if err != nil {
		panic(err)
	}
	return s
}

// New builds a set from arbitrary names, used for custom exports.
func New(v Variant, names []string) (*Set, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("label set is empty")
	}
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if n == "" {
			return nil, fmt.Errorf("label set contains an empty name")
		}
		if seen[n] {
			return nil, fmt.Errorf("duplicate label %q", n)
		}
		seen[n] = true
	}
	return newSet(v, names), nil
}

func newSet(v Variant, names []string) *Set {
	s := &Set{
		variant: v,
		names:   append([]string(nil), names...),
		index:   make(map[string]int, len(names)),
	}
	for i, n := range s.names {
		s.index[n] = i
	}
	return s
}

func (s *Set) Variant() Variant { return s.variant }

func (s *Set) Len() int { return len(s.names) }

func (s *Set) Name(i int) string { return s.names[i] }

// Names returns a copy of the labels in output order.
func (s *Set) Names() []string {
	return append([]string(nil), s.names...)
}

// Index returns the position of name, or -1.
func (s *Set) Index(name string) int {
	if i, ok := s.index[name]; ok {
		return i
	}
	return -1
}

func (s *Set) Contains(name string) bool {
	_, ok := s.index[name]
	return ok
}

func (s *Set) Binary() bool { return s.variant == VariantBinary }

// OutputSize is the width of the network output for this set.
func (s *Set) OutputSize() int {
	if s.Binary() {
		return 1
	}
	return len(s.names)
}

// Parsed is a label split for display.
type Parsed struct {
	Plant     string `json:"plant,omitempty"`
	Condition string `json:"condition"`
	Healthy   bool   `json:"healthy"`
}

const separator = "___"

// Parse splits "Plant___Condition" labels. Labels without a plant part
// (the binary set) keep the whole name as the condition.
func Parse(label string) Parsed {
	plant, condition, ok := strings.Cut(label, separator)
	if !ok {
		return Parsed{
			Condition: label,
			Healthy:   strings.EqualFold(label, Healthy),
		}
	}
	return Parsed{
		Plant:     display(plant),
		Condition: display(condition),
		Healthy:   strings.EqualFold(condition, "healthy"),
	}
}

func display(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "_", " "))
}

// Display renders a label as "Plant - Condition".
func Display(label string) string {
	p := Parse(label)
	if p.Plant == "" {
		return p.Condition
	}
	return p.Plant + " - " + p.Condition
}
