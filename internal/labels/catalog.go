package labels

import (
	"fmt"
	"strings"
)

// Info is the reference text shown next to a diagnosis.
type Info struct {
	Description string `json:"description"`
	Treatment   string `json:"treatment"`
}

// Fallback is returned for labels without a catalog entry.
var Fallback = Info{
	Description: "Disease information not available.",
	Treatment:   "Consult with a local agricultural extension service.",
}

// Keyed by condition key, see conditionKey.
var conditionInfo = map[string]Info{
	"Apple_scab": {
		Description: "A fungal disease causing dark, scabby lesions on leaves and fruit.",
		Treatment:   "Remove infected leaves, apply fungicides, and ensure good air circulation.",
	},
	"Black_rot": {
		Description: "A fungal disease causing circular leaf spots and fruit rot.",
		Treatment:   "Prune infected areas, apply fungicides, and maintain orchard sanitation.",
	},
	"Cedar_apple_rust": {
		Description: "A fungal disease causing orange spots on leaves.",
		Treatment:   "Remove nearby cedar trees, apply fungicides in spring.",
	},
	"Powdery_mildew": {
		Description: "A fungal disease creating white powdery growth on leaves.",
		Treatment:   "Improve air circulation, apply sulfur-based fungicides.",
	},
	"Common_rust": {
		Description: "A fungal disease causing reddish-brown pustules on leaves.",
		Treatment:   "Use resistant varieties, apply fungicides if severe.",
	},
	"Northern_Leaf_Blight": {
		Description: "A fungal disease causing long, elliptical lesions on leaves.",
		Treatment:   "Rotate crops, use resistant hybrids, apply fungicides.",
	},
	"Cercospora_leaf_spot": {
		Description: "A fungal disease causing gray leaf spots.",
		Treatment:   "Crop rotation, fungicide application, remove infected debris.",
	},
	"Esca_(Black_Measles)": {
		Description: "A trunk disease complex causing tiger-striped leaves and spotted berries.",
		Treatment:   "Prune out infected wood in dry weather and protect pruning wounds.",
	},
	"Leaf_blight_(Isariopsis_Leaf_Spot)": {
		Description: "A fungal disease causing dark brown, angular spots that merge and dry the leaf.",
		Treatment:   "Remove fallen leaves, improve canopy airflow, apply protective fungicides.",
	},
	"Haunglongbing_(Citrus_greening)": {
		Description: "A bacterial disease spread by psyllids causing blotchy yellow leaves and bitter fruit.",
		Treatment:   "Control psyllid vectors, remove infected trees, plant certified stock.",
	},
	"Bacterial_spot": {
		Description: "A bacterial disease causing dark spots on leaves and fruit.",
		Treatment:   "Use disease-free seeds, apply copper-based bactericides.",
	},
	"Early_blight": {
		Description: "A fungal disease causing dark spots with concentric rings.",
		Treatment:   "Remove infected leaves, apply fungicides, practice crop rotation.",
	},
	"Late_blight": {
		Description: "A serious disease causing water-soaked lesions and plant death.",
		Treatment:   "Apply fungicides preventatively, destroy infected plants immediately.",
	},
	"Leaf_scorch": {
		Description: "A fungal disease causing purple blotches that dry to a scorched look.",
		Treatment:   "Remove old leaves after harvest, avoid overhead watering, apply fungicides.",
	},
	"Leaf_Mold": {
		Description: "A fungal disease causing yellow spots on upper leaf surfaces.",
		Treatment:   "Improve ventilation, reduce humidity, apply fungicides.",
	},
	"Septoria_leaf_spot": {
		Description: "A fungal disease causing circular spots with gray centers.",
		Treatment:   "Remove infected leaves, apply fungicides, mulch around plants.",
	},
	"Spider_mites": {
		Description: "Tiny mites feeding on leaf cells, leaving stippling and fine webbing.",
		Treatment:   "Spray leaves with water, release predatory mites, apply miticides if severe.",
	},
	"Target_Spot": {
		Description: "A fungal disease causing concentric ring patterns on leaves.",
		Treatment:   "Practice crop rotation, apply fungicides, maintain plant spacing.",
	},
	"Tomato_Yellow_Leaf_Curl_Virus": {
		Description: "A viral disease causing yellowing and curling of leaves.",
		Treatment:   "Control whitefly vectors, remove infected plants, use resistant varieties.",
	},
	"Tomato_mosaic_virus": {
		Description: "A viral disease causing mottled leaves and reduced fruit quality.",
		Treatment:   "Use virus-free seeds, sanitize tools, remove infected plants.",
	},
	"healthy": {
		Description: "No disease detected. The plant appears healthy!",
		Treatment:   "Continue regular maintenance and monitoring.",
	},
}

var binaryInfo = map[string]Info{
	Healthy: conditionInfo["healthy"],
	Diseased: {
		Description: "The leaf shows signs of disease.",
		Treatment:   "Isolate the plant, remove affected leaves and confirm the disease before treating.",
	},
}

// Catalog maps every label of a set to its reference text.
type Catalog struct {
	entries  map[string]Info
	fallback Info
}

// NewCatalog resolves table against set. Every table key must name a
// condition of at least one label.
func NewCatalog(set *Set, table map[string]Info, fallback Info) (*Catalog, error) {
	if fallback.Description == "" || fallback.Treatment == "" {
		return nil, fmt.Errorf("catalog fallback entry is incomplete")
	}
	used := make(map[string]bool, len(table))
	entries := make(map[string]Info, set.Len())
	for _, name := range set.names {
		key := conditionKey(name)
		if info, ok := table[key]; ok {
			entries[name] = info
			used[key] = true
		}
	}
	for key := range table {
		if !used[key] {
			return nil, fmt.Errorf("catalog entry %q matches no %s label", key, set.Variant())
		}
	}
	return &Catalog{entries: entries, fallback: fallback}, nil
}

// DefaultCatalog returns the built-in catalog for set.
func DefaultCatalog(set *Set) (*Catalog, error) {
	table := conditionInfo
	if set.Binary() {
		table = binaryInfo
	}
	return NewCatalog(set, table, Fallback)
}

// Lookup never fails; unknown labels get the fallback entry.
func (c *Catalog) Lookup(label string) Info {
	if info, ok := c.entries[label]; ok {
		return info
	}
	return c.fallback
}

// Has reports whether label has a dedicated entry.
func (c *Catalog) Has(label string) bool {
	_, ok := c.entries[label]
	return ok
}

// "Corn_(maize)___Common_rust_" -> "Common_rust",
// "Corn_(maize)___Cercospora_leaf_spot Gray_leaf_spot" -> "Cercospora_leaf_spot".
func conditionKey(label string) string {
	_, condition, ok := strings.Cut(label, separator)
	if !ok {
		return label
	}
	if i := strings.IndexByte(condition, ' '); i >= 0 {
		condition = condition[:i]
	}
	return strings.TrimRight(condition, "_")
}
