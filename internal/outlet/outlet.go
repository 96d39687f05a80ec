// Package outlet defines the closed set of outlet identities and the
// per-outlet stock status vocabulary.
package outlet

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ID identifies one physical outlet. All internal logic operates on this
// enum; free-text outlet names are canonicalized once at the system boundary.
type ID string

const (
	// KuwaitCity is the flagship retail outlet.
	KuwaitCity ID = "kuwait-city"
	// Mall360 is the 360 Mall retail outlet.
	Mall360 ID = "360-mall"
	// VibeComplex is the Vibe Complex drive-through outlet.
	VibeComplex ID = "vibe-complex"
	// TaibaHospital is the Taiba Hospital kiosk.
	TaibaHospital ID = "taiba-hospital"
	// CentralKitchen is the production facility supplying the retail outlets.
	CentralKitchen ID = "central-kitchen"
)

// All lists every outlet in a stable order.
var All = []ID{KuwaitCity, Mall360, VibeComplex, TaibaHospital, CentralKitchen}

// ErrUnknownOutlet indicates a name that canonicalizes to no known outlet.
var ErrUnknownOutlet = errors.New("outlet: unknown outlet")

// synonyms maps the free-text spellings seen in upstream data to outlet IDs.
// The legacy system matched these ad hoc at every call site; here is the one
// place the mapping lives.
var synonyms = map[string]ID{
	"kuwait city":     KuwaitCity,
	"kuwaitcity":      KuwaitCity,
	"kc":              KuwaitCity,
	"360 mall":        Mall360,
	"360mall":         Mall360,
	"360":             Mall360,
	"mall":            Mall360,
	"vibe complex":    VibeComplex,
	"vibes complex":   VibeComplex,
	"vibe":            VibeComplex,
	"vibes":           VibeComplex,
	"drive":           VibeComplex,
	"drive thru":      VibeComplex,
	"taiba":           TaibaHospital,
	"taiba hospital":  TaibaHospital,
	"central kitchen": CentralKitchen,
	"centralkitchen":  CentralKitchen,
	"ck":              CentralKitchen,
	"kitchen":         CentralKitchen,
}

// Parse canonicalizes a free-text outlet name into an ID.
func Parse(name string) (ID, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.Join(strings.Fields(key), " ")
	if id, ok := synonyms[key]; ok {
		return id, nil
	}
	for _, id := range All {
		if key == string(id) {
			return id, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownOutlet, name)
}

// Valid reports whether the ID is one of the five known outlets.
func (id ID) Valid() bool {
	for _, known := range All {
		if id == known {
			return true
		}
	}
	return false
}

// Code returns the short business code used in document numbers.
func (id ID) Code() string {
	switch id {
	case KuwaitCity:
		return "KWC"
	case Mall360:
		return "M360"
	case VibeComplex:
		return "VIBE"
	case TaibaHospital:
		return "TAIBA"
	case CentralKitchen:
		return "CK"
	}
	return "UNKNOWN"
}

var titleCaser = cases.Title(language.English)

// DisplayName renders the outlet name for documents and notifications.
func (id ID) DisplayName() string {
	switch id {
	case Mall360:
		return "360 Mall"
	case CentralKitchen:
		return "Central Kitchen"
	}
	return titleCaser.String(strings.ReplaceAll(string(id), "-", " "))
}

// StatusScheme derives the stored stock status for one outlet. Retail outlets
// and the Central Kitchen historically use different vocabularies; the data
// legitimately differs per outlet type and is not unified.
type StatusScheme struct {
	Out string
	Low string
	OK  string
}

var (
	retailScheme  = StatusScheme{Out: "Out of Stock", Low: "Low Stock", OK: "In Stock"}
	kitchenScheme = StatusScheme{Out: "Maintenance", Low: "Active", OK: "Active"}
)

// Scheme returns the status vocabulary for the outlet.
func (id ID) Scheme() StatusScheme {
	if id == CentralKitchen {
		return kitchenScheme
	}
	return retailScheme
}

// Derive computes the status label for a stock level under this scheme.
func (s StatusScheme) Derive(currentStock, reorderPoint float64) string {
	switch {
	case currentStock <= 0:
		return s.Out
	case currentStock <= reorderPoint:
		return s.Low
	default:
		return s.OK
	}
}
