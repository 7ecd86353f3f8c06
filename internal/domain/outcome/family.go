package outcome

import (
	"fmt"
	"strings"

	"github.com/alem-hub/attainment-engine/internal/domain/shared"
)

// Family is one of the four standard taxonomies an outcome may be mapped to.
type Family string

const (
	FamilySO   Family = "SO"   // student outcomes
	FamilySDG  Family = "SDG"  // sustainable development goal skills
	FamilyIGA  Family = "IGA"  // institutional graduate attributes
	FamilyCDIO Family = "CDIO" // CDIO skills
)

// Families lists every family in the order used for mapped_to output.
var Families = []Family{FamilySO, FamilyCDIO, FamilySDG, FamilyIGA}

// ParseFamily parses a family name case-insensitively.
func ParseFamily(s string) (Family, error) {
	f := Family(strings.ToUpper(strings.TrimSpace(s)))
	if !f.IsValid() {
		return "", shared.ErrInvalidFamily.WithScope(fmt.Sprintf("family=%q", s))
	}
	return f, nil
}

// IsValid reports whether f is a known family.
func (f Family) IsValid() bool {
	switch f {
	case FamilySO, FamilySDG, FamilyIGA, FamilyCDIO:
		return true
	}
	return false
}

// String returns the family name.
func (f Family) String() string { return string(f) }

// Order returns the position of f in mapped_to output.
func (f Family) Order() int {
	for i, v := range Families {
		if v == f {
			return i
		}
	}
	return len(Families)
}

// ──────────────────────────────────────────────────────────────────────────────
// Storage layout
// ──────────────────────────────────────────────────────────────────────────────

// Layout names the tables and columns that hold one family.
// Values are fixed identifiers, never user input.
type Layout struct {
	MappingTable   string
	TargetColumn   string
	ReferenceTable string
	CodeColumn     string
	DescColumn     string
}

var layouts = map[Family]Layout{
	FamilySO: {
		MappingTable:   "ilo_so_mappings",
		TargetColumn:   "so_id",
		ReferenceTable: "student_outcomes",
		CodeColumn:     "so_code",
		DescColumn:     "description",
	},
	FamilySDG: {
		MappingTable:   "ilo_sdg_mappings",
		TargetColumn:   "sdg_id",
		ReferenceTable: "sdg_skills",
		CodeColumn:     "sdg_code",
		DescColumn:     "description",
	},
	FamilyIGA: {
		MappingTable:   "ilo_iga_mappings",
		TargetColumn:   "iga_id",
		ReferenceTable: "institutional_graduate_attributes",
		CodeColumn:     "iga_code",
		DescColumn:     "description",
	},
	FamilyCDIO: {
		MappingTable:   "ilo_cdio_mappings",
		TargetColumn:   "cdio_id",
		ReferenceTable: "cdio_skills",
		CodeColumn:     "cdio_code",
		DescColumn:     "description",
	},
}

// Layout returns the storage layout of the family.
func (f Family) Layout() Layout {
	return layouts[f]
}

// StandardFilter restricts resolution to outcomes mapped to one family target.
type StandardFilter struct {
	Family   Family
	TargetID int64
}

// Validate checks the filter.
func (sf StandardFilter) Validate() error {
	if !sf.Family.IsValid() {
		return shared.ErrInvalidFamily.WithScope(fmt.Sprintf("family=%q", sf.Family))
	}
	if sf.TargetID <= 0 {
		return shared.NewDomainError("outcome", "Validate", shared.ErrInvalidArgument, "standard filter target id must be positive")
	}
	return nil
}

// Key returns a stable string form used in cache scopes.
func (sf StandardFilter) Key() string {
	return fmt.Sprintf("%s:%d", sf.Family, sf.TargetID)
}
