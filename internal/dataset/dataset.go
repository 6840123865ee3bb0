// Package dataset defines the closed set of mammography datasets that clsprep
// knows how to prepare.
package dataset

import (
	"errors"
	"fmt"
)

// ID identifies a raw dataset. The string value doubles as the directory name
// under the raw and cleaned data roots.
type ID string

// Known dataset identifiers.
const (
	RSNA      ID = "rsna-breast-cancer-detection"
	VinDr     ID = "vindr"
	MiniDDSM  ID = "miniddsm"
	CMMD      ID = "cmmd"
	CDDCESM   ID = "cddcesm"
	BMCD      ID = "bmcd"
	Synthetic ID = "synthetic"
)

// ErrUnknown is returned by Parse for names outside the known set.
var ErrUnknown = errors.New("unknown dataset")

// all lists every identifier in declaration order.
var all = []ID{RSNA, VinDr, MiniDDSM, CMMD, CDDCESM, BMCD, Synthetic}

// defaults is the processing order used when no dataset is requested.
// Synthetic has to be asked for by name.
var defaults = []ID{RSNA, VinDr, MiniDDSM, CMMD, CDDCESM, BMCD}

// All returns every known identifier. The returned slice is a copy.
func All() []ID {
	return append([]ID(nil), all...)
}

// Defaults returns the identifiers processed when none are requested.
// The returned slice is a copy.
func Defaults() []ID {
	return append([]ID(nil), defaults...)
}

// Parse converts a name into an ID.
func Parse(name string) (ID, error) {
	for _, id := range all {
		if string(id) == name {
			return id, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknown, name)
}

// ParseAll converts names into IDs, preserving order.
// It stops at the first unknown name.
func ParseAll(names []string) ([]ID, error) {
	ids := make([]ID, 0, len(names))
	for _, name := range names {
		id, err := Parse(name)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// String implements fmt.Stringer.
func (id ID) String() string {
	return string(id)
}

// IsDefault reports whether the dataset is part of the default list.
func (id ID) IsDefault() bool {
	for _, d := range defaults {
		if d == id {
			return true
		}
	}
	return false
}

// SupportsPercPos reports whether Stage 1 of the dataset honours the
// positive-case fraction filter.
func (id ID) SupportsPercPos() bool {
	return id == RSNA
}
