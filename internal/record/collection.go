package record

import (
	"fmt"
	"strings"
)

// Collection names a set of records of one type.
type Collection string

const (
	// Notes holds note documents.
	Notes Collection = "notes"
	// Notebooks holds notebook documents.
	Notebooks Collection = "notebooks"
	// Tags holds tag documents.
	Tags Collection = "tags"
	// Files holds file attachment entries.
	Files Collection = "files"
)

// Ordered returns every collection in sync order. Passes walk this list
// one collection at a time.
func Ordered() []Collection {
	return []Collection{Notes, Notebooks, Tags, Files}
}

// String returns the collection name.
func (c Collection) String() string {
	return string(c)
}

// Valid reports whether c is one of the known collections.
func (c Collection) Valid() bool {
	switch c {
	case Notes, Notebooks, Tags, Files:
		return true
	default:
		return false
	}
}

// ParseCollection converts a name such as "notes" or "Notes" to a Collection.
func ParseCollection(name string) (Collection, error) {
	c := Collection(strings.ToLower(strings.TrimSpace(name)))
	if !c.Valid() {
		return "", fmt.Errorf("unknown collection %q", name)
	}
	return c, nil
}
