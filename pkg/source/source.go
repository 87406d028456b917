// Package source defines the boundary to the source directory: the entry
// values a snapshot is made of and the Reader that produces them.
// Connection lifecycle (bind, TLS trust policy) belongs to the adapter
// implementing Reader, not to the engine.
package source

import "context"

// Attribute is one attribute value of a directory entry. Binary attributes
// keep their raw bytes; everything else uses the natural string form.
type Attribute struct {
	Value  string
	Raw    []byte
	Binary bool
}

// Entry is one entry of a source directory snapshot.
type Entry struct {
	// DN is the entry's distinguished name, kept for logging.
	DN string

	attrs map[string]Attribute
}

// NewEntry creates an entry with the given attribute values.
func NewEntry(dn string, attrs map[string]Attribute) Entry {
	return Entry{DN: dn, attrs: attrs}
}

// Attribute returns the named attribute value and whether it exists.
func (e Entry) Attribute(name string) (Attribute, bool) {
	a, ok := e.attrs[name]
	return a, ok
}

// Reader produces a snapshot of the source directory.
type Reader interface {
	// Search returns the entries below base matching filter, carrying the
	// named attributes. The returned slice is the full snapshot: anything
	// absent from it is considered removed from the source.
	Search(ctx context.Context, base, filter string, attributes []string) ([]Entry, error)

	// Close releases the underlying directory connection.
	Close() error
}
