package table

import (
	"errors"

	"github.com/kode4food/vantage/closer"
	"github.com/kode4food/vantage/column"
	"github.com/kode4food/vantage/message"
)

type (
	// Fields maps column names to the values a row carries for them
	Fields map[string]any

	// Row is a single keyed entry of a Table. Version is stamped by the
	// owning Table on every mutation and increases monotonically across
	// the Table as a whole
	Row struct {
		Key     string
		Version uint64
		Fields  Fields
	}

	// Kind describes what a change notification did to a row
	Kind int

	// Event is a single change notification emitted by a Table. Readers
	// resolve the row itself against a snapshot; the Event only conveys
	// which key changed, how, and at which table version
	Event struct {
		Key     string
		Kind    Kind
		Version uint64
	}

	// Table associates string keys with versioned Rows conforming to a
	// fixed column Set. A Table exclusively owns its rows; mutation goes
	// through Upsert and Delete, which stamp the table-wide version and
	// notify every subscribed listener
	Table interface {
		closer.Closer

		// Name returns the Table's name, unique within its Module
		Name() string

		// KeyColumn returns the name of the column holding the row key
		KeyColumn() string

		// Columns returns the Table's schema
		Columns() *column.Set

		// Get returns the Row stored under the provided key
		Get(key string) (Row, bool)

		// Upsert inserts or merges a Row under the provided key,
		// returning the version stamped onto it
		Upsert(key string, fields Fields) (uint64, error)

		// Delete removes the Row stored under the provided key,
		// returning the table version of the removal
		Delete(key string) (uint64, error)

		// Version returns the Table's current version
		Version() uint64

		// Count returns the number of Rows in the Table
		Count() int

		// Keys returns the keys of all Rows in the Table
		Keys() []string

		// Snapshot returns a consistent copy of all Rows, taken at a
		// single table version
		Snapshot() ([]Row, uint64)

		// Events returns a new independent listener over this Table's
		// change notifications
		Events() message.ClosingReceiver[Event]
	}

	// Definition is the immutable descriptor from which a live Table is
	// realized during module assembly
	Definition struct {
		Name      string
		KeyColumn string
		Columns   *column.Set
	}

	// Definitions is an append-only realization list of Definitions,
	// addressable by name
	Definitions []Definition
)

// Change notification kinds
const (
	RowAdded Kind = iota
	RowUpdated
	RowRemoved
)

// Error messages
var (
	ErrKeyNotFound   = errors.New("key not found in table")
	ErrUnknownColumn = errors.New("column not found in table")
	ErrReadOnly      = errors.New("table is not directly writable")
)

// Get resolves a Definition by name
func (d Definitions) Get(name string) (Definition, bool) {
	for _, def := range d {
		if def.Name == name {
			return def, true
		}
	}
	return Definition{}, false
}

func (k Kind) String() string {
	switch k {
	case RowAdded:
		return "added"
	case RowUpdated:
		return "updated"
	case RowRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Copy returns an independent copy of the Fields
func (f Fields) Copy() Fields {
	res := make(Fields, len(f))
	for k, v := range f {
		res[k] = v
	}
	return res
}
