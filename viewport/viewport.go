package viewport

import (
	"errors"

	"github.com/google/uuid"

	"github.com/kode4food/vantage/closer"
	"github.com/kode4food/vantage/column"
	"github.com/kode4food/vantage/table"
)

type (
	// State tracks a Viewport through its lifecycle. A Viewport is
	// Created before its first window computes, Active in steady state,
	// Updating while a client-requested change recomputes the window,
	// and Closed terminally
	State int32

	// Range is the half-open row window [From, To) a client is looking
	// at
	Range struct {
		From int
		To   int
	}

	// SortKey orders a window by a single column
	SortKey struct {
		Column     string
		Descending bool
	}

	// Sort is an ordered list of SortKeys. Ties after every SortKey are
	// broken by row key, so rank is always deterministic
	Sort []SortKey

	// Settings captures everything a client chooses about its Viewport:
	// the visible Range, a filter expression over row fields, the Sort
	// order, and the projected column Set. A nil Columns projects the
	// table's own schema
	Settings struct {
		Range   Range
		Filter  string
		Sort    Sort
		Columns *column.Set
	}

	// DeltaKind describes what a Delta did to the visible window
	DeltaKind int

	// Delta is one incremental change to a client's visible window. Row
	// deltas carry the projected row and its rank within the window;
	// WindowReplaced carries the entire new window. Version is the table
	// version the Delta was computed at, and never decreases across the
	// Deltas a client observes
	Delta struct {
		Kind    DeltaKind
		Version uint64
		Index   int
		Row     table.Row
		Rows    []table.Row
	}

	// Viewport is a client's live, windowed, filtered, sorted, projected
	// subscription over a table or join. All parameter changes are
	// validated synchronously and recomputed without tearing the
	// subscription down. Closing a Viewport guarantees no further Deltas
	// are delivered
	Viewport interface {
		closer.Closer

		// ID returns the Viewport's unique identity
		ID() uuid.UUID

		// State returns the Viewport's current lifecycle State
		State() State

		// Deltas returns the channel over which window changes flow
		Deltas() <-chan Delta

		// SetRange changes the visible row Range
		SetRange(Range) error

		// SetFilter changes the filter expression
		SetFilter(string) error

		// SetSort changes the Sort order
		SetSort(Sort) error

		// SetColumns changes the projected column Set
		SetColumns(*column.Set) error

		// Window returns the currently visible, projected window
		Window() []table.Row
	}
)

// Viewport lifecycle states
const (
	Created State = iota
	Active
	Updating
	Closed
)

// Delta kinds
const (
	RowAdded DeltaKind = iota
	RowUpdated
	RowRemoved
	RowMoved
	WindowReplaced
)

// Error messages
var (
	ErrInvalidRange      = errors.New("viewport range is invalid")
	ErrBadFilter         = errors.New("cannot compile viewport filter")
	ErrUnknownSortColumn = errors.New("sort column not defined for table")
	ErrUnknownFilterColumn = errors.New(
		"filter column not defined for table",
	)
	ErrViewportClosed = errors.New("viewport is closed")
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Active:
		return "active"
	case Updating:
		return "updating"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

func (k DeltaKind) String() string {
	switch k {
	case RowAdded:
		return "added"
	case RowUpdated:
		return "updated"
	case RowRemoved:
		return "removed"
	case RowMoved:
		return "moved"
	case WindowReplaced:
		return "replaced"
	default:
		return "unknown"
	}
}
