package domain

import "fmt"

// FieldType names the part of a product row that has its own progress bar
type FieldType string

const (
	FieldShort   FieldType = "short"
	FieldLong    FieldType = "long"
	FieldImages  FieldType = "images"
	FieldConfirm FieldType = "confirm"

	// FieldAll is only valid on error events and stands for short and long
	FieldAll FieldType = "all"
)

// Fields lists the addressable field types in row order
var Fields = []FieldType{FieldShort, FieldLong, FieldImages, FieldConfirm}

// Valid reports whether f addresses a single progress bar
func (f FieldType) Valid() bool {
	switch f {
	case FieldShort, FieldLong, FieldImages, FieldConfirm:
		return true
	}
	return false
}

// IsDescription reports whether f is a generated text field
func (f FieldType) IsDescription() bool {
	return f == FieldShort || f == FieldLong
}

// Expand resolves the aggregate marker into concrete fields
func (f FieldType) Expand() []FieldType {
	if f == FieldAll {
		return []FieldType{FieldShort, FieldLong}
	}
	return []FieldType{f}
}

// Phase is the progress phase of one field key
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseGenerating Phase = "generating"
	PhaseCompleted  Phase = "completed"
	PhaseError      Phase = "error"
)

// IsTerminal returns true for completed and error
func (p Phase) IsTerminal() bool {
	return p == PhaseCompleted || p == PhaseError
}

// Valid reports whether p is a known phase
func (p Phase) Valid() bool {
	switch p {
	case PhaseIdle, PhaseGenerating, PhaseCompleted, PhaseError:
		return true
	}
	return false
}

// FieldKey addresses one progress bar: a row position and a field.
// Positions are only stable until the next load or clear.
type FieldKey struct {
	Index int
	Type  FieldType
}

// Key builds a FieldKey
func Key(index int, field FieldType) FieldKey {
	return FieldKey{Index: index, Type: field}
}

func (k FieldKey) String() string {
	return fmt.Sprintf("%d/%s", k.Index, k.Type)
}

// ProgressState is what a progress bar shows
type ProgressState struct {
	Percent int    `json:"percent"`
	Phase   Phase  `json:"phase"`
	Label   string `json:"label"`
	Seq     uint64 `json:"seq"`
}

// IdleState is the state of a field nobody has touched yet
func IdleState() ProgressState {
	return ProgressState{Phase: PhaseIdle}
}

// Progress labels shown on bars and buttons
const (
	LabelGenerating = "Generating..."
	LabelUploading  = "Uploading..."
	LabelConfirming = "Confirming..."
	LabelDone       = "Done"
	LabelError      = "Error"
	LabelConfirm    = "Confirm"
	LabelConfirmed  = "Confirmed"
)
