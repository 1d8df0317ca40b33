package forageable

import "fmt"

// Forageable is a foraging location record.
type Forageable struct {
	// ID is assigned by the store on first insert. Zero means not persisted.
	ID int64 `json:"id" yaml:"id"`

	// Name is the display name of the forageable.
	Name string `json:"name" yaml:"name" validate:"notblank"`

	// Address is where the forageable can be found.
	Address string `json:"address" yaml:"address" validate:"notblank"`

	// InSeason reports whether the forageable is currently in season.
	InSeason bool `json:"in_season" yaml:"in_season"`

	// Notes is optional free text.
	Notes string `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// New builds a record that has not been persisted yet.
func New(name, address string, inSeason bool, notes string) Forageable {
	return Forageable{
		Name:     name,
		Address:  address,
		InSeason: inSeason,
		Notes:    notes,
	}
}

// NewWithID builds a record that replaces the stored record with the same ID.
func NewWithID(id int64, name, address string, inSeason bool, notes string) Forageable {
	f := New(name, address, inSeason, notes)
	f.ID = id
	return f
}

// String implements fmt.Stringer.
func (f Forageable) String() string {
	return fmt.Sprintf("#%d %s (%s)", f.ID, f.Name, f.Address)
}
