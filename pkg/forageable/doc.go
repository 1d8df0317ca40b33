// Package forageable defines the Forageable record, the field validation
// applied before a record is written, and the classified error type shared by
// the store, the task scope and the view model.
package forageable
