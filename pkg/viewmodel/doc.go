// Package viewmodel is the facade presentation code talks to.
//
// A ForageableViewModel turns raw field input into records, validates them
// and hands each mutation to its own task scope so callers never block on
// storage. Reads are live query handles taken straight from the storage
// gateway; the view model keeps no cached records of its own.
package viewmodel
