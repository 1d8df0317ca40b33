package viewmodel_test

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/kemicky/forage/pkg/forageable"
	"github.com/kemicky/forage/pkg/stores"
	"github.com/kemicky/forage/pkg/viewmodel"
)

// ExampleForageableViewModel walks through adding, updating and listing
// records.
func ExampleForageableViewModel() {
	store, err := stores.NewSQLiteStore(stores.Config{Path: ":memory:"})
	if err != nil {
		log.Fatal(err)
	}
	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		log.Fatal(err)
	}
	if err := store.Migrate(ctx); err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	vm, err := viewmodel.NewForageableViewModel(store)
	if err != nil {
		log.Fatal(err)
	}
	defer vm.Close()

	if err := vm.AddForageable("Morel", "123 Forest Rd", true, "near oak trees"); err != nil {
		log.Fatal(err)
	}
	if err := vm.AddForageable("", "nowhere", false, ""); errors.Is(err, forageable.ErrInvalidEntry) {
		fmt.Println("rejected blank name")
	}
	if err := vm.Wait(ctx); err != nil {
		log.Fatal(err)
	}

	all, _ := vm.AllForageables().Value(ctx)
	if err := vm.UpdateForageable(all[0].ID, "Morel", "456 Forest Rd", false, ""); err != nil {
		log.Fatal(err)
	}
	_ = vm.Wait(ctx)

	f, _ := vm.RetrieveForageable(all[0].ID).Value(ctx)
	fmt.Println(f, "in season:", vm.IsInSeason(*f))
	// Output:
	// rejected blank name
	// #1 Morel (456 Forest Rd) in season: false
}
