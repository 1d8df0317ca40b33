package viewmodel

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/kemicky/forage/pkg/forageable"
	"github.com/kemicky/forage/pkg/stores"
	"github.com/kemicky/forage/pkg/tasks"
	"github.com/kemicky/forage/pkg/telemetry"
)

func setupTestViewModel(t *testing.T) (*ForageableViewModel, *stores.SQLiteStore) {
	t.Helper()

	store, err := stores.NewSQLiteStore(stores.Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	vm, err := NewForageableViewModel(store)
	if err != nil {
		t.Fatalf("failed to create view model: %v", err)
	}
	t.Cleanup(func() { _ = vm.Close() })

	return vm, store
}

func waitForMutations(t *testing.T, vm *ForageableViewModel) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := vm.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	select {
	case f := <-vm.Failures():
		t.Fatalf("unexpected mutation failure: %v", f.Err)
	default:
	}
}

func listAll(t *testing.T, vm *ForageableViewModel) []forageable.Forageable {
	t.Helper()
	all, err := vm.AllForageables().Value(context.Background())
	if err != nil {
		t.Fatalf("AllForageables().Value() error = %v", err)
	}
	return all
}

func retrieve(t *testing.T, vm *ForageableViewModel, id int64) *forageable.Forageable {
	t.Helper()
	f, err := vm.RetrieveForageable(id).Value(context.Background())
	if err != nil {
		t.Fatalf("RetrieveForageable(%d).Value() error = %v", id, err)
	}
	return f
}

func TestNewForageableViewModelRequiresGateway(t *testing.T) {
	if _, err := NewForageableViewModel(nil); !errors.Is(err, ErrNoGateway) {
		t.Errorf("NewForageableViewModel(nil) error = %v, want ErrNoGateway", err)
	}
}

func TestIsValidEntry(t *testing.T) {
	vm, _ := setupTestViewModel(t)

	tests := []struct {
		name    string
		fName   string
		address string
		want    bool
	}{
		{"both set", "Morel", "123 Forest Rd", true},
		{"padded", "  Morel ", "\t123 Forest Rd\n", true},
		{"empty name", "", "123 Forest Rd", false},
		{"blank name", "   ", "123 Forest Rd", false},
		{"empty address", "Morel", "", false},
		{"blank address", "Morel", " \t ", false},
		{"both empty", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := vm.IsValidEntry(tt.fName, tt.address); got != tt.want {
				t.Errorf("IsValidEntry(%q, %q) = %v, want %v", tt.fName, tt.address, got, tt.want)
			}
		})
	}
}

func TestIsInSeason(t *testing.T) {
	vm, _ := setupTestViewModel(t)

	for _, inSeason := range []bool{true, false} {
		f := forageable.NewWithID(7, "Ramps", "Creek bank", inSeason, "")
		if got := vm.IsInSeason(f); got != inSeason {
			t.Errorf("IsInSeason() = %v, want %v", got, inSeason)
		}
	}
}

func TestAddForageable(t *testing.T) {
	vm, _ := setupTestViewModel(t)

	if err := vm.AddForageable("Morel", "123 Forest Rd", true, "near oak trees"); err != nil {
		t.Fatalf("AddForageable() error = %v", err)
	}
	waitForMutations(t, vm)

	all := listAll(t, vm)
	if len(all) != 1 {
		t.Fatalf("len(AllForageables) = %d, want 1", len(all))
	}
	got := all[0]
	if got.ID == 0 {
		t.Error("expected an assigned ID")
	}
	want := forageable.NewWithID(got.ID, "Morel", "123 Forest Rd", true, "near oak trees")
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("stored record mismatch (-want +got):\n%s", diff)
	}
}

func TestAddForageableTwiceAssignsDistinctIDs(t *testing.T) {
	vm, _ := setupTestViewModel(t)

	if err := vm.AddForageable("Morel", "123 Forest Rd", true, ""); err != nil {
		t.Fatalf("AddForageable() error = %v", err)
	}
	if err := vm.AddForageable("Chanterelle", "9 Ridge Trail", false, "after rain"); err != nil {
		t.Fatalf("AddForageable() error = %v", err)
	}
	waitForMutations(t, vm)

	all := listAll(t, vm)
	if len(all) != 2 {
		t.Fatalf("len(AllForageables) = %d, want 2", len(all))
	}
	if all[0].ID == all[1].ID {
		t.Errorf("both records got ID %d", all[0].ID)
	}
	if all[0].Name != "Morel" || all[1].Name != "Chanterelle" {
		t.Errorf("names = %q, %q; want Morel, Chanterelle", all[0].Name, all[1].Name)
	}
}

func TestAddForageableRejectsBlankFields(t *testing.T) {
	vm, store := setupTestViewModel(t)

	err := vm.AddForageable("  ", "123 Forest Rd", true, "")
	if !errors.Is(err, forageable.ErrInvalidEntry) {
		t.Fatalf("AddForageable() error = %v, want ErrInvalidEntry", err)
	}
	if !forageable.IsValidation(err) {
		t.Errorf("ClassOf() = %q, want validation", forageable.ClassOf(err))
	}
	waitForMutations(t, vm)

	count, err := store.Count(context.Background())
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 0 {
		t.Errorf("Count() = %d, want 0", count)
	}
}

func TestWithLoggerReceivesRejections(t *testing.T) {
	store, err := stores.NewSQLiteStore(stores.Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer store.Close()

	var buf bytes.Buffer
	logger := telemetry.NewLoggerWithWriter(telemetry.LoggingConfig{Level: "debug", Format: "json"}, &buf)

	vm, err := NewForageableViewModel(store, WithLogger(logger.WithField("db", "memory")))
	if err != nil {
		t.Fatalf("failed to create view model: %v", err)
	}
	defer vm.Close()

	if err := vm.AddForageable("", "123 Forest Rd", true, ""); err == nil {
		t.Fatal("expected blank name to be rejected")
	}

	out := buf.String()
	for _, want := range []string{"Rejected invalid forageable", `"component":"viewmodel"`, `"db":"memory"`, `"operation":"insert"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %s: %s", want, out)
		}
	}
}

func TestUpdateForageable(t *testing.T) {
	vm, _ := setupTestViewModel(t)

	if err := vm.AddForageable("Morel", "123 Forest Rd", true, "near oak trees"); err != nil {
		t.Fatalf("AddForageable() error = %v", err)
	}
	if err := vm.AddForageable("Ramps", "Creek bank", true, ""); err != nil {
		t.Fatalf("AddForageable() error = %v", err)
	}
	waitForMutations(t, vm)

	before := listAll(t, vm)
	id := before[0].ID

	if err := vm.UpdateForageable(id, "Morel", "456 Forest Rd", false, ""); err != nil {
		t.Fatalf("UpdateForageable() error = %v", err)
	}
	waitForMutations(t, vm)

	got := retrieve(t, vm, id)
	if got == nil {
		t.Fatal("RetrieveForageable() = nil after update")
	}
	if got.Address != "456 Forest Rd" {
		t.Errorf("Address = %q, want 456 Forest Rd", got.Address)
	}
	if got.InSeason {
		t.Error("InSeason = true, want false")
	}
	if got.Notes != "" {
		t.Errorf("Notes = %q, want empty", got.Notes)
	}

	other := retrieve(t, vm, before[1].ID)
	if diff := cmp.Diff(&before[1], other); diff != "" {
		t.Errorf("untouched record changed (-want +got):\n%s", diff)
	}
}

func TestUpdateForageableUnknownIDIsNoop(t *testing.T) {
	vm, _ := setupTestViewModel(t)

	if err := vm.AddForageable("Morel", "123 Forest Rd", true, ""); err != nil {
		t.Fatalf("AddForageable() error = %v", err)
	}
	waitForMutations(t, vm)
	before := listAll(t, vm)

	if err := vm.UpdateForageable(9999, "Ghost", "Nowhere", false, ""); err != nil {
		t.Fatalf("UpdateForageable() error = %v", err)
	}
	waitForMutations(t, vm)

	if diff := cmp.Diff(before, listAll(t, vm)); diff != "" {
		t.Errorf("list changed after unknown update (-before +after):\n%s", diff)
	}
}

func TestUpdateForageableRejectsBlankFields(t *testing.T) {
	vm, _ := setupTestViewModel(t)

	err := vm.UpdateForageable(1, "Morel", "", true, "")
	if !errors.Is(err, forageable.ErrInvalidEntry) {
		t.Fatalf("UpdateForageable() error = %v, want ErrInvalidEntry", err)
	}
	var fe *forageable.Error
	if !errors.As(err, &fe) {
		t.Fatalf("error %T is not *forageable.Error", err)
	}
	if fe.Op != OpUpdate || fe.ID != 1 {
		t.Errorf("Op, ID = %q, %d; want %q, 1", fe.Op, fe.ID, OpUpdate)
	}
}

func TestDeleteForageable(t *testing.T) {
	vm, _ := setupTestViewModel(t)

	if err := vm.AddForageable("Morel", "123 Forest Rd", true, ""); err != nil {
		t.Fatalf("AddForageable() error = %v", err)
	}
	if err := vm.AddForageable("Ramps", "Creek bank", true, ""); err != nil {
		t.Fatalf("AddForageable() error = %v", err)
	}
	waitForMutations(t, vm)

	all := listAll(t, vm)
	r := all[0]

	if err := vm.DeleteForageable(r); err != nil {
		t.Fatalf("DeleteForageable() error = %v", err)
	}
	waitForMutations(t, vm)

	if got := retrieve(t, vm, r.ID); got != nil {
		t.Errorf("RetrieveForageable() = %v, want nil", got)
	}
	remaining := listAll(t, vm)
	if len(remaining) != 1 || remaining[0].ID == r.ID {
		t.Errorf("AllForageables() = %v, want only #%d", remaining, all[1].ID)
	}
}

func TestDeleteForageableByID(t *testing.T) {
	vm, _ := setupTestViewModel(t)

	if err := vm.AddForageable("Morel", "123 Forest Rd", true, ""); err != nil {
		t.Fatalf("AddForageable() error = %v", err)
	}
	waitForMutations(t, vm)
	id := listAll(t, vm)[0].ID

	if err := vm.DeleteForageableByID(id); err != nil {
		t.Fatalf("DeleteForageableByID() error = %v", err)
	}
	if err := vm.DeleteForageableByID(id + 100); err != nil {
		t.Fatalf("DeleteForageableByID() unknown id error = %v", err)
	}
	waitForMutations(t, vm)

	if all := listAll(t, vm); len(all) != 0 {
		t.Errorf("AllForageables() = %v, want empty", all)
	}
}

func TestObserversSeeMutations(t *testing.T) {
	vm, _ := setupTestViewModel(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	snapshots := vm.AllForageables().Observe(ctx)
	next := func() []forageable.Forageable {
		t.Helper()
		select {
		case s, ok := <-snapshots:
			if !ok {
				t.Fatal("observer closed early")
			}
			return s
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for snapshot")
		}
		return nil
	}

	if initial := next(); len(initial) != 0 {
		t.Fatalf("initial snapshot = %v, want empty", initial)
	}

	if err := vm.AddForageable("Morel", "123 Forest Rd", true, ""); err != nil {
		t.Fatalf("AddForageable() error = %v", err)
	}
	if got := next(); len(got) != 1 || got[0].Name != "Morel" {
		t.Fatalf("snapshot after add = %v, want [Morel]", got)
	}
}

func TestRetrieveForageableObserverSeesDelete(t *testing.T) {
	vm, _ := setupTestViewModel(t)

	if err := vm.AddForageable("Morel", "123 Forest Rd", true, ""); err != nil {
		t.Fatalf("AddForageable() error = %v", err)
	}
	waitForMutations(t, vm)
	id := listAll(t, vm)[0].ID

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	snapshots := vm.RetrieveForageable(id).Observe(ctx)

	if first := <-snapshots; first == nil || first.ID != id {
		t.Fatalf("initial snapshot = %v, want #%d", first, id)
	}

	if err := vm.DeleteForageableByID(id); err != nil {
		t.Fatalf("DeleteForageableByID() error = %v", err)
	}

	select {
	case got := <-snapshots:
		if got != nil {
			t.Errorf("snapshot after delete = %v, want nil", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
}

func TestStorageFailuresReachFailureChannel(t *testing.T) {
	boom := errors.New("disk full")
	gw := newFailingGateway(boom)

	vm, err := NewForageableViewModel(gw)
	if err != nil {
		t.Fatalf("NewForageableViewModel() error = %v", err)
	}
	defer vm.Close()

	if err := vm.AddForageable("Morel", "123 Forest Rd", true, ""); err != nil {
		t.Fatalf("AddForageable() returned %v, want nil for an async failure", err)
	}

	select {
	case f := <-vm.Failures():
		if f.Name != OpInsert {
			t.Errorf("Name = %q, want %q", f.Name, OpInsert)
		}
		if !errors.Is(f.Err, boom) {
			t.Errorf("Err = %v, want it to wrap %v", f.Err, boom)
		}
		if f.Class() != string(forageable.ErrorClassStorage) {
			t.Errorf("Class() = %q, want storage", f.Class())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for failure")
	}
}

func TestSubmitAfterClose(t *testing.T) {
	vm, _ := setupTestViewModel(t)

	if err := vm.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	err := vm.AddForageable("Morel", "123 Forest Rd", true, "")
	if !errors.Is(err, tasks.ErrScopeClosed) {
		t.Fatalf("AddForageable() error = %v, want ErrScopeClosed", err)
	}
	if forageable.ClassOf(err) != forageable.ErrorClassSubmission {
		t.Errorf("ClassOf() = %q, want submission", forageable.ClassOf(err))
	}
}

type failingGateway struct {
	feed *stores.ChangeFeed
	err  error
}

func newFailingGateway(err error) *failingGateway {
	return &failingGateway{feed: stores.NewChangeFeed(nil), err: err}
}

func (g *failingGateway) QueryAll() *stores.Live[[]forageable.Forageable] {
	return stores.NewLive("all", g.feed, func(ctx context.Context) ([]forageable.Forageable, error) {
		return []forageable.Forageable{}, nil
	})
}

func (g *failingGateway) QueryByID(id int64) *stores.Live[*forageable.Forageable] {
	return stores.NewLive("by_id", g.feed, func(ctx context.Context) (*forageable.Forageable, error) {
		return nil, nil
	})
}

func (g *failingGateway) Insert(ctx context.Context, f *forageable.Forageable) error {
	return g.err
}

func (g *failingGateway) Replace(ctx context.Context, f *forageable.Forageable) error {
	return g.err
}

func (g *failingGateway) Remove(ctx context.Context, f *forageable.Forageable) error {
	return g.err
}
