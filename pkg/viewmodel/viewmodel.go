package viewmodel

import (
	"context"
	"errors"
	"fmt"

	"github.com/kemicky/forage/pkg/forageable"
	"github.com/kemicky/forage/pkg/stores"
	"github.com/kemicky/forage/pkg/tasks"
	"github.com/kemicky/forage/pkg/telemetry"
)

// Mutation operation names, used as task names, span names and metric labels.
const (
	OpInsert = "insert"
	OpUpdate = "update"
	OpDelete = "delete"
)

// ErrNoGateway is returned by NewForageableViewModel when dao is nil.
var ErrNoGateway = errors.New("storage gateway is required")

// ForageableViewModel mediates between presentation callers and a storage
// gateway.
type ForageableViewModel struct {
	dao    stores.Gateway
	scope  *tasks.Scope
	tel    *telemetry.Telemetry
	logger *telemetry.Logger
}

type options struct {
	logger  *telemetry.Logger
	tel     *telemetry.Telemetry
	taskCfg tasks.Config
}

// Option configures a ForageableViewModel.
type Option func(*options)

// WithLogger overrides the logger taken from the telemetry bundle.
func WithLogger(l *telemetry.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithTelemetry attaches a telemetry bundle.
func WithTelemetry(tel *telemetry.Telemetry) Option {
	return func(o *options) {
		o.tel = tel
	}
}

// WithTaskConfig sizes the task scope that runs mutations.
func WithTaskConfig(cfg tasks.Config) Option {
	return func(o *options) {
		o.taskCfg = cfg
	}
}

// NewForageableViewModel creates a view model over dao. The caller owns dao
// and must Close the view model before closing the gateway.
func NewForageableViewModel(dao stores.Gateway, opts ...Option) (*ForageableViewModel, error) {
	if dao == nil {
		return nil, ErrNoGateway
	}

	o := options{taskCfg: tasks.DefaultConfig()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.tel == nil {
		o.tel = telemetry.Nop()
	}
	if o.logger == nil {
		o.logger = o.tel.Logger
	}

	return &ForageableViewModel{
		dao:    dao,
		scope:  tasks.New(o.taskCfg, tasks.WithTelemetry(o.tel)),
		tel:    o.tel,
		logger: o.logger.NewComponentLogger("viewmodel"),
	}, nil
}

// AllForageables returns a live view of every record in storage order.
func (vm *ForageableViewModel) AllForageables() *stores.Live[[]forageable.Forageable] {
	return vm.dao.QueryAll()
}

// RetrieveForageable returns a live view of one record. Snapshots are nil
// while no record has that ID.
func (vm *ForageableViewModel) RetrieveForageable(id int64) *stores.Live[*forageable.Forageable] {
	return vm.dao.QueryByID(id)
}

// IsInSeason reports whether f is in season.
func (vm *ForageableViewModel) IsInSeason(f forageable.Forageable) bool {
	return f.InSeason
}

// IsValidEntry reports whether name and address are both non-blank.
func (vm *ForageableViewModel) IsValidEntry(name, address string) bool {
	return forageable.IsValidEntry(name, address)
}

// AddForageable queues the insertion of a new record. It returns once the
// task is queued; storage failures are reported on Failures.
func (vm *ForageableViewModel) AddForageable(name, address string, inSeason bool, notes string) error {
	f := forageable.New(name, address, inSeason, notes)
	if err := vm.validate(OpInsert, f); err != nil {
		return err
	}
	return vm.submit(OpInsert, f, vm.dao.Insert)
}

// UpdateForageable queues a full replacement of the record with id. An
// unknown id changes nothing.
func (vm *ForageableViewModel) UpdateForageable(id int64, name, address string, inSeason bool, notes string) error {
	f := forageable.NewWithID(id, name, address, inSeason, notes)
	if err := vm.validate(OpUpdate, f); err != nil {
		return err
	}
	return vm.submit(OpUpdate, f, vm.dao.Replace)
}

// DeleteForageable queues the removal of the record with f's ID.
func (vm *ForageableViewModel) DeleteForageable(f forageable.Forageable) error {
	return vm.submit(OpDelete, f, vm.dao.Remove)
}

// DeleteForageableByID queues the removal of the record with id.
func (vm *ForageableViewModel) DeleteForageableByID(id int64) error {
	return vm.DeleteForageable(forageable.Forageable{ID: id})
}

// Failures returns the channel mutation failures are delivered on.
func (vm *ForageableViewModel) Failures() <-chan tasks.Failure {
	return vm.scope.Failures()
}

// Wait blocks until every queued mutation has finished or ctx ends.
func (vm *ForageableViewModel) Wait(ctx context.Context) error {
	return vm.scope.Wait(ctx)
}

// Close cancels pending mutations and interrupts running ones. Nothing is
// rolled back.
func (vm *ForageableViewModel) Close() error {
	return vm.scope.Close()
}

func (vm *ForageableViewModel) validate(op string, f forageable.Forageable) error {
	err := forageable.Validate(f)
	if err == nil {
		return nil
	}

	var fe *forageable.Error
	if errors.As(err, &fe) {
		fe.WithOp(op)
	}
	vm.tel.Metrics.RecordError(string(forageable.ErrorClassValidation))
	vm.logger.WithOperation(op).WithError(err).Debug("Rejected invalid forageable")
	return err
}

func (vm *ForageableViewModel) submit(op string, f forageable.Forageable, apply func(context.Context, *forageable.Forageable) error) error {
	taskID, err := vm.scope.Submit(op, func(ctx context.Context) error {
		rec := f
		if err := apply(ctx, &rec); err != nil {
			var classified *forageable.Error
			if ctx.Err() != nil {
				classified = forageable.NewCancelledError(fmt.Sprintf("%s interrupted", op), err)
			} else {
				classified = forageable.NewStorageError(fmt.Sprintf("%s failed", op), err)
			}
			return classified.WithOp(op).WithID(rec.ID)
		}

		vm.logger.WithOperation(op).WithRecordID(rec.ID).Debug("Mutation applied")
		return nil
	})
	if err != nil {
		vm.tel.Metrics.RecordError(string(forageable.ErrorClassSubmission))
		return forageable.NewSubmissionError(fmt.Sprintf("could not queue %s", op), err).WithOp(op).WithID(f.ID)
	}

	vm.logger.WithOperation(op).WithTaskID(taskID).WithRecordID(f.ID).Trace("Mutation queued")
	return nil
}
