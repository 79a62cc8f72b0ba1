package crud

import (
	"context"
	"fmt"

	"github.com/perry-go/perry/internal/adapter"
	"github.com/perry-go/perry/internal/orm/ormerr"
	"github.com/perry-go/perry/internal/orm/record"
)

var defaultOperations = NewOperations()

// Save writes the record and reports whether the service accepted it. A
// rejected write leaves the service's errors on the record and returns
// false with a nil error.
func (o *Operations) Save(ctx context.Context, rec *record.Record) (bool, error) {
	if rec != nil && rec.IsFrozen() {
		return false, fmt.Errorf("%w: cannot save %s", ormerr.ErrFrozenRecord, modelName(rec))
	}
	a, err := writeAdapter(rec)
	if err != nil {
		return false, err
	}

	rec.ClearErrors()
	if o != nil && o.validator != nil {
		if errs := o.validator.Validate(ctx, rec, OperationSave); len(errs) > 0 {
			rec.AddErrors(errs)
			rec.SetSaved(false)
			return false, nil
		}
	}
	if err := o.runHooks(ctx, BeforeSave, rec); err != nil {
		return false, err
	}

	resp, err := a.Write(ctx, rec)
	if err != nil {
		return false, fmt.Errorf("failed to save %s: %w", modelName(rec), err)
	}
	if !resp.Success {
		return false, nil
	}
	return true, o.runHooks(ctx, AfterSave, rec)
}

// SaveBang saves the record and fails with ErrRecordNotSaved when the
// service rejects it
func (o *Operations) SaveBang(ctx context.Context, rec *record.Record) error {
	ok, err := o.Save(ctx, rec)
	if err != nil {
		return err
	}
	if !ok {
		return notSaved(rec)
	}
	return nil
}

// UpdateAttributes assigns attributes and saves
func (o *Operations) UpdateAttributes(ctx context.Context, rec *record.Record, attributes map[string]interface{}) (bool, error) {
	if rec == nil {
		return false, fmt.Errorf("cannot update a nil record")
	}
	if err := rec.SetAttributes(attributes); err != nil {
		return false, err
	}
	return o.Save(ctx, rec)
}

// UpdateAttributesBang assigns attributes and saves, failing with
// ErrRecordNotSaved when the service rejects the write
func (o *Operations) UpdateAttributesBang(ctx context.Context, rec *record.Record, attributes map[string]interface{}) error {
	ok, err := o.UpdateAttributes(ctx, rec, attributes)
	if err != nil {
		return err
	}
	if !ok {
		return notSaved(rec)
	}
	return nil
}

// Destroy deletes the record. New records and records without a primary
// key value are not dispatched and report false. A destroyed record is
// frozen.
func (o *Operations) Destroy(ctx context.Context, rec *record.Record) (bool, error) {
	if rec != nil && rec.IsFrozen() {
		return false, fmt.Errorf("%w: cannot destroy %s", ormerr.ErrFrozenRecord, modelName(rec))
	}
	a, err := writeAdapter(rec)
	if err != nil {
		return false, err
	}
	if rec.IsNew() || rec.ID() == nil {
		return false, nil
	}

	if err := o.runHooks(ctx, BeforeDestroy, rec); err != nil {
		return false, err
	}
	resp, err := a.Delete(ctx, rec)
	if err != nil {
		return false, fmt.Errorf("failed to destroy %s: %w", modelName(rec), err)
	}
	if !resp.Success {
		return false, nil
	}
	return true, o.runHooks(ctx, AfterDestroy, rec)
}

// DestroyBang deletes the record, failing with ErrRecordNotSaved when the
// delete is not carried out
func (o *Operations) DestroyBang(ctx context.Context, rec *record.Record) error {
	ok, err := o.Destroy(ctx, rec)
	if err != nil {
		return err
	}
	if !ok {
		return notSaved(rec)
	}
	return nil
}

// Reload replaces the record's attributes with the ones its read adapter
// returns for the record's primary key
func (o *Operations) Reload(ctx context.Context, rec *record.Record) error {
	if rec == nil {
		return fmt.Errorf("cannot reload a nil record")
	}
	if rec.IsFrozen() {
		return fmt.Errorf("%w: cannot reload %s", ormerr.ErrFrozenRecord, modelName(rec))
	}
	reloader, ok := rec.Model().(adapter.Reloader)
	if !ok {
		return ormerr.NewConfigurationError(modelName(rec), "model cannot be reloaded")
	}
	return reloader.Reload(ctx, rec)
}

func notSaved(rec *record.Record) error {
	return fmt.Errorf("%w: %s %v", ormerr.ErrRecordNotSaved, modelName(rec), rec.Errors())
}

// Save saves rec with the default operations, see Operations.Save
func Save(ctx context.Context, rec *record.Record) (bool, error) {
	return defaultOperations.Save(ctx, rec)
}

// SaveBang saves rec, see Operations.SaveBang
func SaveBang(ctx context.Context, rec *record.Record) error {
	return defaultOperations.SaveBang(ctx, rec)
}

// UpdateAttributes updates and saves rec, see Operations.UpdateAttributes
func UpdateAttributes(ctx context.Context, rec *record.Record, attributes map[string]interface{}) (bool, error) {
	return defaultOperations.UpdateAttributes(ctx, rec, attributes)
}

// UpdateAttributesBang updates and saves rec, see Operations.UpdateAttributesBang
func UpdateAttributesBang(ctx context.Context, rec *record.Record, attributes map[string]interface{}) error {
	return defaultOperations.UpdateAttributesBang(ctx, rec, attributes)
}

// Destroy deletes rec, see Operations.Destroy
func Destroy(ctx context.Context, rec *record.Record) (bool, error) {
	return defaultOperations.Destroy(ctx, rec)
}

// DestroyBang deletes rec, see Operations.DestroyBang
func DestroyBang(ctx context.Context, rec *record.Record) error {
	return defaultOperations.DestroyBang(ctx, rec)
}

// Reload refreshes rec from its read adapter
func Reload(ctx context.Context, rec *record.Record) error {
	return defaultOperations.Reload(ctx, rec)
}
