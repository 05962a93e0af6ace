package repository

import (
	"context"
	"time"

	"systeminvoice/internal/apperr"
	"systeminvoice/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SequenceRepository interface {
	CreateDefinition(ctx context.Context, d *model.SequenceDefinition) error
	// UpdateDefinition writes the editable fields of d. With numberingChanged
	// set the write only applies while the definition has no counters, and a
	// definition that already issued numbers fails with ErrSequenceInUse.
	UpdateDefinition(ctx context.Context, d *model.SequenceDefinition, numberingChanged bool) error
	FindDefinitionByID(ctx context.Context, id uuid.UUID) (*model.SequenceDefinition, error)
	FindDefinitionByCode(ctx context.Context, code string) (*model.SequenceDefinition, error)
	// ListDefinitions filters by scope; an empty scope lists all.
	ListDefinitions(ctx context.Context, scope model.SequenceScope) ([]model.SequenceDefinition, error)
	// CurrentValue reports found=false when no counter exists for key yet.
	CurrentValue(ctx context.Context, key model.CounterKey) (value int64, found bool, err error)
	// Increment creates the counter at start or adds step to it, in one atomic
	// statement, and returns the resulting value.
	Increment(ctx context.Context, key model.CounterKey, start, step int64) (int64, error)
}

const definitionNotFound = "Secuencia no encontrada"

const unusedDefinition = "NOT EXISTS (SELECT 1 FROM sequence_counters WHERE sequence_counters.definition_id = sequence_definitions.id)"

func ErrSequenceInUse(code string) error {
	return apperr.Conflict("La secuencia %s ya emitio numeros; no se puede cambiar el inicio ni el paso", code)
}

// incrementSQL is a single read-modify-write: the conflicting row is locked by
// the upsert itself, so concurrent callers on one key serialize on it.
const incrementSQL = `INSERT INTO sequence_counters (definition_id, scope_type, scope_key, current_value, updated_at) ` +
	`VALUES (?, ?, ?, ?, ?) ` +
	`ON CONFLICT (definition_id, scope_type, scope_key) ` +
	`DO UPDATE SET current_value = sequence_counters.current_value + ?, updated_at = excluded.updated_at ` +
	`RETURNING current_value`

type sequenceRepo struct{ base }

func NewSequenceRepository(db *gorm.DB, timeout time.Duration) SequenceRepository {
	return &sequenceRepo{base{db: db, timeout: timeout}}
}

func (r *sequenceRepo) CreateDefinition(ctx context.Context, d *model.SequenceDefinition) error {
	db, cancel := r.conn(ctx)
	defer cancel()
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return translate(db.Create(d).Error, definitionNotFound)
}

func (r *sequenceRepo) UpdateDefinition(ctx context.Context, d *model.SequenceDefinition, numberingChanged bool) error {
	db, cancel := r.conn(ctx)
	defer cancel()
	q := db.Model(&model.SequenceDefinition{}).Where("id = ?", d.ID)
	if numberingChanged {
		q = q.Where(unusedDefinition)
	}
	res := q.Updates(map[string]any{
		"prefix":      d.Prefix,
		"suffix":      d.Suffix,
		"padding":     d.Padding,
		"start_value": d.StartValue,
		"step":        d.Step,
		"updated_at":  time.Now(),
	})
	if res.Error != nil {
		return translate(res.Error, definitionNotFound)
	}
	if res.RowsAffected == 0 {
		if numberingChanged {
			var n int64
			if err := db.Model(&model.SequenceDefinition{}).Where("id = ?", d.ID).Count(&n).Error; err != nil {
				return translate(err, definitionNotFound)
			}
			if n > 0 {
				return ErrSequenceInUse(d.Code)
			}
		}
		return translate(gorm.ErrRecordNotFound, definitionNotFound)
	}
	return nil
}

func (r *sequenceRepo) FindDefinitionByID(ctx context.Context, id uuid.UUID) (*model.SequenceDefinition, error) {
	db, cancel := r.conn(ctx)
	defer cancel()
	var d model.SequenceDefinition
	if err := db.Where("id = ?", id).First(&d).Error; err != nil {
		return nil, translate(err, definitionNotFound)
	}
	return &d, nil
}

func (r *sequenceRepo) FindDefinitionByCode(ctx context.Context, code string) (*model.SequenceDefinition, error) {
	db, cancel := r.conn(ctx)
	defer cancel()
	var d model.SequenceDefinition
	if err := db.Where("code = ?", code).First(&d).Error; err != nil {
		return nil, translate(err, definitionNotFound)
	}
	return &d, nil
}

func (r *sequenceRepo) ListDefinitions(ctx context.Context, scope model.SequenceScope) ([]model.SequenceDefinition, error) {
	db, cancel := r.conn(ctx)
	defer cancel()
	q := db.Model(&model.SequenceDefinition{})
	if scope != "" {
		q = q.Where("scope = ?", scope)
	}
	var defs []model.SequenceDefinition
	err := q.Order("code ASC").Find(&defs).Error
	return defs, translate(err, definitionNotFound)
}

func (r *sequenceRepo) CurrentValue(ctx context.Context, key model.CounterKey) (int64, bool, error) {
	db, cancel := r.conn(ctx)
	defer cancel()
	var rows []model.SequenceCounter
	err := db.Where("definition_id = ? AND scope_type = ? AND scope_key = ?",
		key.DefinitionID, key.ScopeType, key.ScopeKey).Limit(1).Find(&rows).Error
	if err != nil {
		return 0, false, translate(err, definitionNotFound)
	}
	if len(rows) == 0 {
		return 0, false, nil
	}
	return rows[0].CurrentValue, true, nil
}

func (r *sequenceRepo) Increment(ctx context.Context, key model.CounterKey, start, step int64) (int64, error) {
	db, cancel := r.conn(ctx)
	defer cancel()
	var value int64
	err := db.Raw(incrementSQL,
		key.DefinitionID, key.ScopeType, key.ScopeKey, start, time.Now().UTC(), step,
	).Scan(&value).Error
	if err != nil {
		return 0, translate(err, definitionNotFound)
	}
	return value, nil
}
