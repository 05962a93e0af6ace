package service

import (
	"context"
	"strings"

	"systeminvoice/internal/apperr"
	"systeminvoice/internal/dto"
	"systeminvoice/internal/model"
	"systeminvoice/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// SequenceService allocates gap-free, strictly increasing document numbers.
type SequenceService interface {
	CreateDefinition(ctx context.Context, req dto.CreateSequenceRequest) (*model.SequenceDefinition, error)
	UpdateDefinition(ctx context.Context, code string, req dto.UpdateSequenceRequest) (*model.SequenceDefinition, error)
	GetDefinition(ctx context.Context, code string) (*model.SequenceDefinition, error)
	ListDefinitions(ctx context.Context, scope model.SequenceScope) ([]model.SequenceDefinition, error)
	// NextPreview returns the number the next Allocate would return. It never
	// consumes a number.
	NextPreview(ctx context.Context, definitionID uuid.UUID, scopeType model.CounterScopeType, scopeKey string) (*dto.SequenceNumberResponse, error)
	// Allocate atomically reserves the next value for the exact key.
	Allocate(ctx context.Context, definitionID uuid.UUID, scopeType model.CounterScopeType, scopeKey string) (int64, error)
	// AllocateFormatted is Allocate plus Format.
	AllocateFormatted(ctx context.Context, definitionID uuid.UUID, scopeType model.CounterScopeType, scopeKey string) (*dto.SequenceNumberResponse, error)
}

type sequenceService struct {
	repo repository.SequenceRepository
}

func NewSequenceService(repo repository.SequenceRepository) SequenceService {
	return &sequenceService{repo: repo}
}

// Format renders value with the definition's prefix, padding and suffix.
func Format(def model.SequenceDefinition, value int64) string {
	return def.Format(value)
}

// ── Definitions ───────────────────────────────────────────────────────────────

func (s *sequenceService) CreateDefinition(ctx context.Context, req dto.CreateSequenceRequest) (*model.SequenceDefinition, error) {
	def := &model.SequenceDefinition{
		Code:       strings.TrimSpace(req.Code),
		Scope:      model.SequenceScope(strings.ToUpper(strings.TrimSpace(req.Scope))),
		Prefix:     req.Prefix,
		Suffix:     req.Suffix,
		Padding:    req.Padding,
		StartValue: 1,
		Step:       1,
	}
	if req.StartValue != nil {
		def.StartValue = *req.StartValue
	}
	if req.Step != nil {
		def.Step = *req.Step
	}
	if def.Code == "" {
		return nil, apperr.Validation("El codigo de secuencia es obligatorio")
	}
	if !def.Scope.Valid() {
		return nil, apperr.Validation("Ambito de secuencia invalido: %q", req.Scope)
	}
	if err := validateBounds(def); err != nil {
		return nil, err
	}
	if err := s.repo.CreateDefinition(ctx, def); err != nil {
		return nil, err
	}
	log.Info().Str("code", def.Code).Str("scope", string(def.Scope)).Msg("sequence definition created")
	return def, nil
}

// UpdateDefinition may change the formatting at any time. StartValue and Step
// are frozen once the definition has counters.
func (s *sequenceService) UpdateDefinition(ctx context.Context, code string, req dto.UpdateSequenceRequest) (*model.SequenceDefinition, error) {
	def, err := s.repo.FindDefinitionByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	numberingChanged := (req.StartValue != nil && *req.StartValue != def.StartValue) ||
		(req.Step != nil && *req.Step != def.Step)
	if req.Prefix != nil {
		def.Prefix = *req.Prefix
	}
	if req.Suffix != nil {
		def.Suffix = *req.Suffix
	}
	if req.Padding != nil {
		def.Padding = *req.Padding
	}
	if req.StartValue != nil {
		def.StartValue = *req.StartValue
	}
	if req.Step != nil {
		def.Step = *req.Step
	}
	if err := validateBounds(def); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateDefinition(ctx, def, numberingChanged); err != nil {
		return nil, err
	}
	return def, nil
}

func (s *sequenceService) GetDefinition(ctx context.Context, code string) (*model.SequenceDefinition, error) {
	return s.repo.FindDefinitionByCode(ctx, code)
}

func (s *sequenceService) ListDefinitions(ctx context.Context, scope model.SequenceScope) ([]model.SequenceDefinition, error) {
	if scope != "" && !scope.Valid() {
		return nil, apperr.Validation("Ambito de secuencia invalido: %q", scope)
	}
	return s.repo.ListDefinitions(ctx, scope)
}

func validateBounds(def *model.SequenceDefinition) error {
	if def.Padding < 0 || def.Padding > model.MaxSequencePadding {
		return apperr.Validation("padding debe estar entre 0 y %d", model.MaxSequencePadding)
	}
	if def.Step < 1 {
		return apperr.Validation("step debe ser mayor o igual a 1")
	}
	return nil
}

// ── Allocation ────────────────────────────────────────────────────────────────

func (s *sequenceService) NextPreview(ctx context.Context, definitionID uuid.UUID, scopeType model.CounterScopeType, scopeKey string) (*dto.SequenceNumberResponse, error) {
	def, key, err := s.resolve(ctx, definitionID, scopeType, scopeKey)
	if err != nil {
		return nil, err
	}
	current, found, err := s.repo.CurrentValue(ctx, key)
	if err != nil {
		return nil, err
	}
	next := def.StartValue
	if found {
		next = current + def.Step
	}
	return &dto.SequenceNumberResponse{DefinitionCode: def.Code, Value: next, Formatted: def.Format(next)}, nil
}

func (s *sequenceService) Allocate(ctx context.Context, definitionID uuid.UUID, scopeType model.CounterScopeType, scopeKey string) (int64, error) {
	def, key, err := s.resolve(ctx, definitionID, scopeType, scopeKey)
	if err != nil {
		return 0, err
	}
	return s.repo.Increment(ctx, key, def.StartValue, def.Step)
}

func (s *sequenceService) AllocateFormatted(ctx context.Context, definitionID uuid.UUID, scopeType model.CounterScopeType, scopeKey string) (*dto.SequenceNumberResponse, error) {
	def, key, err := s.resolve(ctx, definitionID, scopeType, scopeKey)
	if err != nil {
		return nil, err
	}
	v, err := s.repo.Increment(ctx, key, def.StartValue, def.Step)
	if err != nil {
		return nil, err
	}
	return &dto.SequenceNumberResponse{DefinitionCode: def.Code, Value: v, Formatted: def.Format(v)}, nil
}

// resolve loads the definition and normalizes the counter key. GLOBAL counters
// ignore the caller's key; the other scopes require one.
func (s *sequenceService) resolve(ctx context.Context, definitionID uuid.UUID, scopeType model.CounterScopeType, scopeKey string) (*model.SequenceDefinition, model.CounterKey, error) {
	scopeType = model.CounterScopeType(strings.ToUpper(strings.TrimSpace(string(scopeType))))
	if !scopeType.Valid() {
		return nil, model.CounterKey{}, apperr.Validation("Tipo de ambito invalido: %q", scopeType)
	}
	scopeKey = strings.TrimSpace(scopeKey)
	if scopeType == model.CounterScopeGlobal {
		scopeKey = ""
	} else if scopeKey == "" {
		return nil, model.CounterKey{}, apperr.Validation("scope_key es obligatorio para el ambito %s", scopeType)
	}
	def, err := s.repo.FindDefinitionByID(ctx, definitionID)
	if err != nil {
		return nil, model.CounterKey{}, err
	}
	return def, model.CounterKey{DefinitionID: def.ID, ScopeType: scopeType, ScopeKey: scopeKey}, nil
}
