// Package memory is the in-process storage strategy: every repository contract
// served from maps guarded by one lock. Used by tests and STORAGE_DRIVER=memory.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"systeminvoice/internal/apperr"
	"systeminvoice/internal/model"
	"systeminvoice/internal/repository"

	"github.com/google/uuid"
)

type assignmentKey struct{ admin, register uuid.UUID }

// Store holds all state. Methods on the per-repository views take mu, so
// every check-then-write below is atomic.
type Store struct {
	mu sync.RWMutex

	definitions map[uuid.UUID]model.SequenceDefinition
	counters    map[model.CounterKey]int64
	registers   map[uuid.UUID]model.CashRegister
	assignments map[assignmentKey]model.CashRegisterAssignment
	sessions    map[uuid.UUID]model.CashRegisterSession

	invoices   map[uuid.UUID][]model.LedgerInvoice // by session
	admins     map[uuid.UUID]model.AdminUser
	warehouses map[uuid.UUID]model.Warehouse
	customers  map[uuid.UUID]model.Customer
}

func New() *Store {
	return &Store{
		definitions: map[uuid.UUID]model.SequenceDefinition{},
		counters:    map[model.CounterKey]int64{},
		registers:   map[uuid.UUID]model.CashRegister{},
		assignments: map[assignmentKey]model.CashRegisterAssignment{},
		sessions:    map[uuid.UUID]model.CashRegisterSession{},
		invoices:    map[uuid.UUID][]model.LedgerInvoice{},
		admins:      map[uuid.UUID]model.AdminUser{},
		warehouses:  map[uuid.UUID]model.Warehouse{},
		customers:   map[uuid.UUID]model.Customer{},
	}
}

// Repositories exposes the store through the shared repository contracts.
func (s *Store) Repositories() *repository.Store {
	return &repository.Store{
		Sequences:   sequences{s},
		Registers:   registers{s},
		Assignments: assignments{s},
		Sessions:    sessions{s},
		Ledger:      ledger{s},
		Admins:      directory{s},
		Warehouses:  directory{s},
		Customers:   directory{s},
		Ping:        func(context.Context) error { return nil },
	}
}

// ── Collaborator seeding ──────────────────────────────────────────────────────
// The ledger and directories belong to other modules; these writers stand in
// for them.

func (s *Store) PutWarehouse(w model.Warehouse) model.Warehouse {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	s.warehouses[w.ID] = w
	return w
}

func (s *Store) PutAdmin(u model.AdminUser) model.AdminUser {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	s.admins[u.ID] = u
	return u
}

func (s *Store) PutCustomer(c model.Customer) model.Customer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	s.customers[c.ID] = c
	return c
}

// AddInvoice appends an invoice to the session's ledger.
func (s *Store) AddInvoice(sessionID uuid.UUID, inv model.LedgerInvoice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	inv.Payments = slices.Clone(inv.Payments)
	s.invoices[sessionID] = append(s.invoices[sessionID], inv)
}

func (s *Store) SetInvoiceStatus(sessionID, invoiceID uuid.UUID, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.invoices[sessionID] {
		if s.invoices[sessionID][i].ID == invoiceID {
			s.invoices[sessionID][i].Status = status
		}
	}
}

func notFound(msg string) error { return apperr.NotFound("%s", msg) }

func duplicate() error {
	return apperr.Conflict("El registro ya existe").WithCode(apperr.CodeDuplicate)
}

// ── Sequences ─────────────────────────────────────────────────────────────────

type sequences struct{ *Store }

func (r sequences) CreateDefinition(_ context.Context, d *model.SequenceDefinition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.definitions {
		if e.Code == d.Code {
			return duplicate()
		}
	}
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	now := time.Now()
	d.CreatedAt, d.UpdatedAt = now, now
	r.definitions[d.ID] = *d
	return nil
}

func (r sequences) UpdateDefinition(_ context.Context, d *model.SequenceDefinition, numberingChanged bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.definitions[d.ID]
	if !ok {
		return notFound("Secuencia no encontrada")
	}
	if numberingChanged && r.hasCounters(d.ID) {
		return repository.ErrSequenceInUse(cur.Code)
	}
	cur.Prefix, cur.Suffix, cur.Padding = d.Prefix, d.Suffix, d.Padding
	cur.StartValue, cur.Step = d.StartValue, d.Step
	cur.UpdatedAt = time.Now()
	r.definitions[d.ID] = cur
	return nil
}

func (r sequences) FindDefinitionByID(_ context.Context, id uuid.UUID) (*model.SequenceDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.definitions[id]
	if !ok {
		return nil, notFound("Secuencia no encontrada")
	}
	return &d, nil
}

func (r sequences) FindDefinitionByCode(_ context.Context, code string) (*model.SequenceDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.definitions {
		if d.Code == code {
			return &d, nil
		}
	}
	return nil, notFound("Secuencia no encontrada")
}

func (r sequences) ListDefinitions(_ context.Context, scope model.SequenceScope) ([]model.SequenceDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []model.SequenceDefinition
	for _, d := range r.definitions {
		if scope == "" || d.Scope == scope {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (r sequences) CurrentValue(_ context.Context, key model.CounterKey) (int64, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.counters[key]
	return v, ok, nil
}

func (r sequences) Increment(_ context.Context, key model.CounterKey, start, step int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.counters[key]
	if !ok {
		v = start
	} else {
		v += step
	}
	r.counters[key] = v
	return v, nil
}

// hasCounters expects r.mu to be held.
func (r sequences) hasCounters(definitionID uuid.UUID) bool {
	for k := range r.counters {
		if k.DefinitionID == definitionID {
			return true
		}
	}
	return false
}

// ── Cash registers ────────────────────────────────────────────────────────────

type registers struct{ *Store }

func (r registers) Create(_ context.Context, reg *model.CashRegister) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.registers {
		if e.Code == reg.Code {
			return duplicate()
		}
	}
	if reg.ID == uuid.Nil {
		reg.ID = uuid.New()
	}
	now := time.Now()
	reg.CreatedAt, reg.UpdatedAt = now, now
	r.registers[reg.ID] = *reg
	return nil
}

func (r registers) Update(_ context.Context, reg *model.CashRegister) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.registers[reg.ID]
	if !ok {
		return notFound("Caja no encontrada")
	}
	for _, e := range r.registers {
		if e.ID != reg.ID && e.Code == reg.Code {
			return duplicate()
		}
	}
	reg.CreatedAt = cur.CreatedAt
	reg.UpdatedAt = time.Now()
	r.registers[reg.ID] = *reg
	return nil
}

func (r registers) FindByCode(_ context.Context, code string) (*model.CashRegister, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, reg := range r.registers {
		if reg.Code == code {
			return &reg, nil
		}
	}
	return nil, notFound("Caja no encontrada")
}

func (r registers) FindByID(_ context.Context, id uuid.UUID) (*model.CashRegister, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.registers[id]
	if !ok {
		return nil, notFound("Caja no encontrada")
	}
	return &reg, nil
}

func (r registers) List(_ context.Context, includeInactive bool) ([]model.CashRegister, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []model.CashRegister
	for _, reg := range r.registers {
		if includeInactive || reg.IsActive {
			out = append(out, reg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (r registers) ListByIDs(_ context.Context, ids []uuid.UUID) ([]model.CashRegister, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []model.CashRegister
	for _, id := range ids {
		if reg, ok := r.registers[id]; ok {
			out = append(out, reg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (r registers) CountActive(_ context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var n int64
	for _, reg := range r.registers {
		if reg.IsActive {
			n++
		}
	}
	return n, nil
}

// ── Assignments ───────────────────────────────────────────────────────────────

type assignments struct{ *Store }

func (r assignments) ListAssignments(_ context.Context, adminIDs []uuid.UUID) ([]model.CashRegisterAssignment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []model.CashRegisterAssignment
	for _, a := range r.assignments {
		if len(adminIDs) == 0 || slices.Contains(adminIDs, a.AdminUserID) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AdminUserID != out[j].AdminUserID {
			return out[i].AdminUserID.String() < out[j].AdminUserID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r assignments) FindAssignment(_ context.Context, adminID, registerID uuid.UUID) (*model.CashRegisterAssignment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.assignments[assignmentKey{adminID, registerID}]
	if !ok {
		return nil, notFound("La caja no esta asignada al usuario")
	}
	return &a, nil
}

func (r assignments) Assign(_ context.Context, adminID, registerID uuid.UUID, makeDefault bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := assignmentKey{adminID, registerID}
	if _, ok := r.assignments[key]; !ok {
		r.assignments[key] = model.CashRegisterAssignment{
			AdminUserID:    adminID,
			CashRegisterID: registerID,
			CreatedAt:      time.Now(),
		}
	}
	if makeDefault {
		r.setDefaultLocked(adminID, registerID)
	}
	return nil
}

func (r assignments) Unassign(_ context.Context, adminID, registerID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := assignmentKey{adminID, registerID}
	if _, ok := r.assignments[key]; !ok {
		return notFound("La caja no esta asignada al usuario")
	}
	delete(r.assignments, key)
	return nil
}

func (r assignments) SetDefault(_ context.Context, adminID, registerID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.assignments[assignmentKey{adminID, registerID}]; !ok {
		return notFound("La caja no esta asignada al usuario")
	}
	r.setDefaultLocked(adminID, registerID)
	return nil
}

func (r assignments) setDefaultLocked(adminID, registerID uuid.UUID) {
	for k, a := range r.assignments {
		if k.admin == adminID {
			a.IsDefault = k.register == registerID
			r.assignments[k] = a
		}
	}
}

// ── Sessions ──────────────────────────────────────────────────────────────────

type sessions struct{ *Store }

func (r sessions) CreateOpen(_ context.Context, s *model.CashRegisterSession, perAdmin bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.sessions {
		if e.Status != model.SessionOpen {
			continue
		}
		if e.CashRegisterID == s.CashRegisterID {
			return repository.ErrRegisterSessionOpen()
		}
		if perAdmin && e.AdminUserID == s.AdminUserID {
			return repository.ErrAdminSessionOpen()
		}
	}
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	s.Status = model.SessionOpen
	now := time.Now()
	s.CreatedAt, s.UpdatedAt = now, now
	r.sessions[s.ID] = *s
	return nil
}

func (r sessions) FindByID(_ context.Context, id uuid.UUID) (*model.CashRegisterSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, notFound("Sesion de caja no encontrada")
	}
	return &s, nil
}

func (r sessions) FindOpenByAdmin(_ context.Context, adminID uuid.UUID) (*model.CashRegisterSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var best *model.CashRegisterSession
	for _, s := range r.sessions {
		if s.Status == model.SessionOpen && s.AdminUserID == adminID {
			if best == nil || s.OpeningAt.After(best.OpeningAt) {
				cp := s
				best = &cp
			}
		}
	}
	if best == nil {
		return nil, notFound("Sin sesion activa")
	}
	return best, nil
}

func (r sessions) FindOpenByRegister(_ context.Context, registerID uuid.UUID) (*model.CashRegisterSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sessions {
		if s.Status == model.SessionOpen && s.CashRegisterID == registerID {
			return &s, nil
		}
	}
	return nil, notFound("La caja no tiene sesion abierta")
}

func (r sessions) Close(_ context.Context, id uuid.UUID, c model.SessionClosing) (*model.CashRegisterSession, error) {
	return r.transition(id, func(s *model.CashRegisterSession) {
		admin, amount, at, snapshot := c.ClosingAdminUserID, c.ClosingAmount, c.ClosingAt, c.TotalsSnapshot
		s.Status = model.SessionClosed
		s.ClosingAdminUserID = &admin
		s.ClosingAmount = &amount
		s.ClosingAt = &at
		s.ClosingNotes = c.ClosingNotes
		s.TotalsSnapshot = &snapshot
	})
}

func (r sessions) Cancel(_ context.Context, id uuid.UUID, c model.SessionCancellation) (*model.CashRegisterSession, error) {
	return r.transition(id, func(s *model.CashRegisterSession) {
		admin, at := c.AdminUserID, c.At
		s.Status = model.SessionCancelled
		s.ClosingAdminUserID = &admin
		s.ClosingAt = &at
		s.ClosingNotes = c.Notes
	})
}

func (r sessions) transition(id uuid.UUID, apply func(*model.CashRegisterSession)) (*model.CashRegisterSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, notFound("Sesion de caja no encontrada")
	}
	if s.Status != model.SessionOpen {
		return nil, repository.ErrSessionNotOpen(s.Status)
	}
	apply(&s)
	s.UpdatedAt = time.Now()
	r.sessions[id] = s
	return &s, nil
}

func (r sessions) ListRecentByAdmin(_ context.Context, adminID uuid.UUID, limit int) ([]model.CashRegisterSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []model.CashRegisterSession
	for _, s := range r.sessions {
		if s.AdminUserID == adminID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpeningAt.After(out[j].OpeningAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r sessions) ListOpen(_ context.Context) ([]model.CashRegisterSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []model.CashRegisterSession
	for _, s := range r.sessions {
		if s.Status == model.SessionOpen {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpeningAt.Before(out[j].OpeningAt) })
	return out, nil
}

// ── Collaborators ─────────────────────────────────────────────────────────────

type ledger struct{ *Store }

func (r ledger) ListInvoicesForSession(_ context.Context, sessionID uuid.UUID) ([]model.LedgerInvoice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	src := r.invoices[sessionID]
	out := make([]model.LedgerInvoice, len(src))
	for i, inv := range src {
		inv.Payments = slices.Clone(inv.Payments)
		out[i] = inv
	}
	return out, nil
}

type directory struct{ *Store }

func (r directory) GetAdminDirectoryEntry(_ context.Context, id uuid.UUID) (*model.AdminUser, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.admins[id]
	if !ok {
		return nil, notFound("Usuario no encontrado")
	}
	return &u, nil
}

func (r directory) ListAdminDirectoryEntries(_ context.Context, ids []uuid.UUID) ([]model.AdminUser, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []model.AdminUser
	for _, id := range ids {
		if u, ok := r.admins[id]; ok {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DisplayName < out[j].DisplayName })
	return out, nil
}

func (r directory) GetWarehouseByCode(_ context.Context, code string) (*model.Warehouse, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, w := range r.warehouses {
		if w.Code == code {
			return &w, nil
		}
	}
	return nil, notFound("Almacen no encontrado")
}

func (r directory) GetWarehouseByID(_ context.Context, id uuid.UUID) (*model.Warehouse, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.warehouses[id]
	if !ok {
		return nil, notFound("Almacen no encontrado")
	}
	return &w, nil
}

func (r directory) GetCustomerByCode(_ context.Context, code string) (*model.Customer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.customers {
		if c.Code == code {
			return &c, nil
		}
	}
	return nil, notFound("Cliente no encontrado")
}

func (r directory) GetCustomerByID(_ context.Context, id uuid.UUID) (*model.Customer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.customers[id]
	if !ok {
		return nil, notFound("Cliente no encontrado")
	}
	return &c, nil
}

var (
	_ repository.SequenceRepository     = sequences{}
	_ repository.CashRegisterRepository = registers{}
	_ repository.AssignmentRepository   = assignments{}
	_ repository.SessionRepository      = sessions{}
	_ repository.InvoiceLedger          = ledger{}
	_ repository.AdminDirectory         = directory{}
	_ repository.WarehouseCatalog       = directory{}
	_ repository.CustomerDirectory      = directory{}
)
