package store

import (
	"context"
	"reflect"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/artpar/crudkit/internal/core/domain"
	gocache "github.com/patrickmn/go-cache"
)

// =============================================================================
// MemoryDB
// =============================================================================

// MemoryDB is an in-process backend keeping one go-cache table per entity
// type. Entries never expire.
type MemoryDB struct {
	mu     sync.RWMutex
	tables map[string]*gocache.Cache
	seq    int64
	ids    map[string]int64
}

type memoryRecord struct {
	seq    int64
	entity any
}

// NewMemoryDB creates an empty in-memory database.
func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		tables: make(map[string]*gocache.Cache),
		ids:    make(map[string]int64),
	}
}

// Session opens a session over the database. It satisfies the open function
// expected by NewProvider.
func (d *MemoryDB) Session(ctx context.Context) (*MemorySession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &MemorySession{db: d, staged: make(map[string]map[string]*stagedWrite)}, nil
}

// table returns the named table. Callers hold d.mu for writing.
func (d *MemoryDB) table(name string) *gocache.Cache {
	t, ok := d.tables[name]
	if !ok {
		t = gocache.New(gocache.NoExpiration, 0)
		d.tables[name] = t
	}
	return t
}

func (d *MemoryDB) lookup(table, key string) (memoryRecord, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, ok := d.tables[table]
	if !ok {
		return memoryRecord{}, false
	}
	v, ok := t.Get(key)
	if !ok {
		return memoryRecord{}, false
	}
	return v.(memoryRecord), true
}

func (d *MemoryDB) snapshot(table string) map[string]memoryRecord {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]memoryRecord)
	t, ok := d.tables[table]
	if !ok {
		return out
	}
	for k, item := range t.Items() {
		out[k] = item.Object.(memoryRecord)
	}
	return out
}

func (d *MemoryDB) nextSeq() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seq++
	return d.seq
}

// nextID allocates an integer key for table, staying above any key observed.
func (d *MemoryDB) nextID(table string, observed int64) int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if observed > d.ids[table] {
		d.ids[table] = observed
		return observed
	}
	if observed == 0 {
		d.ids[table]++
		return d.ids[table]
	}
	return observed
}

// =============================================================================
// MemorySession
// =============================================================================

type writeOp int

const (
	opCreate writeOp = iota
	opUpdate
	opReplace
	opDelete
)

type stagedWrite struct {
	op     writeOp
	record memoryRecord
}

// MemorySession stages writes and applies them to the MemoryDB on Commit.
// Reads see committed state overlaid with this session's staged writes.
type MemorySession struct {
	db     *MemoryDB
	staged map[string]map[string]*stagedWrite
}

func (s *MemorySession) stagedIn(table string) map[string]*stagedWrite {
	m, ok := s.staged[table]
	if !ok {
		m = make(map[string]*stagedWrite)
		s.staged[table] = m
	}
	return m
}

// get returns the record visible to this session.
func (s *MemorySession) get(table, key string) (memoryRecord, bool) {
	if w, ok := s.staged[table][key]; ok {
		if w.op == opDelete {
			return memoryRecord{}, false
		}
		return w.record, true
	}
	return s.db.lookup(table, key)
}

// list returns every record visible to this session in insertion order.
func (s *MemorySession) list(table string) []memoryRecord {
	records := s.db.snapshot(table)
	for key, w := range s.staged[table] {
		if w.op == opDelete {
			delete(records, key)
			continue
		}
		records[key] = w.record
	}
	out := make([]memoryRecord, 0, len(records))
	for _, r := range records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

func (s *MemorySession) create(table, key string, entity any) error {
	if _, ok := s.get(table, key); ok {
		return ErrDuplicateID
	}
	staged := s.stagedIn(table)
	op := opCreate
	if prev, ok := staged[key]; ok && prev.op == opDelete {
		op = opReplace
	}
	staged[key] = &stagedWrite{op: op, record: memoryRecord{seq: s.db.nextSeq(), entity: entity}}
	return nil
}

func (s *MemorySession) update(table, key string, entity any) error {
	current, ok := s.get(table, key)
	if !ok {
		return ErrNotFound
	}
	staged := s.stagedIn(table)
	op := opUpdate
	if prev, ok := staged[key]; ok {
		op = prev.op
	}
	staged[key] = &stagedWrite{op: op, record: memoryRecord{seq: current.seq, entity: entity}}
	return nil
}

func (s *MemorySession) remove(table, key string) {
	staged := s.stagedIn(table)
	if prev, ok := staged[key]; ok && prev.op == opCreate {
		delete(staged, key)
		return
	}
	if _, ok := s.get(table, key); !ok {
		return
	}
	staged[key] = &stagedWrite{op: opDelete}
}

// Commit validates every staged write against committed state and then
// applies them all, or none.
func (s *MemorySession) Commit(ctx context.Context) error {
	if len(s.staged) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return NewStoreError("Commit", "", "", err.Error(), ErrTxFailed)
	}

	db := s.db
	db.mu.Lock()
	defer db.mu.Unlock()

	for name, writes := range s.staged {
		t := db.table(name)
		for key, w := range writes {
			_, exists := t.Get(key)
			switch {
			case w.op == opCreate && exists:
				return NewStoreError("Commit", name, key, "entity with this ID already exists", ErrDuplicateID)
			case w.op == opUpdate && !exists:
				return NewStoreError("Commit", name, key, "entity not found", ErrNotFound)
			}
		}
	}

	for name, writes := range s.staged {
		t := db.table(name)
		for key, w := range writes {
			if w.op == opDelete {
				t.Delete(key)
				continue
			}
			t.Set(key, w.record, gocache.NoExpiration)
		}
	}

	s.staged = make(map[string]map[string]*stagedWrite)
	return nil
}

// Rollback discards staged writes.
func (s *MemorySession) Rollback() error {
	s.staged = make(map[string]map[string]*stagedWrite)
	return nil
}

// =============================================================================
// MemoryTable - generic in-memory repository
// =============================================================================

// MemoryTable implements Repository and SpecificationRepository over a
// MemorySession. Entities are copied on the way in and out, so callers never
// share memory with the store.
type MemoryTable[K comparable, T domain.Entity[K]] struct {
	session *MemorySession
	def     TableDef[K]
	now     func() time.Time
}

// NewMemoryTable creates an in-memory repository bound to session.
func NewMemoryTable[K comparable, T domain.Entity[K]](session *MemorySession, def TableDef[K]) *MemoryTable[K, T] {
	return &MemoryTable[K, T]{
		session: session,
		def:     def,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// RegisterMemoryTable registers both repository capabilities for T.
func RegisterMemoryTable[K comparable, T domain.Entity[K]](reg *Registry[*MemorySession], def TableDef[K]) {
	Provide(reg, func(s *MemorySession) Repository[K, T] { return NewMemoryTable[K, T](s, def) })
	Provide(reg, func(s *MemorySession) SpecificationRepository[K, T] { return NewMemoryTable[K, T](s, def) })
}

// Create stores a copy of entity. Integer keys left at zero are assigned
// from a per-table counter.
func (m *MemoryTable[K, T]) Create(ctx context.Context, entity T) error {
	if domain.IsAbsent(entity) {
		return NewStoreError("Create", m.def.Name, "", "entity is nil", ErrInvalidData)
	}
	touch(entity, m.now())

	id, err := m.assignKey(entity)
	if err != nil {
		return err
	}
	if err := m.session.create(m.def.Name, keyString(id), clone(entity)); err != nil {
		return NewStoreError("Create", m.def.Name, keyString(id), "entity with this ID already exists", err)
	}
	return nil
}

func (m *MemoryTable[K, T]) assignKey(entity T) (K, error) {
	id := entity.GetID()
	v := reflect.ValueOf(&id).Elem()
	switch {
	case domain.IsZeroKey(id) && m.def.NewKey != nil:
		id = m.def.NewKey()
	case v.CanInt():
		v.SetInt(m.session.db.nextID(m.def.Name, v.Int()))
	case domain.IsZeroKey(id):
		return id, NewStoreError("Create", m.def.Name, "", "no key and no key generator", ErrInvalidData)
	}
	assignID(entity, id)
	return id, nil
}

// Update replaces the stored copy of entity.
func (m *MemoryTable[K, T]) Update(ctx context.Context, entity T) error {
	if domain.IsAbsent(entity) {
		return NewStoreError("Update", m.def.Name, "", "entity is nil", ErrInvalidData)
	}
	id := keyString(entity.GetID())

	if current, ok := m.session.get(m.def.Name, id); ok {
		if stored, ok := current.entity.(T); ok {
			copyColumns(entity, stored, m.def.Immutable)
		}
	}
	touch(entity, m.now())

	if err := m.session.update(m.def.Name, id, clone(entity)); err != nil {
		return NewStoreError("Update", m.def.Name, id, "entity not found", err)
	}
	return nil
}

// GetAll returns every entity in insertion order.
func (m *MemoryTable[K, T]) GetAll(ctx context.Context) ([]T, error) {
	records := m.session.list(m.def.Name)
	out := make([]T, 0, len(records))
	for _, r := range records {
		out = append(out, clone(r.entity.(T)))
	}
	return out, nil
}

// Get returns a copy of the entity with the given key.
func (m *MemoryTable[K, T]) Get(ctx context.Context, id K) (T, error) {
	var zero T
	r, ok := m.session.get(m.def.Name, keyString(id))
	if !ok {
		return zero, NewStoreError("Get", m.def.Name, keyString(id), "entity not found", ErrNotFound)
	}
	return clone(r.entity.(T)), nil
}

// Delete removes the entity with the given key. A missing key is not an error.
func (m *MemoryTable[K, T]) Delete(ctx context.Context, id K) error {
	m.session.remove(m.def.Name, keyString(id))
	return nil
}

// GetBySpecification filters every entity through spec.
func (m *MemoryTable[K, T]) GetBySpecification(ctx context.Context, spec domain.Specification[T]) ([]T, error) {
	all, err := m.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	return domain.Filter(all, spec), nil
}

// clone shallow-copies pointer-to-struct entities.
func clone[T any](entity T) T {
	v := reflect.ValueOf(entity)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return entity
	}
	c := reflect.New(v.Elem().Type())
	c.Elem().Set(v.Elem())
	return c.Interface().(T)
}

// copyColumns copies the struct fields tagged with the given db column
// names from src onto dst.
func copyColumns[T any](dst, src T, columns []string) {
	d := reflect.Indirect(reflect.ValueOf(dst))
	sv := reflect.Indirect(reflect.ValueOf(src))
	if len(columns) == 0 || d.Kind() != reflect.Struct || sv.Kind() != reflect.Struct {
		return
	}
	typ := d.Type()
	for i := 0; i < typ.NumField(); i++ {
		if !slices.Contains(columns, typ.Field(i).Tag.Get("db")) {
			continue
		}
		if f := d.Field(i); f.CanSet() {
			f.Set(sv.Field(i))
		}
	}
}
