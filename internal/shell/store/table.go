package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/artpar/crudkit/internal/core/domain"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
)

// =============================================================================
// Table - generic SQL repository
// =============================================================================

// Table implements Repository and SpecificationRepository for one entity
// type over a TxSession. Rows are mapped to T through `db` struct tags.
type Table[K comparable, T domain.Entity[K]] struct {
	session *TxSession
	def     TableDef[K]
	now     func() time.Time
}

// NewTable creates a table repository bound to session.
func NewTable[K comparable, T domain.Entity[K]](session *TxSession, def TableDef[K]) *Table[K, T] {
	return &Table[K, T]{
		session: session,
		def:     def,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// RegisterTable registers both repository capabilities for T.
func RegisterTable[K comparable, T domain.Entity[K]](reg *Registry[*TxSession], def TableDef[K]) {
	Provide(reg, func(s *TxSession) Repository[K, T] { return NewTable[K, T](s, def) })
	Provide(reg, func(s *TxSession) SpecificationRepository[K, T] { return NewTable[K, T](s, def) })
}

func (t *Table[K, T]) selectColumns() string {
	return strings.Join(append([]string{t.def.key()}, t.def.Columns...), ", ")
}

// Create inserts entity. Keys are generated by TableDef.NewKey when set, and
// otherwise returned by the database.
func (t *Table[K, T]) Create(ctx context.Context, entity T) error {
	if domain.IsAbsent(entity) {
		return NewStoreError("Create", t.def.Name, "", "entity is nil", ErrInvalidData)
	}
	touch(entity, t.now())

	id := entity.GetID()
	if domain.IsZeroKey(id) && t.def.NewKey != nil {
		id = t.def.NewKey()
		assignID(entity, id)
	}

	columns := slices.Clone(t.def.Columns)
	if !domain.IsZeroKey(id) {
		columns = append([]string{t.def.key()}, columns...)
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (:%s) RETURNING %s",
		t.def.Name, strings.Join(columns, ", "), strings.Join(columns, ", :"), t.def.key())

	exec, err := t.session.writer(ctx)
	if err != nil {
		return err
	}
	bound, args, err := exec.BindNamed(query, entity)
	if err != nil {
		return NewStoreError("Create", t.def.Name, keyString(id), err.Error(), ErrInvalidData)
	}

	var created K
	if err := exec.QueryRowxContext(ctx, bound, args...).Scan(&created); err != nil {
		if isUniqueViolation(err) {
			return NewStoreError("Create", t.def.Name, keyString(id), "entity with this ID already exists", ErrDuplicateID)
		}
		return NewStoreError("Create", t.def.Name, keyString(id), err.Error(), err)
	}
	assignID(entity, created)
	return nil
}

// Update writes every mutable column of entity.
func (t *Table[K, T]) Update(ctx context.Context, entity T) error {
	if domain.IsAbsent(entity) {
		return NewStoreError("Update", t.def.Name, "", "entity is nil", ErrInvalidData)
	}
	touch(entity, t.now())
	id := keyString(entity.GetID())

	sets := make([]string, 0, len(t.def.Columns))
	for _, c := range t.def.Columns {
		if slices.Contains(t.def.Immutable, c) {
			continue
		}
		sets = append(sets, c+" = :"+c)
	}
	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = :%s",
		t.def.Name, strings.Join(sets, ", "), t.def.key(), t.def.key())

	exec, err := t.session.writer(ctx)
	if err != nil {
		return err
	}
	bound, args, err := exec.BindNamed(query, entity)
	if err != nil {
		return NewStoreError("Update", t.def.Name, id, err.Error(), ErrInvalidData)
	}

	result, err := exec.ExecContext(ctx, bound, args...)
	if err != nil {
		return NewStoreError("Update", t.def.Name, id, err.Error(), err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return NewStoreError("Update", t.def.Name, id, "entity not found", ErrNotFound)
	}
	return nil
}

// GetAll returns every row ordered by key.
func (t *Table[K, T]) GetAll(ctx context.Context) ([]T, error) {
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s", t.selectColumns(), t.def.Name, t.def.key())

	rows := make([]T, 0)
	if err := t.session.reader().SelectContext(ctx, &rows, query); err != nil {
		return nil, NewStoreError("GetAll", t.def.Name, "", err.Error(), err)
	}
	return rows, nil
}

// Get returns the row with the given key.
func (t *Table[K, T]) Get(ctx context.Context, id K) (T, error) {
	var zero T
	exec := t.session.reader()
	query := exec.Rebind(fmt.Sprintf("SELECT %s FROM %s WHERE %s = ? LIMIT 1",
		t.selectColumns(), t.def.Name, t.def.key()))

	var rows []T
	if err := exec.SelectContext(ctx, &rows, query, id); err != nil {
		return zero, NewStoreError("Get", t.def.Name, keyString(id), err.Error(), err)
	}
	if len(rows) == 0 {
		return zero, NewStoreError("Get", t.def.Name, keyString(id), "entity not found", ErrNotFound)
	}
	return rows[0], nil
}

// Delete removes the row with the given key. A missing row is not an error.
func (t *Table[K, T]) Delete(ctx context.Context, id K) error {
	exec, err := t.session.writer(ctx)
	if err != nil {
		return err
	}
	query := exec.Rebind(fmt.Sprintf("DELETE FROM %s WHERE %s = ?", t.def.Name, t.def.key()))

	if _, err := exec.ExecContext(ctx, query, id); err != nil {
		return NewStoreError("Delete", t.def.Name, keyString(id), err.Error(), err)
	}
	return nil
}

// GetBySpecification pushes SQL specifications down as a WHERE clause and
// filters everything else in memory.
func (t *Table[K, T]) GetBySpecification(ctx context.Context, spec domain.Specification[T]) ([]T, error) {
	sqlSpec, ok := spec.(domain.SQLSpecification[T])
	if !ok {
		all, err := t.GetAll(ctx)
		if err != nil {
			return nil, err
		}
		return domain.Filter(all, spec), nil
	}

	clause, args := sqlSpec.Where()
	exec := t.session.reader()
	query := exec.Rebind(fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY %s",
		t.selectColumns(), t.def.Name, clause, t.def.key()))

	rows := make([]T, 0)
	if err := exec.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, NewStoreError("GetBySpecification", t.def.Name, "", err.Error(), err)
	}
	return rows, nil
}

// =============================================================================
// Helpers
// =============================================================================

func keyString[K comparable](id K) string {
	if domain.IsZeroKey(id) {
		return ""
	}
	return fmt.Sprint(id)
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
