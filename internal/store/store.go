package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"maimai-scraper/internal/components/assert"
	"maimai-scraper/internal/components/telemetry"
	"maimai-scraper/pkg/sqliteutil"
)

const (
	report_store_ensure_schema = "store.ensure-schema"
	report_store_insert        = "store.insert"
	report_store_upsert        = "store.upsert"
	report_store_select        = "store.select"
	report_store_exists        = "store.exists"
	report_store_existing_keys = "store.existing-keys"
)

// ErrConstraint is returned (wrapped) by Upsert when the write violates a
// unique or not null constraint.
var ErrConstraint = errors.New("constraint violation")

// existingKeysChunk keeps IN (...) lists below sqlite's variable limit.
const existingKeysChunk = 500

// Store maps records to and from the tables it was given. It owns the
// database handle and serializes all access to it.
type Store struct {
	mutex  sync.Mutex
	db     *sql.DB
	tables []Table
	tel    telemetry.API
}

func New(db *sql.DB, tables []Table, tel telemetry.API) *Store {
	assert.NotNil(db)
	assert.NotNil(tel)

	return &Store{
		db:     db,
		tables: tables,
		tel:    tel,
	}
}

func (s *Store) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.db.Close()
}

func (s *Store) objectExists(ctx context.Context, kind, name string) (bool, error) {
	var found string
	err := s.db.QueryRowContext(
		ctx,
		"SELECT name FROM sqlite_master WHERE type = ? AND name = ?",
		kind, name,
	).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// EnsureSchema creates every declared table and index that does not exist
// yet. It never drops or alters anything, failures are reported and the
// remaining tables are still attempted.
func (s *Store) EnsureSchema(ctx context.Context) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for _, t := range s.tables {
		err := s.ensureTable(ctx, t)
		if err != nil {
			s.tel.ReportBroken(report_store_ensure_schema, err, t.Name)
		}
	}
}

func (s *Store) ensureTable(ctx context.Context, t Table) error {
	exists, err := s.objectExists(ctx, "table", t.Name)
	if err != nil {
		return fmt.Errorf("check table: %w", err)
	}
	if !exists {
		_, err = s.db.ExecContext(ctx, t.CreateSQL())
		if err != nil {
			return fmt.Errorf("create table: %w", err)
		}
		s.tel.ReportDebug("created table", t.Name)
	}

	for _, idx := range t.Indexes {
		exists, err := s.objectExists(ctx, "index", idx.Name)
		if err != nil {
			return fmt.Errorf("check index %s: %w", idx.Name, err)
		}
		if exists {
			continue
		}
		_, err = s.db.ExecContext(ctx, idx.CreateSQL(t.Name))
		if err != nil {
			return fmt.Errorf("create index %s: %w", idx.Name, err)
		}
		s.tel.ReportDebug("created index", idx.Name)
	}
	return nil
}

// insertColumns returns the columns and arguments of every non-null field
// of rec that maps to a writable column.
func insertColumns(t Table, rec Record) ([]string, []any) {
	var cols []string
	var args []any
	for _, c := range t.Columns {
		if c.AutoIncrement {
			continue
		}
		v := rec.Get(c.Name)
		if v.IsNull() {
			continue
		}
		cols = append(cols, c.Name)
		args = append(args, v.arg())
	}
	return cols, args
}

func (s *Store) insert(ctx context.Context, t Table, rec Record) (sql.Result, error) {
	cols, args := insertColumns(t, rec)
	if len(cols) == 0 {
		return s.db.ExecContext(ctx, fmt.Sprintf("INSERT INTO %s DEFAULT VALUES", t.Name))
	}
	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		t.Name,
		strings.Join(cols, ", "),
		placeholders(len(cols)),
	)
	return s.db.ExecContext(ctx, query, args...)
}

// Insert writes a new row, fields not belonging to the table are ignored.
// A constraint violation (ex. a duplicate natural key) returns false with
// no error, any other failure is returned.
func (s *Store) Insert(ctx context.Context, t Table, rec Record) (bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	_, err := s.insert(ctx, t, rec)
	if sqliteutil.IsConstraint(err) {
		s.tel.ReportWarning(report_store_insert, err, t.Name)
		return false, nil
	}
	if err != nil {
		s.tel.ReportBroken(report_store_insert, err, t.Name)
		return false, fmt.Errorf("insert %s: %w", t.Name, err)
	}
	return true, nil
}

// lookupFilter returns the filter identifying the row rec should be merged
// into, nil if rec does not carry the key its table merges by.
func lookupFilter(t Table, rec Record) Record {
	switch t.Merge {
	case MergeByNaturalKey:
		if len(t.NaturalKey) == 0 {
			return nil
		}
		filter := Record{}
		for _, k := range t.NaturalKey {
			v := rec.Get(k)
			if v.IsNull() {
				return nil
			}
			filter[k] = v
		}
		return filter
	default:
		pk, ok := t.PrimaryKey()
		if !ok {
			return nil
		}
		v := rec.Get(pk.Name)
		if v.IsNull() {
			return nil
		}
		return Record{pk.Name: v}
	}
}

// Upsert merges rec into the row its table's merge strategy identifies,
// or inserts it when there is none. The stored row is returned.
func (s *Store) Upsert(ctx context.Context, t Table, rec Record) (Record, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	out, err := s.upsert(ctx, t, rec)
	if sqliteutil.IsConstraint(err) {
		s.tel.ReportWarning(report_store_upsert, err, t.Name)
		return nil, fmt.Errorf("upsert %s: %w: %w", t.Name, ErrConstraint, err)
	}
	if err != nil {
		s.tel.ReportBroken(report_store_upsert, err, t.Name)
		return nil, fmt.Errorf("upsert %s: %w", t.Name, err)
	}
	return out, nil
}

func (s *Store) upsert(ctx context.Context, t Table, rec Record) (Record, error) {
	pk, hasPk := t.PrimaryKey()

	var prev Record
	if filter := lookupFilter(t, rec); filter != nil {
		rows, err := s.query(ctx, t, Query{Filter: filter, Limit: 1})
		if err != nil {
			return nil, err
		}
		if len(rows) > 0 {
			prev = rows[0]
		}
	}

	if prev == nil {
		res, err := s.insert(ctx, t, rec)
		if err != nil {
			return nil, err
		}
		out := Merge(nil, rec)
		for k := range out {
			if _, ok := t.Column(k); !ok {
				delete(out, k)
			}
		}
		if hasPk && pk.AutoIncrement {
			id, err := res.LastInsertId()
			if err != nil {
				return nil, err
			}
			out[pk.Name] = Int(id)
		}
		return out, nil
	}

	merged := Merge(prev, rec)
	var sets []string
	var args []any
	for _, c := range t.Columns {
		if hasPk && c.Name == pk.Name {
			continue
		}
		sets = append(sets, c.Name+" = ?")
		args = append(args, merged.Get(c.Name).arg())
	}
	if len(sets) == 0 {
		return prev, nil
	}

	where := prev.Get(pk.Name)
	if !hasPk || where.IsNull() {
		return nil, fmt.Errorf("table %s has no primary key to update by", t.Name)
	}
	args = append(args, where.arg())
	_, err := s.db.ExecContext(
		ctx,
		fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?", t.Name, strings.Join(sets, ", "), pk.Name),
		args...,
	)
	if err != nil {
		return nil, err
	}

	for k := range merged {
		if _, ok := t.Column(k); !ok {
			delete(merged, k)
		}
	}
	return merged, nil
}

// Query is a Select with explicit ordering.
type Query struct {
	Filter Record
	// Limit <= 0 returns every match.
	Limit   int
	OrderBy string
	Desc    bool
}

func (s *Store) query(ctx context.Context, t Table, q Query) ([]Record, error) {
	var where []string
	var args []any
	for _, c := range t.Columns {
		v := q.Filter.Get(c.Name)
		if v.IsNull() {
			continue
		}
		where = append(where, c.Name+" = ?")
		args = append(args, v.arg())
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s", strings.Join(t.columnNames(), ", "), t.Name)
	if len(where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(where, " AND "))
	}
	if q.OrderBy != "" {
		if _, ok := t.Column(q.OrderBy); !ok {
			return nil, fmt.Errorf("unknown order column %q", q.OrderBy)
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(q.OrderBy)
		if q.Desc {
			sb.WriteString(" DESC")
		}
	}
	if q.Limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		raw := make([]any, len(t.Columns))
		ptrs := make([]any, len(t.Columns))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		err = rows.Scan(ptrs...)
		if err != nil {
			return nil, err
		}

		rec := Record{}
		for i, c := range t.Columns {
			v, err := valueFromDB(c.Type, raw[i])
			if err != nil {
				return nil, fmt.Errorf("column %s: %w", c.Name, err)
			}
			if !v.IsNull() {
				rec[c.Name] = v
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Select returns the rows matching every non-null field of filter that
// names a column of the table, other fields are ignored. A limit <= 0
// returns every match. Errors are reported and yield no rows.
func (s *Store) Select(ctx context.Context, t Table, filter Record, limit int) []Record {
	return s.SelectQuery(ctx, t, Query{Filter: filter, Limit: limit})
}

func (s *Store) SelectQuery(ctx context.Context, t Table, q Query) []Record {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	out, err := s.query(ctx, t, q)
	if err != nil {
		s.tel.ReportBroken(report_store_select, err, t.Name)
		return nil
	}
	return out
}

func (s *Store) SelectOne(ctx context.Context, t Table, filter Record) (Record, bool) {
	rows := s.Select(ctx, t, filter, 1)
	if len(rows) == 0 {
		return nil, false
	}
	return rows[0], true
}

// Exists checks for a row by the table's natural key, values are given in
// the order of Table.NaturalKey.
func (s *Store) Exists(ctx context.Context, t Table, key ...Value) bool {
	if len(t.NaturalKey) == 0 || len(key) != len(t.NaturalKey) {
		s.tel.ReportBroken(
			report_store_exists,
			fmt.Errorf("expected %d key values, got %d", len(t.NaturalKey), len(key)),
			t.Name,
		)
		return false
	}

	where := make([]string, len(key))
	args := make([]any, len(key))
	for i, k := range t.NaturalKey {
		if key[i].IsNull() {
			return false
		}
		where[i] = k + " = ?"
		args[i] = key[i].arg()
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	var one int
	err := s.db.QueryRowContext(
		ctx,
		fmt.Sprintf("SELECT 1 FROM %s WHERE %s LIMIT 1", t.Name, strings.Join(where, " AND ")),
		args...,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false
	}
	if err != nil {
		s.tel.ReportBroken(report_store_exists, err, t.Name)
		return false
	}
	return true
}

// ExistingKeys returns which of the given keys are already stored, it only
// works for tables with a single column natural key.
func (s *Store) ExistingKeys(ctx context.Context, t Table, keys []string) map[string]bool {
	out := make(map[string]bool, len(keys))
	if len(t.NaturalKey) != 1 {
		s.tel.ReportBroken(
			report_store_existing_keys,
			fmt.Errorf("table has a %d column natural key", len(t.NaturalKey)),
			t.Name,
		)
		return out
	}
	column := t.NaturalKey[0]

	s.mutex.Lock()
	defer s.mutex.Unlock()

	for start := 0; start < len(keys); start += existingKeysChunk {
		end := min(start+existingKeysChunk, len(keys))
		chunk := keys[start:end]

		args := make([]any, len(chunk))
		for i, k := range chunk {
			args[i] = k
		}
		rows, err := s.db.QueryContext(
			ctx,
			fmt.Sprintf(
				"SELECT %s FROM %s WHERE %s IN (%s)",
				column, t.Name, column, placeholders(len(chunk)),
			),
			args...,
		)
		if err != nil {
			s.tel.ReportBroken(report_store_existing_keys, err, t.Name)
			return out
		}
		for rows.Next() {
			var raw any
			err = rows.Scan(&raw)
			if err != nil {
				break
			}
			v, err := valueFromDB(TypeText, raw)
			if err == nil && !v.IsNull() {
				out[v.String()] = true
			}
		}
		if err == nil {
			err = rows.Err()
		}
		rows.Close()
		if err != nil {
			s.tel.ReportBroken(report_store_existing_keys, err, t.Name)
			return out
		}
	}
	return out
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}
