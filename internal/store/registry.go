package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/holoclient/internal/clone"
)

// Registry is a clone.Registry backed by a Store.
type Registry struct {
	store *Store
}

var _ clone.Registry = (*Registry)(nil)

// NewRegistry wraps s as a clone registry.
func NewRegistry(s *Store) *Registry {
	return &Registry{store: s}
}

// Transition is one entry of a clone's state history.
type Transition struct {
	Seq  int64
	Key  clone.Key
	From clone.State // empty for the first entry
	To   clone.State
	At   int64 // unix microseconds
}

// Get returns the record for key or clone.ErrNotFound.
func (r *Registry) Get(ctx context.Context, key clone.Key) (clone.Record, error) {
	key = key.Normalized()
	row := r.store.db.QueryRowContext(ctx, `
		SELECT app_id, role_name, clone_index, cell_id, state, modifiers, name, updated_at
		FROM clone_cells
		WHERE app_id = ? AND role_name = ? AND clone_index = ?
	`, key.AppID, key.Role, key.Index)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return clone.Record{}, clone.ErrNotFound
	}
	return rec, err
}

// Put upserts rec and, when its state changed, appends a transition.
func (r *Registry) Put(ctx context.Context, rec clone.Record) error {
	rec.Key = rec.Key.Normalized()
	modifiers, err := marshalModifiers(rec.Modifiers)
	if err != nil {
		return err
	}

	tx, err := r.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var prev sql.NullString
	err = tx.QueryRowContext(ctx, `
		SELECT state FROM clone_cells
		WHERE app_id = ? AND role_name = ? AND clone_index = ?
	`, rec.AppID, rec.Role, rec.Index).Scan(&prev)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("read previous state: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO clone_cells (app_id, role_name, clone_index, cell_id, state, modifiers, name, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (app_id, role_name, clone_index) DO UPDATE SET
			cell_id = excluded.cell_id,
			state = excluded.state,
			modifiers = excluded.modifiers,
			name = excluded.name,
			updated_at = excluded.updated_at
	`, rec.AppID, rec.Role, rec.Index, marshalCellID(rec.CellID), string(rec.State),
		modifiers, rec.Name, marshalTime(rec.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert clone %s: %w", rec.Key, err)
	}

	if !prev.Valid || prev.String != string(rec.State) {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO clone_transitions (app_id, role_name, clone_index, from_state, to_state, at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, rec.AppID, rec.Role, rec.Index, prev, string(rec.State), marshalTime(rec.UpdatedAt))
		if err != nil {
			return fmt.Errorf("append transition for %s: %w", rec.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit clone %s: %w", rec.Key, err)
	}
	return nil
}

// Remove drops the record for key. Its transition history is kept.
func (r *Registry) Remove(ctx context.Context, key clone.Key) error {
	key = key.Normalized()
	_, err := r.store.db.ExecContext(ctx, `
		DELETE FROM clone_cells
		WHERE app_id = ? AND role_name = ? AND clone_index = ?
	`, key.AppID, key.Role, key.Index)
	if err != nil {
		return fmt.Errorf("remove clone %s: %w", key, err)
	}
	return nil
}

// List returns every record of app ordered by role, then index.
func (r *Registry) List(ctx context.Context, app string) ([]clone.Record, error) {
	app = clone.Key{AppID: app}.Normalized().AppID
	rows, err := r.store.db.QueryContext(ctx, `
		SELECT app_id, role_name, clone_index, cell_id, state, modifiers, name, updated_at
		FROM clone_cells
		WHERE app_id = ?
		ORDER BY role_name COLLATE BINARY ASC, clone_index ASC
	`, app)
	if err != nil {
		return nil, fmt.Errorf("list clones: %w", err)
	}
	defer rows.Close()

	var out []clone.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate clones: %w", err)
	}
	return out, nil
}

// History returns the transitions of key in the order they happened.
func (r *Registry) History(ctx context.Context, key clone.Key) ([]Transition, error) {
	key = key.Normalized()
	rows, err := r.store.db.QueryContext(ctx, `
		SELECT seq, from_state, to_state, at
		FROM clone_transitions
		WHERE app_id = ? AND role_name = ? AND clone_index = ?
		ORDER BY seq ASC
	`, key.AppID, key.Role, key.Index)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []Transition
	for rows.Next() {
		var (
			t    Transition
			from sql.NullString
			to   string
		)
		if err := rows.Scan(&t.Seq, &from, &to, &t.At); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		t.Key = key
		t.From = clone.State(from.String)
		t.To = clone.State(to)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (clone.Record, error) {
	var (
		rec       clone.Record
		cellID    string
		state     string
		modifiers []byte
		updatedAt int64
	)
	if err := row.Scan(&rec.AppID, &rec.Role, &rec.Index, &cellID, &state, &modifiers, &rec.Name, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return clone.Record{}, err
		}
		return clone.Record{}, fmt.Errorf("scan clone: %w", err)
	}

	var err error
	if rec.CellID, err = unmarshalCellID(cellID); err != nil {
		return clone.Record{}, err
	}
	if rec.State, err = clone.ParseState(state); err != nil {
		return clone.Record{}, err
	}
	if rec.Modifiers, err = unmarshalModifiers(modifiers); err != nil {
		return clone.Record{}, err
	}
	rec.UpdatedAt = unmarshalTime(updatedAt)
	return rec, nil
}
