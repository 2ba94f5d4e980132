package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jward/thicket/internal/graph"
)

// Compile-time check: *Store can back graph.Store.Commit with deltas.
var _ graph.DeltaSink = (*Store)(nil)

// SaveSnapshot replaces the saved generation with snap in one transaction.
func (s *Store) SaveSnapshot(ctx context.Context, snap *graph.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save snapshot: begin: %w", err)
	}
	defer tx.Rollback()

	if err := clearTx(ctx, tx); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	if err := writeRowsTx(ctx, tx, snap); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return tx.Commit()
}

// SaveDelta rewrites only the rows of the files and entities d names, the
// way a changed file's data is deleted and re-inserted. Everything else
// keeps its saved rows.
func (s *Store) SaveDelta(ctx context.Context, d *graph.Delta) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save delta: begin: %w", err)
	}
	defer tx.Rollback()

	if err := deleteDeltaTx(ctx, tx, d); err != nil {
		return fmt.Errorf("save delta: %w", err)
	}
	if err := writeRowsTx(ctx, tx, d.Rows); err != nil {
		return fmt.Errorf("save delta: %w", err)
	}
	return tx.Commit()
}

// deleteDeltaTx removes the per-file rows of every path in d, then the node
// and edge rows of entities d no longer carries. Edges go before nodes, which
// they reference.
func deleteDeltaTx(ctx context.Context, tx *sql.Tx, d *graph.Delta) error {
	for _, path := range d.Paths {
		for _, q := range []string{
			"DELETE FROM errors WHERE file = ?",
			"DELETE FROM locations WHERE file = ?",
			"DELETE FROM contributions WHERE file = ?",
			"DELETE FROM node_attributes WHERE file = ?",
			"DELETE FROM file_contributions WHERE file_id IN (SELECT id FROM files WHERE path = ?)",
			"DELETE FROM files WHERE path = ?",
		} {
			if _, err := tx.ExecContext(ctx, q, path); err != nil {
				return fmt.Errorf("delete rows of %s: %w", path, err)
			}
		}
	}

	live := make(map[graph.ID]bool, len(d.Rows.Nodes)+len(d.Rows.Edges))
	for _, n := range d.Rows.Nodes {
		live[n.ID] = true
	}
	for _, e := range d.Rows.Edges {
		live[e.ID] = true
	}
	for _, table := range []string{"edges", "nodes"} {
		for _, id := range d.Entities {
			if live[id] {
				continue
			}
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE id = ?", id); err != nil {
				return fmt.Errorf("delete %s %d: %w", table, id, err)
			}
		}
	}
	return nil
}

// writeRowsTx writes snap's rows in dependency order: files, nodes, edges,
// then everything that references them. Nodes and edges are upserted so a
// delta can refresh rows that already exist.
func writeRowsTx(ctx context.Context, tx *sql.Tx, snap *graph.Snapshot) error {
	for _, f := range snap.Files {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO files (id, path, signature, sealed) VALUES (?, ?, ?, ?)",
			f.ID, f.Path, f.Signature, f.Sealed); err != nil {
			return fmt.Errorf("insert file %s: %w", f.Path, err)
		}
		for _, id := range f.Contributed {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO file_contributions (file_id, entity_id) VALUES (?, ?)",
				f.ID, id); err != nil {
				return fmt.Errorf("insert contribution of %s: %w", f.Path, err)
			}
		}
	}

	for _, n := range snap.Nodes {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO nodes (id, kind, name, attributes) VALUES (?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET attributes = excluded.attributes`,
			n.ID, n.Kind, n.Name, marshalAttributes(n.Attributes)); err != nil {
			return fmt.Errorf("upsert node %s %s: %w", n.Kind, n.Name, err)
		}
	}
	for _, e := range snap.Edges {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO edges (id, kind, source_id, target_id) VALUES (?, ?, ?, ?) ON CONFLICT(id) DO NOTHING",
			e.ID, e.Kind, e.SourceID, e.TargetID); err != nil {
			return fmt.Errorf("insert edge %d: %w", e.ID, err)
		}
	}

	for _, a := range snap.Attributes {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO node_attributes (node_id, file, key, value) VALUES (?, ?, ?, ?)",
			a.NodeID, a.File, a.Key, a.Value); err != nil {
			return fmt.Errorf("insert attribute %q of node %d: %w", a.Key, a.NodeID, err)
		}
	}
	for _, c := range snap.Contributions {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO contributions (entity_id, file) VALUES (?, ?)",
			c.EntityID, c.File); err != nil {
			return fmt.Errorf("insert contribution to %d: %w", c.EntityID, err)
		}
	}
	for _, l := range snap.Locations {
		args := append([]any{l.ID, l.FileID, l.File, l.OwnerID}, spanArgs(&l.Span)...)
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO locations (id, file_id, file, owner_id, start_line, start_col, end_line, end_col) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
			args...); err != nil {
			return fmt.Errorf("insert location %d: %w", l.ID, err)
		}
	}
	for _, e := range snap.Errors {
		args := append([]any{e.ID, e.FileID, e.File, e.Message}, spanArgs(e.Span)...)
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO errors (id, file_id, file, message, start_line, start_col, end_line, end_col) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
			args...); err != nil {
			return fmt.Errorf("insert error %d: %w", e.ID, err)
		}
	}

	for key, value := range map[string]string{
		"schema_version": schemaVersion,
		"last_id":        formatID(snap.LastID),
		"saved_at":       time.Now().UTC().Format(time.RFC3339),
	} {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO metadata (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
			key, value); err != nil {
			return fmt.Errorf("write metadata %s: %w", key, err)
		}
	}
	return nil
}

// LoadSnapshot reads the saved generation. It returns ErrNoSnapshot when
// SaveSnapshot has never run (or after Clear).
func (s *Store) LoadSnapshot(ctx context.Context) (*graph.Snapshot, error) {
	meta, err := s.metadata(ctx)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	raw, ok := meta["last_id"]
	if !ok {
		return nil, ErrNoSnapshot
	}
	if v := meta["schema_version"]; v != schemaVersion {
		return nil, fmt.Errorf("load snapshot: schema version %q, want %q", v, schemaVersion)
	}
	lastID, err := parseID(raw)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: last id %q: %w", raw, err)
	}

	snap := &graph.Snapshot{LastID: lastID}
	for _, load := range []func(context.Context, *graph.Snapshot) error{
		s.loadFiles,
		s.loadNodes,
		s.loadAttributes,
		s.loadEdges,
		s.loadContributions,
		s.loadLocations,
		s.loadErrors,
	} {
		if err := load(ctx, snap); err != nil {
			return nil, fmt.Errorf("load snapshot: %w", err)
		}
	}
	return snap, nil
}

// SavedAt returns when the current snapshot was written.
func (s *Store) SavedAt(ctx context.Context) (time.Time, error) {
	meta, err := s.metadata(ctx)
	if err != nil {
		return time.Time{}, err
	}
	raw, ok := meta["saved_at"]
	if !ok {
		return time.Time{}, ErrNoSnapshot
	}
	return time.Parse(time.RFC3339, raw)
}

func (s *Store) metadata(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key, value FROM metadata")
	if err != nil {
		return nil, fmt.Errorf("query metadata: %w", err)
	}
	defer rows.Close()

	meta := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan metadata: %w", err)
		}
		meta[k] = v
	}
	return meta, rows.Err()
}

func (s *Store) loadFiles(ctx context.Context, snap *graph.Snapshot) error {
	rows, err := s.db.QueryContext(ctx, "SELECT id, path, signature, sealed FROM files ORDER BY path")
	if err != nil {
		return fmt.Errorf("query files: %w", err)
	}
	defer rows.Close()

	byID := make(map[graph.ID]int)
	for rows.Next() {
		f := graph.File{Contributed: []graph.ID{}}
		if err := rows.Scan(&f.ID, &f.Path, &f.Signature, &f.Sealed); err != nil {
			return fmt.Errorf("scan file: %w", err)
		}
		byID[f.ID] = len(snap.Files)
		snap.Files = append(snap.Files, f)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	crows, err := s.db.QueryContext(ctx, "SELECT file_id, entity_id FROM file_contributions ORDER BY file_id, entity_id")
	if err != nil {
		return fmt.Errorf("query file contributions: %w", err)
	}
	defer crows.Close()
	for crows.Next() {
		var fileID, entityID graph.ID
		if err := crows.Scan(&fileID, &entityID); err != nil {
			return fmt.Errorf("scan file contribution: %w", err)
		}
		idx, ok := byID[fileID]
		if !ok {
			return fmt.Errorf("contribution of unknown file %d", fileID)
		}
		snap.Files[idx].Contributed = append(snap.Files[idx].Contributed, entityID)
	}
	return crows.Err()
}

func (s *Store) loadNodes(ctx context.Context, snap *graph.Snapshot) error {
	rows, err := s.db.QueryContext(ctx, "SELECT id, kind, name, attributes FROM nodes ORDER BY id")
	if err != nil {
		return fmt.Errorf("query nodes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var n graph.Node
		var attrs sql.NullString
		if err := rows.Scan(&n.ID, &n.Kind, &n.Name, &attrs); err != nil {
			return fmt.Errorf("scan node: %w", err)
		}
		n.Attributes = unmarshalAttributes(attrs.String)
		snap.Nodes = append(snap.Nodes, n)
	}
	return rows.Err()
}

func (s *Store) loadAttributes(ctx context.Context, snap *graph.Snapshot) error {
	rows, err := s.db.QueryContext(ctx, "SELECT node_id, file, key, value FROM node_attributes ORDER BY node_id, file, key")
	if err != nil {
		return fmt.Errorf("query attributes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var a graph.Attribute
		if err := rows.Scan(&a.NodeID, &a.File, &a.Key, &a.Value); err != nil {
			return fmt.Errorf("scan attribute: %w", err)
		}
		snap.Attributes = append(snap.Attributes, a)
	}
	return rows.Err()
}

func (s *Store) loadEdges(ctx context.Context, snap *graph.Snapshot) error {
	rows, err := s.db.QueryContext(ctx, "SELECT id, kind, source_id, target_id FROM edges ORDER BY id")
	if err != nil {
		return fmt.Errorf("query edges: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var e graph.Edge
		if err := rows.Scan(&e.ID, &e.Kind, &e.SourceID, &e.TargetID); err != nil {
			return fmt.Errorf("scan edge: %w", err)
		}
		snap.Edges = append(snap.Edges, e)
	}
	return rows.Err()
}

func (s *Store) loadContributions(ctx context.Context, snap *graph.Snapshot) error {
	rows, err := s.db.QueryContext(ctx, "SELECT entity_id, file FROM contributions ORDER BY entity_id, file")
	if err != nil {
		return fmt.Errorf("query contributions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var c graph.Contribution
		if err := rows.Scan(&c.EntityID, &c.File); err != nil {
			return fmt.Errorf("scan contribution: %w", err)
		}
		snap.Contributions = append(snap.Contributions, c)
	}
	return rows.Err()
}

func (s *Store) loadLocations(ctx context.Context, snap *graph.Snapshot) error {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, file_id, file, owner_id, start_line, start_col, end_line, end_col FROM locations ORDER BY id")
	if err != nil {
		return fmt.Errorf("query locations: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var l graph.Location
		if err := rows.Scan(&l.ID, &l.FileID, &l.File, &l.OwnerID,
			&l.Span.StartLine, &l.Span.StartCol, &l.Span.EndLine, &l.Span.EndCol); err != nil {
			return fmt.Errorf("scan location: %w", err)
		}
		snap.Locations = append(snap.Locations, l)
	}
	return rows.Err()
}

func (s *Store) loadErrors(ctx context.Context, snap *graph.Snapshot) error {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, file_id, file, message, start_line, start_col, end_line, end_col FROM errors ORDER BY id")
	if err != nil {
		return fmt.Errorf("query errors: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var e graph.ErrorRecord
		var sl, sc, el, ec sql.NullInt64
		if err := rows.Scan(&e.ID, &e.FileID, &e.File, &e.Message, &sl, &sc, &el, &ec); err != nil {
			return fmt.Errorf("scan error record: %w", err)
		}
		e.Span = scanSpan(sl, sc, el, ec)
		snap.Errors = append(snap.Errors, e)
	}
	return rows.Err()
}
