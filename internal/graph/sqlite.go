package graph

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store on an embedded SQLite database. It is
// the single-binary deployment option; traversal reads run in
// read-committed mode, which is equivalent to snapshot isolation here
// because ingestion applies each connector batch in one transaction.
type SQLiteStore struct {
	db *sql.DB
}

var sqliteSchema = []string{
	`PRAGMA journal_mode = WAL`,
	`PRAGMA foreign_keys = ON`,
	`CREATE TABLE IF NOT EXISTS nodes (
		id         TEXT PRIMARY KEY,
		type       TEXT NOT NULL,
		name       TEXT NOT NULL,
		properties TEXT NOT NULL DEFAULT '{}'
	)`,
	`CREATE TABLE IF NOT EXISTS edges (
		id         TEXT PRIMARY KEY,
		type       TEXT NOT NULL,
		source     TEXT NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
		target     TEXT NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
		properties TEXT NOT NULL DEFAULT '{}'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_nodes_type ON nodes(type)`,
	`CREATE INDEX IF NOT EXISTS idx_edges_source ON edges(source)`,
	`CREATE INDEX IF NOT EXISTS idx_edges_target ON edges(target)`,
}

// NewSQLiteStore opens (creating if needed) a SQLite graph database.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("connecting to sqlite: %w", err)
	}
	for _, stmt := range sqliteSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("applying schema: %w", err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) GetNode(ctx context.Context, id string) (Node, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, type, name, properties FROM nodes WHERE id = ?`, id)
	node, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Node{}, NotFoundError(id)
	}
	if err != nil {
		return Node{}, StoreError("get node", err)
	}
	return node, nil
}

func (s *SQLiteStore) ListNodes(ctx context.Context, filter Filter) ([]Node, error) {
	query := `SELECT id, type, name, properties FROM nodes`
	var conditions []string
	var args []any
	if filter.Type != "" {
		conditions = append(conditions, `type = ?`)
		args = append(args, filter.Type)
	}
	if filter.NameContains != "" {
		conditions = append(conditions, `(lower(name) LIKE ? OR lower(id) LIKE ?)`)
		needle := "%" + strings.ToLower(filter.NameContains) + "%"
		args = append(args, needle, needle)
	}
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY id`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, StoreError("list nodes", err)
	}
	defer rows.Close()

	var nodes []Node
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, StoreError("list nodes", err)
		}
		nodes = append(nodes, node)
	}
	if err := rows.Err(); err != nil {
		return nil, StoreError("list nodes", err)
	}
	return nodes, nil
}

func (s *SQLiteStore) GetNeighbors(ctx context.Context, id string, dir Direction, edgeTypes []string) ([]Neighbor, error) {
	var clause string
	switch dir {
	case Outgoing:
		clause = `e.source = ?1`
	case Incoming:
		clause = `e.target = ?1`
	case Both:
		clause = `(e.source = ?1 OR e.target = ?1)`
	}
	args := []any{id}

	query := `
		SELECT e.id, e.type, e.source, e.target, e.properties,
		       n.id, n.type, n.name, n.properties
		FROM edges e
		JOIN nodes n ON n.id = CASE WHEN e.source = ?1 THEN e.target ELSE e.source END
		WHERE ` + clause
	if len(edgeTypes) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(edgeTypes)), ",")
		query += ` AND e.type IN (` + placeholders + `)`
		for _, t := range edgeTypes {
			args = append(args, t)
		}
	}
	query += ` ORDER BY e.id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, StoreError("get neighbors", err)
	}
	defer rows.Close()

	var neighbors []Neighbor
	for rows.Next() {
		var edge Edge
		var node Node
		var edgeProps, nodeProps string
		if err := rows.Scan(&edge.ID, &edge.Type, &edge.Source, &edge.Target, &edgeProps,
			&node.ID, &node.Type, &node.Name, &nodeProps); err != nil {
			return nil, StoreError("get neighbors", err)
		}
		if err := json.Unmarshal([]byte(edgeProps), &edge.Properties); err != nil {
			return nil, StoreError("get neighbors", err)
		}
		if err := json.Unmarshal([]byte(nodeProps), &node.Properties); err != nil {
			return nil, StoreError("get neighbors", err)
		}
		neighbors = append(neighbors, Neighbor{Edge: edge, Node: node})
	}
	if err := rows.Err(); err != nil {
		return nil, StoreError("get neighbors", err)
	}
	return neighbors, nil
}

func (s *SQLiteStore) UpsertNode(ctx context.Context, node Node) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return StoreError("upsert node", err)
	}
	defer tx.Rollback()

	var existingProps, existingName, existingType string
	err = tx.QueryRowContext(ctx,
		`SELECT properties, name, type FROM nodes WHERE id = ?`, node.ID).
		Scan(&existingProps, &existingName, &existingType)
	switch {
	case err == nil:
		var existing map[string]any
		if jsonErr := json.Unmarshal([]byte(existingProps), &existing); jsonErr == nil {
			node.Properties = MergeProperties(existing, node.Properties)
		}
		if node.Name == "" {
			node.Name = existingName
		}
		if node.Type == "" {
			node.Type = existingType
		}
	case errors.Is(err, sql.ErrNoRows):
		// fresh insert
	default:
		return StoreError("upsert node", err)
	}

	propsJSON, err := json.Marshal(node.Properties)
	if err != nil {
		return StoreError("upsert node", err)
	}
	if node.Properties == nil {
		propsJSON = []byte("{}")
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO nodes (id, type, name, properties) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET type = excluded.type, name = excluded.name, properties = excluded.properties
	`, node.ID, node.Type, node.Name, string(propsJSON))
	if err != nil {
		return StoreError("upsert node", err)
	}
	if err := tx.Commit(); err != nil {
		return StoreError("upsert node", err)
	}
	return nil
}

func (s *SQLiteStore) UpsertEdge(ctx context.Context, edge Edge) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return StoreError("upsert edge", err)
	}
	defer tx.Rollback()

	for _, endpoint := range []string{edge.Source, edge.Target} {
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM nodes WHERE id = ?`, endpoint).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return DanglingReferenceError(edge.ID, endpoint)
		}
		if err != nil {
			return StoreError("upsert edge", err)
		}
	}

	var existingProps string
	err = tx.QueryRowContext(ctx, `SELECT properties FROM edges WHERE id = ?`, edge.ID).Scan(&existingProps)
	if err == nil {
		var existing map[string]any
		if jsonErr := json.Unmarshal([]byte(existingProps), &existing); jsonErr == nil {
			edge.Properties = MergeProperties(existing, edge.Properties)
		}
	} else if !errors.Is(err, sql.ErrNoRows) {
		return StoreError("upsert edge", err)
	}

	propsJSON, err := json.Marshal(edge.Properties)
	if err != nil {
		return StoreError("upsert edge", err)
	}
	if edge.Properties == nil {
		propsJSON = []byte("{}")
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO edges (id, type, source, target, properties) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET type = excluded.type, source = excluded.source, target = excluded.target, properties = excluded.properties
	`, edge.ID, edge.Type, edge.Source, edge.Target, string(propsJSON))
	if err != nil {
		return StoreError("upsert edge", err)
	}
	if err := tx.Commit(); err != nil {
		return StoreError("upsert edge", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteNode(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM nodes WHERE id = ?`, id)
	if err != nil {
		return StoreError("delete node", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return StoreError("delete node", err)
	}
	if affected == 0 {
		return NotFoundError(id)
	}
	return nil
}

func (s *SQLiteStore) NodeCount(ctx context.Context) (int, error) {
	return s.count(ctx, `SELECT count(*) FROM nodes`)
}

func (s *SQLiteStore) EdgeCount(ctx context.Context) (int, error) {
	return s.count(ctx, `SELECT count(*) FROM edges`)
}

func (s *SQLiteStore) count(ctx context.Context, query string) (int, error) {
	var c int
	if err := s.db.QueryRowContext(ctx, query).Scan(&c); err != nil {
		return 0, StoreError("count", err)
	}
	return c, nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM edges`); err != nil {
		return StoreError("clear", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM nodes`); err != nil {
		return StoreError("clear", err)
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return StoreError("ping", err)
	}
	return nil
}

func (s *SQLiteStore) Close(ctx context.Context) error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(row rowScanner) (Node, error) {
	var node Node
	var props string
	if err := row.Scan(&node.ID, &node.Type, &node.Name, &props); err != nil {
		return Node{}, err
	}
	if err := json.Unmarshal([]byte(props), &node.Properties); err != nil {
		return Node{}, fmt.Errorf("unmarshaling properties: %w", err)
	}
	return node, nil
}
