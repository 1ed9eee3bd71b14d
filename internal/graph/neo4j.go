package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Neo4jStore implements Store against a Neo4j database. Every node
// carries the Entity label plus a type property; relationships get a
// sanitized UPPER_SNAKE type and keep the original type string as a
// property so filtering works uniformly.
//
// Reads run inside ExecuteRead, which gives the transactional snapshot
// isolation the traversal engine requires.
type Neo4jStore struct {
	driver   neo4j.DriverWithContext
	database string
}

// Neo4jConfig holds connection settings.
type Neo4jConfig struct {
	URI      string
	Username string
	Password string
	Database string
}

// NewNeo4jStore connects to Neo4j and verifies connectivity.
func NewNeo4jStore(ctx context.Context, cfg Neo4jConfig) (*Neo4jStore, error) {
	driver, err := neo4j.NewDriverWithContext(
		cfg.URI,
		neo4j.BasicAuth(cfg.Username, cfg.Password, ""),
	)
	if err != nil {
		return nil, fmt.Errorf("creating neo4j driver: %w", err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("connecting to neo4j: %w", err)
	}

	database := cfg.Database
	if database == "" {
		database = "neo4j"
	}
	return &Neo4jStore{driver: driver, database: database}, nil
}

func (s *Neo4jStore) session(ctx context.Context) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
}

func (s *Neo4jStore) GetNode(ctx context.Context, id string) (Node, error) {
	session := s.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		records, err := tx.Run(ctx, `MATCH (n:Entity {id: $id}) RETURN n`, map[string]any{"id": id})
		if err != nil {
			return nil, err
		}
		if !records.Next(ctx) {
			return nil, NotFoundError(id)
		}
		value, _ := records.Record().Get("n")
		return nodeFromNeo4j(value.(neo4j.Node))
	})
	if err != nil {
		if isNotFound(err) {
			return Node{}, err
		}
		return Node{}, StoreError("get node", err)
	}
	return result.(Node), nil
}

func (s *Neo4jStore) ListNodes(ctx context.Context, filter Filter) ([]Node, error) {
	session := s.session(ctx)
	defer session.Close(ctx)

	var sb strings.Builder
	sb.WriteString("MATCH (n:Entity)")
	params := map[string]any{}
	var conditions []string
	if filter.Type != "" {
		conditions = append(conditions, "n.type = $type")
		params["type"] = filter.Type
	}
	if filter.NameContains != "" {
		conditions = append(conditions, "(toLower(n.name) CONTAINS toLower($q) OR toLower(n.id) CONTAINS toLower($q))")
		params["q"] = filter.NameContains
	}
	if len(conditions) > 0 {
		sb.WriteString(" WHERE " + strings.Join(conditions, " AND "))
	}
	sb.WriteString(" RETURN n ORDER BY n.id")
	if filter.Limit > 0 {
		sb.WriteString(" LIMIT $limit")
		params["limit"] = filter.Limit
	}

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		records, err := tx.Run(ctx, sb.String(), params)
		if err != nil {
			return nil, err
		}
		var nodes []Node
		for records.Next(ctx) {
			value, _ := records.Record().Get("n")
			node, err := nodeFromNeo4j(value.(neo4j.Node))
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, node)
		}
		return nodes, records.Err()
	})
	if err != nil {
		return nil, StoreError("list nodes", err)
	}
	return result.([]Node), nil
}

func (s *Neo4jStore) GetNeighbors(ctx context.Context, id string, dir Direction, edgeTypes []string) ([]Neighbor, error) {
	session := s.session(ctx)
	defer session.Close(ctx)

	types := edgeTypes
	if types == nil {
		types = []string{}
	}

	var patterns []string
	if dir == Outgoing || dir == Both {
		patterns = append(patterns, `
			MATCH (n:Entity {id: $id})-[r]->(m:Entity)
			WHERE size($types) = 0 OR r.type IN $types
			RETURN r, m`)
	}
	if dir == Incoming || dir == Both {
		patterns = append(patterns, `
			MATCH (m:Entity)-[r]->(n:Entity {id: $id})
			WHERE size($types) = 0 OR r.type IN $types
			RETURN r, m`)
	}

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		var neighbors []Neighbor
		seen := make(map[string]bool)
		for _, query := range patterns {
			records, err := tx.Run(ctx, query, map[string]any{"id": id, "types": types})
			if err != nil {
				return nil, err
			}
			for records.Next(ctx) {
				record := records.Record()
				relValue, _ := record.Get("r")
				nodeValue, _ := record.Get("m")
				edge, err := edgeFromNeo4j(relValue.(neo4j.Relationship))
				if err != nil {
					return nil, err
				}
				if seen[edge.ID] {
					continue // self-loops match both patterns
				}
				seen[edge.ID] = true
				node, err := nodeFromNeo4j(nodeValue.(neo4j.Node))
				if err != nil {
					return nil, err
				}
				neighbors = append(neighbors, Neighbor{Edge: edge, Node: node})
			}
			if err := records.Err(); err != nil {
				return nil, err
			}
		}
		return neighbors, nil
	})
	if err != nil {
		return nil, StoreError("get neighbors", err)
	}

	neighbors := result.([]Neighbor)
	sort.Slice(neighbors, func(i, j int) bool { return neighbors[i].Edge.ID < neighbors[j].Edge.ID })
	return neighbors, nil
}

func (s *Neo4jStore) UpsertNode(ctx context.Context, node Node) error {
	session := s.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		// Read the current properties so merge semantics hold: the
		// property map is stored as one JSON string (Neo4j has no
		// nested maps), so the union happens here.
		records, err := tx.Run(ctx,
			`MATCH (n:Entity {id: $id}) RETURN n.properties AS props, n.name AS name, n.type AS type`,
			map[string]any{"id": node.ID})
		if err != nil {
			return nil, err
		}
		if records.Next(ctx) {
			record := records.Record()
			if propsStr, ok := record.AsMap()["props"].(string); ok && propsStr != "" {
				var existing map[string]any
				if err := json.Unmarshal([]byte(propsStr), &existing); err == nil {
					node.Properties = MergeProperties(existing, node.Properties)
				}
			}
			if node.Name == "" {
				node.Name, _ = record.AsMap()["name"].(string)
			}
			if node.Type == "" {
				node.Type, _ = record.AsMap()["type"].(string)
			}
		}

		propsJSON, err := json.Marshal(node.Properties)
		if err != nil {
			return nil, fmt.Errorf("marshaling properties: %w", err)
		}

		_, err = tx.Run(ctx, `
			MERGE (n:Entity {id: $id})
			SET n.type = $type,
			    n.name = $name,
			    n.properties = $properties
		`, map[string]any{
			"id":         node.ID,
			"type":       node.Type,
			"name":       node.Name,
			"properties": string(propsJSON),
		})
		return nil, err
	})
	if err != nil {
		return StoreError("upsert node", err)
	}
	return nil
}

func (s *Neo4jStore) UpsertEdge(ctx context.Context, edge Edge) error {
	session := s.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		records, err := tx.Run(ctx, `
			OPTIONAL MATCH (s:Entity {id: $source})
			OPTIONAL MATCH (t:Entity {id: $target})
			RETURN s IS NOT NULL AS src, t IS NOT NULL AS tgt
		`, map[string]any{"source": edge.Source, "target": edge.Target})
		if err != nil {
			return nil, err
		}
		if records.Next(ctx) {
			m := records.Record().AsMap()
			if ok, _ := m["src"].(bool); !ok {
				return nil, DanglingReferenceError(edge.ID, edge.Source)
			}
			if ok, _ := m["tgt"].(bool); !ok {
				return nil, DanglingReferenceError(edge.ID, edge.Target)
			}
		}

		propsJSON, err := json.Marshal(edge.Properties)
		if err != nil {
			return nil, fmt.Errorf("marshaling properties: %w", err)
		}

		// Relationship types cannot be parameterized in Cypher.
		relType := sanitizeRelType(edge.Type)
		query := fmt.Sprintf(`
			MATCH (s:Entity {id: $source})
			MATCH (t:Entity {id: $target})
			MERGE (s)-[r:%s {id: $id}]->(t)
			SET r.type = $type,
			    r.source = $source,
			    r.target = $target,
			    r.properties = $properties
		`, relType)

		_, err = tx.Run(ctx, query, map[string]any{
			"id":         edge.ID,
			"source":     edge.Source,
			"target":     edge.Target,
			"type":       edge.Type,
			"properties": string(propsJSON),
		})
		return nil, err
	})
	if err != nil {
		if isDangling(err) {
			return err
		}
		return StoreError("upsert edge", err)
	}
	return nil
}

func (s *Neo4jStore) DeleteNode(ctx context.Context, id string) error {
	session := s.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		records, err := tx.Run(ctx, `
			MATCH (n:Entity {id: $id})
			DETACH DELETE n
			RETURN count(n) AS deleted
		`, map[string]any{"id": id})
		if err != nil {
			return nil, err
		}
		if records.Next(ctx) {
			deleted, _ := records.Record().AsMap()["deleted"].(int64)
			return deleted, nil
		}
		return int64(0), records.Err()
	})
	if err != nil {
		return StoreError("delete node", err)
	}
	if result.(int64) == 0 {
		return NotFoundError(id)
	}
	return nil
}

func (s *Neo4jStore) NodeCount(ctx context.Context) (int, error) {
	return s.count(ctx, `MATCH (n:Entity) RETURN count(n) AS c`)
}

func (s *Neo4jStore) EdgeCount(ctx context.Context) (int, error) {
	return s.count(ctx, `MATCH (:Entity)-[r]->(:Entity) RETURN count(r) AS c`)
}

func (s *Neo4jStore) count(ctx context.Context, query string) (int, error) {
	session := s.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		records, err := tx.Run(ctx, query, nil)
		if err != nil {
			return nil, err
		}
		if records.Next(ctx) {
			c, _ := records.Record().AsMap()["c"].(int64)
			return c, nil
		}
		return int64(0), records.Err()
	})
	if err != nil {
		return 0, StoreError("count", err)
	}
	return int(result.(int64)), nil
}

func (s *Neo4jStore) Clear(ctx context.Context) error {
	session := s.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, `MATCH (n:Entity) DETACH DELETE n`, nil)
		return nil, err
	})
	if err != nil {
		return StoreError("clear", err)
	}
	return nil
}

func (s *Neo4jStore) Ping(ctx context.Context) error {
	if err := s.driver.VerifyConnectivity(ctx); err != nil {
		return StoreError("ping", err)
	}
	return nil
}

func (s *Neo4jStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// EnsureIndexes creates the id index used by every lookup.
func (s *Neo4jStore) EnsureIndexes(ctx context.Context) error {
	session := s.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx,
			`CREATE INDEX entity_id IF NOT EXISTS FOR (n:Entity) ON (n.id)`, nil)
		return nil, err
	})
	if err != nil {
		return StoreError("ensure indexes", err)
	}
	return nil
}

func nodeFromNeo4j(n neo4j.Node) (Node, error) {
	node := Node{}
	node.ID, _ = n.Props["id"].(string)
	node.Type, _ = n.Props["type"].(string)
	node.Name, _ = n.Props["name"].(string)
	if propsStr, ok := n.Props["properties"].(string); ok && propsStr != "" {
		if err := json.Unmarshal([]byte(propsStr), &node.Properties); err != nil {
			return Node{}, fmt.Errorf("unmarshaling node properties: %w", err)
		}
	}
	return node, nil
}

func edgeFromNeo4j(r neo4j.Relationship) (Edge, error) {
	edge := Edge{}
	edge.ID, _ = r.Props["id"].(string)
	edge.Type, _ = r.Props["type"].(string)
	edge.Source, _ = r.Props["source"].(string)
	edge.Target, _ = r.Props["target"].(string)
	if propsStr, ok := r.Props["properties"].(string); ok && propsStr != "" {
		if err := json.Unmarshal([]byte(propsStr), &edge.Properties); err != nil {
			return Edge{}, fmt.Errorf("unmarshaling edge properties: %w", err)
		}
	}
	return edge, nil
}

// sanitizeRelType converts an edge type to a Cypher-safe UPPER_SNAKE
// relationship type.
func sanitizeRelType(t string) string {
	t = strings.ToUpper(t)
	t = strings.ReplaceAll(t, "-", "_")
	t = strings.ReplaceAll(t, " ", "_")
	var sb strings.Builder
	for _, r := range t {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			sb.WriteRune(r)
		}
	}
	if sb.Len() == 0 {
		return "RELATED_TO"
	}
	return sb.String()
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func isDangling(err error) bool {
	return errors.Is(err, ErrDanglingReference)
}
