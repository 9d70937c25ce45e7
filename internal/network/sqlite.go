package network

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/ppiankov/lupa/internal/model"
)

// Lookup columns are indexed; the full record lives in the data column as JSON.
const schema = `
CREATE TABLE IF NOT EXISTS nodes (
	id TEXT PRIMARY KEY,
	type TEXT NOT NULL,
	normalized_name TEXT NOT NULL DEFAULT '',
	cnpj TEXT NOT NULL DEFAULT '',
	cpf TEXT NOT NULL DEFAULT '',
	seq INTEGER NOT NULL,
	data TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_nodes_cnpj ON nodes(cnpj) WHERE cnpj != '';
CREATE INDEX IF NOT EXISTS idx_nodes_cpf ON nodes(cpf) WHERE cpf != '';
CREATE INDEX IF NOT EXISTS idx_nodes_name ON nodes(type, normalized_name);

CREATE TABLE IF NOT EXISTS edges (
	id TEXT PRIMARY KEY,
	source TEXT NOT NULL,
	target TEXT NOT NULL,
	type TEXT NOT NULL,
	seq INTEGER NOT NULL,
	data TEXT NOT NULL,
	UNIQUE (source, target, type)
);

CREATE TABLE IF NOT EXISTS investigation_refs (
	id TEXT PRIMARY KEY,
	investigation_id TEXT NOT NULL,
	node_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	data TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_refs_node ON investigation_refs(node_id);

CREATE TABLE IF NOT EXISTS networks (
	id TEXT PRIMARY KEY,
	signature TEXT NOT NULL UNIQUE,
	seq INTEGER NOT NULL,
	data TEXT NOT NULL
);
`

// SQLiteStore persists the graph in a single SQLite database file
type SQLiteStore struct {
	mu   sync.Mutex
	conn *sqlite.Conn
}

// OpenSQLite opens (creating if needed) the database at path and applies the schema
func OpenSQLite(path string) (*SQLiteStore, error) {
	conn, err := sqlite.OpenConn(path, sqlite.OpenCreate, sqlite.OpenReadWrite, sqlite.OpenWAL)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	for _, pragma := range []string{"PRAGMA journal_mode = WAL", "PRAGMA synchronous = NORMAL", "PRAGMA busy_timeout = 5000"} {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteStore{conn: conn}, nil
}

// with runs fn holding the connection, interrupting long statements when ctx ends
func (s *SQLiteStore) with(ctx context.Context, fn func(conn *sqlite.Conn) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	prev := s.conn.SetInterrupt(ctx.Done())
	defer s.conn.SetInterrupt(prev)
	return fn(s.conn)
}

// Tx runs fn inside an immediate transaction, rolling back when fn fails
func (s *SQLiteStore) Tx(ctx context.Context, fn func(Store) error) error {
	return s.with(ctx, func(conn *sqlite.Conn) (err error) {
		endFn, err := sqlitex.ImmediateTransaction(conn)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		defer endFn(&err)

		// the caller already holds s.mu; the view has its own lock
		return fn(&SQLiteStore{conn: conn})
	})
}

// one decodes the data column of the first matching row into dst
func (s *SQLiteStore) one(ctx context.Context, what, query string, dst any, args ...any) error {
	found := false
	err := s.with(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
			Args: args,
			ResultFunc: func(stmt *sqlite.Stmt) error {
				if found {
					return nil
				}
				found = true
				return json.Unmarshal([]byte(stmt.ColumnText(0)), dst)
			},
		})
	})
	if err != nil {
		return fmt.Errorf("load %s: %w", what, err)
	}
	if !found {
		return fmt.Errorf("%s: %w", what, model.ErrNotFound)
	}
	return nil
}

// all decodes the data column of every row, in insertion order
func all[T any](ctx context.Context, s *SQLiteStore, what, query string, args ...any) ([]T, error) {
	var out []T
	err := s.with(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
			Args: args,
			ResultFunc: func(stmt *sqlite.Stmt) error {
				var v T
				if err := json.Unmarshal([]byte(stmt.ColumnText(0)), &v); err != nil {
					return err
				}
				out = append(out, v)
				return nil
			},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", what, err)
	}
	return out, nil
}

func (s *SQLiteStore) exec(ctx context.Context, what, query string, args ...any) error {
	err := s.with(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, query, &sqlitex.ExecOptions{Args: args})
	})
	if err != nil {
		return fmt.Errorf("save %s: %w", what, err)
	}
	return nil
}

func (s *SQLiteStore) Node(ctx context.Context, id string) (*model.NetworkNode, error) {
	var n model.NetworkNode
	if err := s.one(ctx, "node "+id, `SELECT data FROM nodes WHERE id = ?`, &n, id); err != nil {
		return nil, err
	}
	return &n, nil
}

func (s *SQLiteStore) NodeByCNPJ(ctx context.Context, cnpj string) (*model.NetworkNode, error) {
	var n model.NetworkNode
	if err := s.one(ctx, "node cnpj "+cnpj, `SELECT data FROM nodes WHERE cnpj = ? AND cnpj != '' ORDER BY seq LIMIT 1`, &n, cnpj); err != nil {
		return nil, err
	}
	return &n, nil
}

func (s *SQLiteStore) NodeByCPF(ctx context.Context, cpf string) (*model.NetworkNode, error) {
	var n model.NetworkNode
	if err := s.one(ctx, "node cpf "+cpf, `SELECT data FROM nodes WHERE cpf = ? AND cpf != '' ORDER BY seq LIMIT 1`, &n, cpf); err != nil {
		return nil, err
	}
	return &n, nil
}

func (s *SQLiteStore) NodeByName(ctx context.Context, t model.EntityType, normalized string) (*model.NetworkNode, error) {
	var n model.NetworkNode
	err := s.one(ctx, "node name "+normalized,
		`SELECT data FROM nodes WHERE type = ? AND normalized_name = ? AND normalized_name != '' ORDER BY seq LIMIT 1`,
		&n, string(t), normalized)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (s *SQLiteStore) SaveNode(ctx context.Context, n *model.NetworkNode) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode node %s: %w", n.ID, err)
	}
	return s.exec(ctx, "node "+n.ID,
		`INSERT INTO nodes (id, type, normalized_name, cnpj, cpf, seq, data)
		 VALUES (?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM nodes), ?)
		 ON CONFLICT(id) DO UPDATE SET
		   normalized_name = excluded.normalized_name,
		   cnpj = excluded.cnpj,
		   cpf = excluded.cpf,
		   data = excluded.data`,
		n.ID, string(n.Type), n.NormalizedName, n.CNPJ, n.CPF, string(data))
}

func (s *SQLiteStore) Nodes(ctx context.Context) ([]model.NetworkNode, error) {
	return all[model.NetworkNode](ctx, s, "nodes", `SELECT data FROM nodes ORDER BY seq`)
}

func (s *SQLiteStore) EdgeBetween(ctx context.Context, sourceID, targetID string, t model.RelationshipType) (*model.NetworkEdge, error) {
	var e model.NetworkEdge
	err := s.one(ctx, fmt.Sprintf("edge %s %s->%s", t, sourceID, targetID),
		`SELECT data FROM edges WHERE source = ? AND target = ? AND type = ?`,
		&e, sourceID, targetID, string(t))
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *SQLiteStore) SaveEdge(ctx context.Context, e *model.NetworkEdge) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode edge %s: %w", e.ID, err)
	}
	return s.exec(ctx, "edge "+e.ID,
		`INSERT INTO edges (id, source, target, type, seq, data)
		 VALUES (?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM edges), ?)
		 ON CONFLICT(source, target, type) DO UPDATE SET data = excluded.data`,
		e.ID, e.SourceID, e.TargetID, string(e.Type), string(data))
}

func (s *SQLiteStore) Edges(ctx context.Context) ([]model.NetworkEdge, error) {
	return all[model.NetworkEdge](ctx, s, "edges", `SELECT data FROM edges ORDER BY seq`)
}

func (s *SQLiteStore) AddRef(ctx context.Context, ref model.InvestigationRef) error {
	data, err := json.Marshal(ref)
	if err != nil {
		return fmt.Errorf("encode ref %s: %w", ref.ID, err)
	}
	return s.exec(ctx, "ref "+ref.ID,
		`INSERT INTO investigation_refs (id, investigation_id, node_id, seq, data)
		 VALUES (?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM investigation_refs), ?)`,
		ref.ID, ref.InvestigationID, ref.NodeID, string(data))
}

func (s *SQLiteStore) Refs(ctx context.Context, nodeID string) ([]model.InvestigationRef, error) {
	return all[model.InvestigationRef](ctx, s, "refs",
		`SELECT data FROM investigation_refs WHERE node_id = ? ORDER BY seq`, nodeID)
}

func (s *SQLiteStore) Network(ctx context.Context, id string) (*model.SuspiciousNetwork, error) {
	var n model.SuspiciousNetwork
	if err := s.one(ctx, "network "+id, `SELECT data FROM networks WHERE id = ?`, &n, id); err != nil {
		return nil, err
	}
	return &n, nil
}

func (s *SQLiteStore) NetworkBySignature(ctx context.Context, signature string) (*model.SuspiciousNetwork, error) {
	var n model.SuspiciousNetwork
	if err := s.one(ctx, "network "+signature, `SELECT data FROM networks WHERE signature = ?`, &n, signature); err != nil {
		return nil, err
	}
	return &n, nil
}

func (s *SQLiteStore) SaveNetwork(ctx context.Context, n *model.SuspiciousNetwork) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode network %s: %w", n.ID, err)
	}
	return s.exec(ctx, "network "+n.ID,
		`INSERT INTO networks (id, signature, seq, data)
		 VALUES (?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM networks), ?)
		 ON CONFLICT(id) DO UPDATE SET signature = excluded.signature, data = excluded.data`,
		n.ID, n.Signature, string(data))
}

func (s *SQLiteStore) Networks(ctx context.Context) ([]model.SuspiciousNetwork, error) {
	return all[model.SuspiciousNetwork](ctx, s, "networks", `SELECT data FROM networks ORDER BY seq`)
}

// Close closes the underlying connection
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Close()
}
