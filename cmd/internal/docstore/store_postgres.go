package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/raj783e/campus/cmd/identity/ids"
)

// PostgresStore is a Store backed by one JSONB table.
//
// Ownership model:
//   - PostgresStore does NOT own the pgx pool. The caller must close the pool.
//   - Close disposes live subscriptions only.
//
// Change propagation:
//   - every committed write notifies local subscribers immediately;
//   - when a ChangeFeed is configured the write is also published, and Run consumes
//     the feed so writes from other instances reach local subscribers.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
	log    *slog.Logger
	feed   ChangeFeed

	live *liveSet
}

// PostgresOption configures PostgresStore behavior.
type PostgresOption func(*PostgresStore) error

// WithSchema sets the DB schema used by this store (default: "campus").
// The schema name is validated and safely quoted in queries.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("docstore: empty schema")
		}
		if !isValidPGIdent(schema) {
			return errors.New("docstore: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// WithChangeFeed publishes writes to feed and lets Run consume it.
func WithChangeFeed(feed ChangeFeed) PostgresOption {
	return func(s *PostgresStore) error {
		s.feed = feed
		return nil
	}
}

// WithLogger sets the store logger.
func WithLogger(log *slog.Logger) PostgresOption {
	return func(s *PostgresStore) error {
		if log != nil {
			s.log = log
		}
		return nil
	}
}

// WithSubscriptionGauge reports the active live subscription count after every change.
func WithSubscriptionGauge(fn func(active int)) PostgresOption {
	return func(s *PostgresStore) error {
		s.live.onChange = fn
		return nil
	}
}

// NewPostgresStore constructs a Postgres-backed Store.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "campus",
		log:    slog.Default(),
	}
	st.live = newLiveSet(st.log, st.Query)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, errors.New("docstore: nil pool")
	}
	st.live.log = st.log
	return st, nil
}

// EnsureSchema creates the schema, table, and indexes if missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	docs := s.table()
	stmt := fmt.Sprintf(`
CREATE SCHEMA IF NOT EXISTS %s;

CREATE TABLE IF NOT EXISTS %s (
  collection TEXT        NOT NULL,
  id         TEXT        NOT NULL,
  data       JSONB       NOT NULL DEFAULT '{}'::jsonb,
  rev        BIGINT      NOT NULL DEFAULT 1,
  seq        BIGINT      GENERATED ALWAYS AS IDENTITY,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),

  PRIMARY KEY (collection, id)
);

CREATE INDEX IF NOT EXISTS idx_documents_data_gin
  ON %s USING GIN (data jsonb_path_ops);

CREATE INDEX IF NOT EXISTS idx_documents_collection_seq
  ON %s (collection, seq ASC);
`, pgx.Identifier{s.schema}.Sanitize(), docs, docs, docs)

	if _, err := s.pool.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Run consumes the change feed until ctx is done. Without a feed it just waits.
func (s *PostgresStore) Run(ctx context.Context) error {
	if s.feed == nil {
		<-ctx.Done()
		return nil
	}
	return s.feed.Listen(ctx, s.live.notify)
}

// Close disposes live subscriptions. The pool is owned by the caller.
func (s *PostgresStore) Close() error {
	s.live.close()
	return nil
}

// Add inserts data under a freshly generated id.
func (s *PostgresStore) Add(ctx context.Context, collection string, data Fields) (string, error) {
	id, err := ids.NewULID(time.Now().UTC())
	if err != nil {
		return "", err
	}
	if err := s.insert(ctx, "docstore.Add", collection, id, data); err != nil {
		return "", err
	}
	return id, nil
}

// Create inserts data under id unless a document with that id exists.
func (s *PostgresStore) Create(ctx context.Context, collection, id string, data Fields) error {
	return s.insert(ctx, "docstore.Create", collection, id, data)
}

func (s *PostgresStore) insert(ctx context.Context, op, collection, id string, data Fields) error {
	if !validCollection(collection) || !validID(id) {
		return opErr(op, ErrInvalidInput, "bad collection or id")
	}
	payload, err := json.Marshal(normalizeFields(data))
	if err != nil {
		return opErr(op, ErrInvalidInput, err.Error())
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO `+s.table()+` (collection, id, data)
		 VALUES ($1, $2, $3::jsonb)
		 ON CONFLICT (collection, id) DO NOTHING`,
		collection, id, payload,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return opErr(op, ErrAlreadyExists, collection+"/"+id)
	}

	s.changed(ctx, collection)
	return nil
}

// Get returns one document or ErrNotFound.
func (s *PostgresStore) Get(ctx context.Context, collection, id string) (Document, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, collection, data, rev, seq, created_at
		   FROM `+s.table()+`
		  WHERE collection = $1 AND id = $2`,
		collection, id,
	)
	d, err := scanDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, opErr("docstore.Get", ErrNotFound, collection+"/"+id)
	}
	if err != nil {
		return Document{}, err
	}
	return d, nil
}

// Update merges fields into an existing document.
func (s *PostgresStore) Update(ctx context.Context, collection, id string, fields Fields) error {
	if len(fields) == 0 {
		return nil
	}
	payload, err := json.Marshal(normalizeFields(fields))
	if err != nil {
		return opErr("docstore.Update", ErrInvalidInput, err.Error())
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE `+s.table()+`
		    SET data = data || $3::jsonb,
		        rev = rev + 1,
		        updated_at = now()
		  WHERE collection = $1 AND id = $2`,
		collection, id, payload,
	)
	if err != nil {
		return fmt.Errorf("docstore.Update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return opErr("docstore.Update", ErrNotFound, collection+"/"+id)
	}

	s.changed(ctx, collection)
	return nil
}

// Delete removes a document; deleting a missing document is not an error.
func (s *PostgresStore) Delete(ctx context.Context, collection, id string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM `+s.table()+` WHERE collection = $1 AND id = $2`,
		collection, id,
	)
	if err != nil {
		return fmt.Errorf("docstore.Delete: %w", err)
	}
	if tag.RowsAffected() > 0 {
		s.changed(ctx, collection)
	}
	return nil
}

// Query runs a one-time query.
func (s *PostgresStore) Query(ctx context.Context, q Query) ([]Document, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	sql, args, err := buildSelect(s.table(), q)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Document, 0, 16)
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Subscribe starts a live query.
func (s *PostgresStore) Subscribe(ctx context.Context, q Query, fn SnapshotFunc) (Unsubscribe, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.live.subscribe(q, fn)
}

func (s *PostgresStore) changed(ctx context.Context, collection string) {
	s.live.notify(collection)
	if s.feed == nil {
		return
	}
	if err := s.feed.Publish(ctx, collection); err != nil {
		// The write is committed; remote subscribers catch up on the next change.
		s.log.Warn("docstore.feed.publish.fail", "collection", collection, "err", err)
	}
}

func (s *PostgresStore) table() string {
	return pgIdent(s.schema, "documents")
}

// buildSelect compiles q into SQL. Every predicate becomes a JSONB containment test,
// which the GIN index serves for both equality and array membership.
func buildSelect(table string, q Query) (string, []any, error) {
	args := []any{q.Collection}

	var b strings.Builder
	b.WriteString(`SELECT id, collection, data, rev, seq, created_at FROM `)
	b.WriteString(table)
	b.WriteString(` WHERE collection = $1`)

	for _, p := range q.Predicates {
		frag, err := containment(p)
		if err != nil {
			return "", nil, err
		}
		args = append(args, frag)
		fmt.Fprintf(&b, ` AND data @> $%d::jsonb`, len(args))
	}

	if q.Order != nil {
		args = append(args, q.Order.Field)
		if q.Order.Direction == Desc {
			fmt.Fprintf(&b, ` ORDER BY data->($%d::text) DESC NULLS LAST, seq ASC`, len(args))
		} else {
			fmt.Fprintf(&b, ` ORDER BY data->($%d::text) ASC NULLS FIRST, seq ASC`, len(args))
		}
	} else {
		b.WriteString(` ORDER BY seq ASC`)
	}

	return b.String(), args, nil
}

func containment(p Predicate) ([]byte, error) {
	var frag map[string]any
	switch p.Op {
	case OpEqual:
		frag = map[string]any{p.Field: p.Value}
	case OpArrayContains:
		frag = map[string]any{p.Field: []any{p.Value}}
	default:
		return nil, opErr("docstore.Query", ErrInvalidQuery, fmt.Sprintf("unsupported op %q", p.Op))
	}
	return json.Marshal(frag)
}

func scanDocument(row pgx.Row) (Document, error) {
	var (
		d   Document
		raw []byte
	)
	if err := row.Scan(&d.ID, &d.Collection, &raw, &d.Rev, &d.Seq, &d.CreatedAt); err != nil {
		return Document{}, err
	}
	d.Data = Fields{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &d.Data); err != nil {
			return Document{}, fmt.Errorf("decode %s/%s: %w", d.Collection, d.ID, err)
		}
	}
	d.CreatedAt = d.CreatedAt.UTC()
	return d, nil
}

var pgIdentRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func isValidPGIdent(s string) bool {
	return pgIdentRE.MatchString(s)
}

func pgIdent(schema, table string) string {
	// pgx.Identifier safely quotes identifiers, preventing SQL injection.
	return pgx.Identifier{schema, table}.Sanitize()
}

var _ Store = (*PostgresStore)(nil)
