package storage

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/tenantinit/internal/core"
	"github.com/jackc/pgx/v5"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// CredentialOpener decrypts the sealed credential stored on a descriptor.
type CredentialOpener interface {
	Open(sealed string) (string, error)
}

// ProvisionerOptions configures connections to tenant databases.
type ProvisionerOptions struct {
	SSLMode        string        // Postgres sslmode, default "prefer"
	AuthSource     string        // Mongo authSource, default "admin"
	ConnectTimeout time.Duration // Per-connection dial timeout, default 10s
}

// Provisioner implements core.SchemaBackend against the tenant's own databases.
type Provisioner struct {
	opener CredentialOpener
	opts   ProvisionerOptions
}

// NewProvisioner creates a Provisioner.
func NewProvisioner(opener CredentialOpener, opts ProvisionerOptions) *Provisioner {
	if opts.SSLMode == "" {
		opts.SSLMode = "prefer"
	}
	if opts.AuthSource == "" {
		opts.AuthSource = "admin"
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}
	return &Provisioner{opener: opener, opts: opts}
}

var _ core.SchemaBackend = (*Provisioner)(nil)

// ----------------------------------------------------------------------------
// Relational
// ----------------------------------------------------------------------------

// CreateSchema creates tables and indexes in a single transaction.
// Every statement uses IF NOT EXISTS so reruns are no-ops.
func (p *Provisioner) CreateSchema(ctx context.Context, conn core.ConnectionDescriptor, tables []core.SchemaDef) error {
	dsn, err := p.postgresURL(conn)
	if err != nil {
		return err
	}

	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return fmt.Errorf("parse connection for %s: %w", conn.Host, err)
	}
	cfg.ConnectTimeout = p.opts.ConnectTimeout

	db, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect %s:%d: %w", conn.Host, conn.Port, err)
	}
	defer db.Close(context.WithoutCancel(ctx))

	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin schema: %w", err)
	}
	defer tx.Rollback(ctx) // No-op after commit

	for _, stmt := range SchemaStatements(tables) {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("exec %q: %w", firstLine(stmt), err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

func (p *Provisioner) postgresURL(conn core.ConnectionDescriptor) (string, error) {
	password, err := p.opener.Open(conn.EncryptedCredential)
	if err != nil {
		return "", fmt.Errorf("open credential for %s: %w", conn.ID, err)
	}

	u := url.URL{
		Scheme:   "postgres",
		Host:     net.JoinHostPort(conn.Host, strconv.Itoa(conn.Port)),
		Path:     "/" + conn.DatabaseName,
		RawQuery: url.Values{"sslmode": {p.opts.SSLMode}}.Encode(),
	}
	if conn.Username != "" {
		u.User = url.UserPassword(conn.Username, password)
	}
	return u.String(), nil
}

// SchemaStatements renders the DDL for tables, tables first then indexes.
func SchemaStatements(tables []core.SchemaDef) []string {
	var stmts []string
	for _, t := range tables {
		stmts = append(stmts, createTableSQL(t))
	}
	for _, t := range tables {
		for _, cols := range t.Indexes {
			stmts = append(stmts, createIndexSQL(t.Name, cols))
		}
	}
	return stmts
}

func createTableSQL(t core.SchemaDef) string {
	cols := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		var b strings.Builder
		b.WriteString(pgx.Identifier{c.Name}.Sanitize())
		b.WriteString(" ")
		b.WriteString(c.Type)
		if c.PrimaryKey {
			b.WriteString(" PRIMARY KEY")
		} else if c.NotNull {
			b.WriteString(" NOT NULL")
		}
		if c.Default != "" {
			b.WriteString(" DEFAULT ")
			b.WriteString(c.Default)
		}
		cols = append(cols, b.String())
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)",
		pgx.Identifier{t.Name}.Sanitize(), strings.Join(cols, ",\n\t"))
}

func createIndexSQL(table string, cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	name := table + "_" + strings.Join(cols, "_") + "_idx"
	return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
		pgx.Identifier{name}.Sanitize(), pgx.Identifier{table}.Sanitize(), strings.Join(quoted, ", "))
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// ----------------------------------------------------------------------------
// Document
// ----------------------------------------------------------------------------

// CreateCollections creates missing collections, then their indexes.
// Existing collections are left untouched and index creation is idempotent.
func (p *Provisioner) CreateCollections(ctx context.Context, conn core.ConnectionDescriptor, names []string, indexes []core.IndexDef) error {
	uri, err := p.mongoURI(conn)
	if err != nil {
		return err
	}

	client, err := mongo.Connect(options.Client().ApplyURI(uri).SetConnectTimeout(p.opts.ConnectTimeout))
	if err != nil {
		return fmt.Errorf("connect %s:%d: %w", conn.Host, conn.Port, err)
	}
	defer client.Disconnect(context.WithoutCancel(ctx))

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("ping %s:%d: %w", conn.Host, conn.Port, err)
	}

	db := client.Database(conn.DatabaseName)

	existing, err := db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return fmt.Errorf("list collections: %w", err)
	}
	have := make(map[string]bool, len(existing))
	for _, n := range existing {
		have[n] = true
	}

	for _, name := range names {
		if have[name] {
			continue
		}
		if err := db.CreateCollection(ctx, name); err != nil {
			return fmt.Errorf("create collection %s: %w", name, err)
		}
	}

	for coll, models := range indexModels(indexes) {
		if _, err := db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", coll, err)
		}
	}
	return nil
}

func (p *Provisioner) mongoURI(conn core.ConnectionDescriptor) (string, error) {
	password, err := p.opener.Open(conn.EncryptedCredential)
	if err != nil {
		return "", fmt.Errorf("open credential for %s: %w", conn.ID, err)
	}

	u := url.URL{
		Scheme: "mongodb",
		Host:   net.JoinHostPort(conn.Host, strconv.Itoa(conn.Port)),
		Path:   "/" + conn.DatabaseName,
	}
	if conn.Username != "" {
		u.User = url.UserPassword(conn.Username, password)
		u.RawQuery = url.Values{"authSource": {p.opts.AuthSource}}.Encode()
	}
	return u.String(), nil
}

// indexModels groups index definitions by collection.
func indexModels(defs []core.IndexDef) map[string][]mongo.IndexModel {
	out := make(map[string][]mongo.IndexModel)
	for _, d := range defs {
		keys := bson.D{}
		for _, k := range d.Keys {
			keys = append(keys, bson.E{Key: k, Value: 1})
		}
		opts := options.Index().SetName(d.Name)
		if d.Unique {
			opts.SetUnique(true)
		}
		out[d.Collection] = append(out[d.Collection], mongo.IndexModel{Keys: keys, Options: opts})
	}
	return out
}
