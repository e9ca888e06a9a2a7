package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"trendai/internal/core"
	"trendai/internal/sources"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Repository is the SQL-backed record store shared by the sqlite and postgres backends.
type Repository struct {
	db      *sql.DB
	dialect Dialect
}

var (
	_ sources.Source        = (*Repository)(nil)
	_ sources.RecordWriter  = (*Repository)(nil)
	_ sources.KeywordWriter = (*Repository)(nil)
	_ sources.SnapshotStore = (*Repository)(nil)
)

const recordColumns = "id, s3_key, post_year, post_month, follower_count, category_l1, category_l3, " +
	"item_type, color, pattern, detail, mood_category, mood_look"

// NewSQLiteRepository opens (creating if needed) the database file and migrates it.
func NewSQLiteRepository(ctx context.Context, dbPath string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	repo, err := open(ctx, SQLite, dbPath)
	if err != nil {
		return nil, err
	}
	// one writer at a time avoids SQLITE_BUSY under concurrent imports
	repo.db.SetMaxOpenConns(1)
	return repo, nil
}

// NewPostgresRepository connects with a postgres:// DSN and migrates the schema.
func NewPostgresRepository(ctx context.Context, dsn string) (*Repository, error) {
	repo, err := open(ctx, Postgres, dsn)
	if err != nil {
		return nil, err
	}
	repo.db.SetMaxOpenConns(10)
	repo.db.SetMaxIdleConns(5)
	return repo, nil
}

func open(ctx context.Context, d Dialect, dsn string) (*Repository, error) {
	db, err := sql.Open(d.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", d, err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(d, dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	slog.InfoContext(ctx, "Database ready", "dialect", string(d))
	return &Repository{db: db, dialect: d}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *Repository) Dialect() Dialect { return r.dialect }

func (r *Repository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping %s: %w", r.dialect, err)
	}
	return nil
}

// ListRecords pushes the period and category filters down to SQL.
func (r *Repository) ListRecords(ctx context.Context, q core.RecordQuery) ([]core.Record, error) {
	var (
		where []string
		args  []any
	)
	if len(q.Periods) > 0 {
		ors := make([]string, 0, len(q.Periods))
		for _, p := range q.Periods {
			ors = append(ors, "(post_year = ? AND post_month = ?)")
			args = append(args, p.Year, p.Month)
		}
		where = append(where, "("+strings.Join(ors, " OR ")+")")
	}
	if q.CategoryL1 != "" {
		where = append(where, "category_l1 = ?")
		args = append(args, q.CategoryL1)
	}
	if q.CategoryL3 != "" {
		where = append(where, "category_l3 = ?")
		args = append(args, q.CategoryL3)
	}

	query := "SELECT " + recordColumns + " FROM records"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id"

	rows, err := r.db.QueryContext(ctx, r.dialect.rebind(query), args...)
	if err != nil {
		return nil, describe("list records", err)
	}
	defer rows.Close()

	var out []core.Record
	for rows.Next() {
		var (
			rec       core.Record
			followers sql.NullInt64
		)
		if err := rows.Scan(&rec.ID, &rec.S3Key, &rec.Year, &rec.Month, &followers,
			&rec.CategoryL1, &rec.CategoryL3, &rec.ItemType, &rec.Color, &rec.Pattern,
			&rec.Detail, &rec.MoodCategory, &rec.MoodLook); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		if followers.Valid {
			n := followers.Int64
			rec.FollowerCount = &n
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

func (r *Repository) Meta(ctx context.Context) (core.Meta, error) {
	meta := core.Meta{MonthsByYear: map[int][]int{}}

	rows, err := r.db.QueryContext(ctx,
		"SELECT DISTINCT post_year, post_month FROM records ORDER BY post_year, post_month")
	if err != nil {
		return meta, describe("list periods", err)
	}
	years := map[int]struct{}{}
	months := map[int]struct{}{}
	for rows.Next() {
		var y, m int
		if err := rows.Scan(&y, &m); err != nil {
			rows.Close()
			return meta, fmt.Errorf("scan period: %w", err)
		}
		years[y] = struct{}{}
		months[m] = struct{}{}
		meta.MonthsByYear[y] = append(meta.MonthsByYear[y], m)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return meta, fmt.Errorf("iterate periods: %w", err)
	}
	rows.Close()
	meta.Years = sortedKeys(years)
	meta.Months = sortedKeys(months)

	cats, err := r.db.QueryContext(ctx,
		"SELECT DISTINCT category_l1 FROM records WHERE category_l1 <> '' ORDER BY category_l1")
	if err != nil {
		return meta, describe("list categories", err)
	}
	defer cats.Close()
	meta.Categories = []string{}
	for cats.Next() {
		var c string
		if err := cats.Scan(&c); err != nil {
			return meta, fmt.Errorf("scan category: %w", err)
		}
		meta.Categories = append(meta.Categories, c)
	}
	return meta, cats.Err()
}

func (r *Repository) MoodKeywords(ctx context.Context) ([]core.MoodKeyword, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT cate1, cate2, keyword FROM mood_keywords ORDER BY id")
	if err != nil {
		return nil, describe("list mood keywords", err)
	}
	defer rows.Close()

	var out []core.MoodKeyword
	for rows.Next() {
		var k core.MoodKeyword
		if err := rows.Scan(&k.Category, &k.Look, &k.Keyword); err != nil {
			return nil, fmt.Errorf("scan mood keyword: %w", err)
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

// AppendRecords inserts records in one transaction. IDs are always assigned
// by the database.
func (r *Repository) AppendRecords(ctx context.Context, records []core.Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, r.dialect.rebind(
		"INSERT INTO records (s3_key, post_year, post_month, follower_count, category_l1, category_l3, "+
			"item_type, color, pattern, detail, mood_category, mood_look) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"))
	if err != nil {
		return 0, describe("prepare insert record", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		var followers sql.NullInt64
		if rec.FollowerCount != nil {
			followers = sql.NullInt64{Int64: *rec.FollowerCount, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, rec.S3Key, rec.Year, rec.Month, followers,
			rec.CategoryL1, rec.CategoryL3, rec.ItemType, rec.Color, rec.Pattern,
			rec.Detail, rec.MoodCategory, rec.MoodLook); err != nil {
			return 0, describe("insert record", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit records: %w", err)
	}
	slog.InfoContext(ctx, "Records saved", "dialect", string(r.dialect), "count", len(records))
	return len(records), nil
}

func (r *Repository) AppendKeywords(ctx context.Context, keywords []core.MoodKeyword) (int, error) {
	if len(keywords) == 0 {
		return 0, nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	insert := r.dialect.rebind("INSERT INTO mood_keywords (cate1, cate2, keyword) VALUES (?, ?, ?)")
	for _, k := range keywords {
		if _, err := tx.ExecContext(ctx, insert, k.Category, k.Look, k.Keyword); err != nil {
			return 0, describe("insert mood keyword", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit mood keywords: %w", err)
	}
	return len(keywords), nil
}

func (r *Repository) SaveSnapshot(ctx context.Context, s core.Snapshot) error {
	report, err := json.Marshal(s.Report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	_, err = r.db.ExecContext(ctx, r.dialect.rebind(
		"INSERT INTO trend_snapshots (id, dimension, post_year, post_month, report, created_at) VALUES (?, ?, ?, ?, ?, ?)"),
		s.ID, string(s.Dimension), s.Period.Year, s.Period.Month, string(report), r.dialect.timeArg(s.CreatedAt))
	if err != nil {
		return describe("insert snapshot", err)
	}
	slog.DebugContext(ctx, "Snapshot saved", "snapshot_id", s.ID, "dimension", string(s.Dimension), "period", s.Period.String())
	return nil
}

func (r *Repository) LatestSnapshot(ctx context.Context, dim core.Dimension, p core.Period) (core.Snapshot, error) {
	row := r.db.QueryRowContext(ctx, r.dialect.rebind(
		"SELECT id, report, created_at FROM trend_snapshots "+
			"WHERE dimension = ? AND post_year = ? AND post_month = ? ORDER BY created_at DESC LIMIT 1"),
		string(dim), p.Year, p.Month)

	var (
		snap    = core.Snapshot{Dimension: dim, Period: p}
		report  []byte
		created dbTime
	)
	if err := row.Scan(&snap.ID, &report, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Snapshot{}, core.ErrNotFound
		}
		return core.Snapshot{}, describe("latest snapshot", err)
	}
	if err := json.Unmarshal(report, &snap.Report); err != nil {
		return core.Snapshot{}, fmt.Errorf("decode snapshot %s: %w", snap.ID, err)
	}
	snap.CreatedAt = created.Time
	return snap, nil
}

func sortedKeys(set map[int]struct{}) []int {
	out := make([]int, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}
