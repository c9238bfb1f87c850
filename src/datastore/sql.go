package datastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/nhirsama/Goster-Ring/src/inter"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// ErrRunNotFound FinishRun 找不到对应的同步记录
var ErrRunNotFound = errors.New("datastore: 同步记录不存在")

// Dialect SQL 方言，只影响占位符
type Dialect int

const (
	DialectSQLite Dialect = iota
	DialectPostgres
)

// ParseDialect 识别驱动名：sqlite / postgres / pgx
func ParseDialect(driver string) (Dialect, string, error) {
	switch strings.ToLower(driver) {
	case "", "sqlite", "sqlite3":
		return DialectSQLite, "sqlite", nil
	case "postgres", "postgresql", "pgx":
		return DialectPostgres, "pgx", nil
	}
	return 0, "", fmt.Errorf("datastore: 不支持的驱动 %q", driver)
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS samples (
		device_id TEXT NOT NULL,
		domain    TEXT NOT NULL,
		ts        BIGINT NOT NULL,
		value     DOUBLE PRECISION NOT NULL,
		calories  DOUBLE PRECISION NOT NULL DEFAULT 0,
		distance  INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (device_id, domain, ts)
	)`,
	`CREATE TABLE IF NOT EXISTS sleep (
		device_id TEXT NOT NULL,
		start_ts  BIGINT NOT NULL,
		end_ts    BIGINT NOT NULL,
		stage     TEXT NOT NULL,
		PRIMARY KEY (device_id, start_ts)
	)`,
	`CREATE TABLE IF NOT EXISTS sync_runs (
		id          TEXT PRIMARY KEY,
		device_id   TEXT NOT NULL,
		started_at  BIGINT NOT NULL,
		finished_at BIGINT,
		status      TEXT NOT NULL,
		samples     INTEGER NOT NULL DEFAULT 0,
		failed      TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sync_runs_device ON sync_runs (device_id, started_at)`,
}

// SQLStore 基于 database/sql 的持久层，实现 inter.DataStore
// 时间戳统一存为 Unix 毫秒
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	log     *zap.Logger

	mu      sync.Mutex
	entropy *rand.Rand
}

var _ inter.DataStore = (*SQLStore)(nil)

// OpenSQL 打开数据库并建表
func OpenSQL(driver, dsn string, logger *zap.Logger) (*SQLStore, error) {
	dialect, name, err := ParseDialect(driver)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(name, dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if dialect == DialectSQLite {
		// SQLite 只允许一个写连接
		db.SetMaxOpenConns(1)
	}
	s, err := NewSQLStore(db, dialect, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLStore 在已打开的连接上建表
func NewSQLStore(db *sql.DB, dialect Dialect, logger *zap.Logger) (*SQLStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &SQLStore{
		db:      db,
		dialect: dialect,
		log:     logger,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	if err := s.migrate(context.Background()); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	for _, stmt := range migrations {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// rebind 把 ? 占位符换成 PostgreSQL 的 $n
func (s *SQLStore) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) newID(t time.Time) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), s.entropy).String()
}

const (
	upsertSample = `INSERT INTO samples (device_id, domain, ts, value, calories, distance)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (device_id, domain, ts) DO UPDATE SET
			value = excluded.value, calories = excluded.calories, distance = excluded.distance`
	upsertSleep = `INSERT INTO sleep (device_id, start_ts, end_ts, stage)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (device_id, start_ts) DO UPDATE SET
			end_ts = excluded.end_ts, stage = excluded.stage`
)

// Persist 在一个事务中写入快照，时间戳相同的样本被覆盖
func (s *SQLStore) Persist(ctx context.Context, deviceID string, snap inter.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	sampleStmt, err := tx.PrepareContext(ctx, s.rebind(upsertSample))
	if err != nil {
		return err
	}
	defer sampleStmt.Close()

	for _, p := range Points(snap) {
		if p.Domain == inter.DomainSleep {
			continue
		}
		if _, err := sampleStmt.ExecContext(ctx, deviceID, p.Domain.String(), p.Timestamp.UnixMilli(), p.Value, p.Calories, p.Distance); err != nil {
			return fmt.Errorf("upsert %s sample: %w", p.Domain, err)
		}
	}

	if len(snap.Sleep) > 0 {
		sleepStmt, err := tx.PrepareContext(ctx, s.rebind(upsertSleep))
		if err != nil {
			return err
		}
		defer sleepStmt.Close()
		for _, r := range snap.Sleep {
			if _, err := sleepStmt.ExecContext(ctx, deviceID, r.Start.UnixMilli(), r.End.UnixMilli(), r.Stage.String()); err != nil {
				return fmt.Errorf("upsert sleep record: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	s.log.Info("snapshot persisted", zap.String("device", deviceID), zap.Int("samples", snap.Len()))
	return nil
}

func (s *SQLStore) BeginRun(ctx context.Context, deviceID string, startedAt time.Time) (string, error) {
	id := s.newID(startedAt)
	_, err := s.db.ExecContext(ctx, s.rebind(
		"INSERT INTO sync_runs (id, device_id, started_at, status) VALUES (?, ?, ?, ?)"),
		id, deviceID, startedAt.UnixMilli(), string(inter.RunRunning),
	)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *SQLStore) FinishRun(ctx context.Context, run inter.SyncRun) error {
	var finished sql.NullInt64
	if run.FinishedAt != nil {
		finished = sql.NullInt64{Int64: run.FinishedAt.UnixMilli(), Valid: true}
	}
	res, err := s.db.ExecContext(ctx, s.rebind(
		"UPDATE sync_runs SET finished_at = ?, status = ?, samples = ?, failed = ? WHERE id = ?"),
		finished, string(run.Status), run.Samples, joinDomains(run.Failed), run.ID,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, run.ID)
	}
	return nil
}

// ListRuns 最近的同步记录，新的在前
func (s *SQLStore) ListRuns(ctx context.Context, deviceID string, limit int) ([]inter.SyncRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT id, device_id, started_at, finished_at, status, samples, failed
		FROM sync_runs WHERE device_id = ? ORDER BY started_at DESC, id DESC LIMIT ?`),
		deviceID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []inter.SyncRun
	for rows.Next() {
		var (
			r        inter.SyncRun
			started  int64
			finished sql.NullInt64
			status   string
			failed   string
		)
		if err := rows.Scan(&r.ID, &r.DeviceID, &started, &finished, &status, &r.Samples, &failed); err != nil {
			return nil, err
		}
		r.StartedAt = time.UnixMilli(started)
		if finished.Valid {
			t := time.UnixMilli(finished.Int64)
			r.FinishedAt = &t
		}
		r.Status = inter.SyncRunStatus(status)
		r.Failed = splitDomains(failed)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Query 查询 [from, to] 区间内的数据点，按时间升序
func (s *SQLStore) Query(ctx context.Context, deviceID string, d inter.Domain, from, to time.Time) ([]inter.MetricPoint, error) {
	if d == inter.DomainSleep {
		return s.querySleep(ctx, deviceID, from, to)
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT ts, value, calories, distance FROM samples
		WHERE device_id = ? AND domain = ? AND ts BETWEEN ? AND ?
		ORDER BY ts ASC`),
		deviceID, d.String(), from.UnixMilli(), to.UnixMilli(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []inter.MetricPoint
	for rows.Next() {
		p := inter.MetricPoint{Domain: d}
		var ts int64
		if err := rows.Scan(&ts, &p.Value, &p.Calories, &p.Distance); err != nil {
			return nil, err
		}
		p.Timestamp = time.UnixMilli(ts)
		points = append(points, p)
	}
	return points, rows.Err()
}

func (s *SQLStore) querySleep(ctx context.Context, deviceID string, from, to time.Time) ([]inter.MetricPoint, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT start_ts, end_ts, stage FROM sleep
		WHERE device_id = ? AND start_ts BETWEEN ? AND ?
		ORDER BY start_ts ASC`),
		deviceID, from.UnixMilli(), to.UnixMilli(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []inter.MetricPoint
	for rows.Next() {
		var start, end int64
		p := inter.MetricPoint{Domain: inter.DomainSleep}
		if err := rows.Scan(&start, &end, &p.Stage); err != nil {
			return nil, err
		}
		p.Timestamp = time.UnixMilli(start)
		e := time.UnixMilli(end)
		p.End = &e
		p.Value = e.Sub(p.Timestamp).Minutes()
		points = append(points, p)
	}
	return points, rows.Err()
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func joinDomains(ds []inter.Domain) string {
	names := make([]string, len(ds))
	for i, d := range ds {
		names[i] = d.String()
	}
	return strings.Join(names, ",")
}

func splitDomains(s string) []inter.Domain {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]inter.Domain, 0, len(parts))
	for _, p := range parts {
		out = append(out, inter.ParseDomain(p))
	}
	return out
}
