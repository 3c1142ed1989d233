package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/apex/log"
	_ "github.com/go-sql-driver/mysql"

	"github.com/AniketPatel148/CivicLens/config"
	"github.com/AniketPatel148/CivicLens/lifecycle"
	"github.com/AniketPatel148/CivicLens/models"
)

const (
	liteColumns = `id, description, lat, lng, address, zipcode, issue_type, confidence, summary,
		severity, department, reason, status, classification_failed, enrichment_failed,
		enrichment_source, created_at, updated_at, resolved_at, resolution_time_hours`
	fullColumns = liteColumns + `, image_ref`

	maxConnectAttempts = 6
)

// Database is the MySQL report store.
type Database struct {
	db *sql.DB
}

// NewDatabase opens the MySQL connection, waiting for the server with
// exponential backoff.
func NewDatabase(ctx context.Context, cfg *config.Config) (*Database, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true&loc=UTC",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	waitInterval := 1 * time.Second
	for attempt := 1; ; attempt++ {
		err := db.PingContext(ctx)
		if err == nil {
			break
		}
		if attempt == maxConnectAttempts {
			db.Close()
			return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", attempt, err)
		}
		log.Warnf("Database connection failed, retrying in %v: %v", waitInterval, err)
		select {
		case <-ctx.Done():
			db.Close()
			return nil, ctx.Err()
		case <-time.After(waitInterval):
		}
		waitInterval *= 2
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &Database{db: db}, nil
}

// New wraps an existing connection.
func New(db *sql.DB) *Database {
	return &Database{db: db}
}

func (d *Database) Close() error {
	return d.db.Close()
}

func (d *Database) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReport(s scanner, withImage bool) (*models.Report, error) {
	var (
		r          models.Report
		resolvedAt sql.NullTime
		hours      sql.NullInt64
	)
	dest := []any{
		&r.ID, &r.Description, &r.Location.Lat, &r.Location.Lng, &r.Address, &r.Zipcode,
		&r.IssueType, &r.Confidence, &r.Summary, &r.Severity, &r.Department, &r.Reason,
		&r.Status, &r.ClassificationFailed, &r.EnrichmentFailed, &r.EnrichmentSource,
		&r.CreatedAt, &r.UpdatedAt, &resolvedAt, &hours,
	}
	if withImage {
		dest = append(dest, &r.ImageRef)
	}
	if err := s.Scan(dest...); err != nil {
		return nil, err
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time.UTC()
		r.ResolvedAt = &t
	}
	if hours.Valid {
		h := int(hours.Int64)
		r.ResolutionTimeHours = &h
	}
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	return &r, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func (d *Database) CreateReport(ctx context.Context, r models.Report) error {
	result, err := d.db.ExecContext(ctx, `INSERT INTO reports (`+fullColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Description, r.Location.Lat, r.Location.Lng, r.Address, r.Zipcode,
		r.IssueType, r.Confidence, r.Summary, r.Severity, r.Department, r.Reason,
		r.Status, r.ClassificationFailed, r.EnrichmentFailed, r.EnrichmentSource,
		r.CreatedAt, r.UpdatedAt, nullTime(r.ResolvedAt), nullInt(r.ResolutionTimeHours),
		r.ImageRef)
	logResult("insertReport", result, err, true)
	if err != nil {
		return fmt.Errorf("failed to insert report: %w", err)
	}
	return nil
}

// GetReport returns the full report including its image reference.
func (d *Database) GetReport(ctx context.Context, id string) (*models.Report, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+fullColumns+` FROM reports WHERE id = ?`, id)
	r, err := scanReport(row, true)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report %s: %w", id, err)
	}
	return r, nil
}

// bboxClause returns the WHERE fragment for a bounding box. A box crossing
// the antimeridian matches either side of it.
func bboxClause(b *models.BBox) (string, []any) {
	if b.SWLng <= b.NELng {
		return "lat BETWEEN ? AND ? AND lng BETWEEN ? AND ?",
			[]any{b.SWLat, b.NELat, b.SWLng, b.NELng}
	}
	return "lat BETWEEN ? AND ? AND (lng >= ? OR lng <= ?)",
		[]any{b.SWLat, b.NELat, b.SWLng, b.NELng}
}

// ListReports returns reports without image references, newest first.
// A zero limit returns every match.
func (d *Database) ListReports(ctx context.Context, filter models.ReportFilter) ([]models.Report, error) {
	var (
		where []string
		args  []any
	)
	if filter.BBox != nil {
		clause, bboxArgs := bboxClause(filter.BBox)
		where = append(where, clause)
		args = append(args, bboxArgs...)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}

	query := `SELECT ` + liteColumns + ` FROM reports`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	defer rows.Close()

	reports := make([]models.Report, 0)
	for rows.Next() {
		r, err := scanReport(rows, false)
		if err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		reports = append(reports, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate reports: %w", err)
	}
	return reports, nil
}

// SetStatus applies a status transition inside one transaction. The row
// is locked while the resolution fields are computed, so concurrent
// resolutions cannot both set them.
func (d *Database) SetStatus(ctx context.Context, id string, status models.Status, now time.Time) (*models.Report, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		log.Errorf("Error creating transaction: %v", err)
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `SELECT `+liteColumns+` FROM reports WHERE id = ? FOR UPDATE`, id)
	current, err := scanReport(row, false)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock report %s: %w", id, err)
	}

	next := lifecycle.Apply(*current, status, now)

	result, err := tx.ExecContext(ctx, `UPDATE reports
		SET status = ?, updated_at = ?, resolved_at = ?, resolution_time_hours = ?
		WHERE id = ?`,
		next.Status, next.UpdatedAt, nullTime(next.ResolvedAt), nullInt(next.ResolutionTimeHours), id)
	logResult("updateReportStatus", result, err, false)
	if err != nil {
		return nil, fmt.Errorf("failed to update report %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit status update: %w", err)
	}
	return &next, nil
}

// ListStatRows returns the aggregation projection, restricted to zipcode
// when it is not empty.
func (d *Database) ListStatRows(ctx context.Context, zipcode string) ([]models.StatRow, error) {
	query := `SELECT zipcode, department, status, resolution_time_hours FROM reports`
	var args []any
	if zipcode != "" {
		query += ` WHERE zipcode = ?`
		args = append(args, zipcode)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list stat rows: %w", err)
	}
	defer rows.Close()

	out := make([]models.StatRow, 0)
	for rows.Next() {
		var (
			r     models.StatRow
			hours sql.NullInt64
		)
		if err := rows.Scan(&r.Zipcode, &r.Department, &r.Status, &hours); err != nil {
			return nil, fmt.Errorf("failed to scan stat row: %w", err)
		}
		if hours.Valid {
			h := int(hours.Int64)
			r.ResolutionTimeHours = &h
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate stat rows: %w", err)
	}
	return out, nil
}

func logResult(operation string, result sql.Result, err error, expectOne bool) {
	if err != nil {
		log.Errorf("Error in %s: %v", operation, err)
		return
	}
	rows, err := result.RowsAffected()
	if err != nil {
		log.Errorf("Failed to get status of %s: %v", operation, err)
		return
	}
	if expectOne && rows != 1 {
		log.Warnf("%s: expected to affect 1 row, affected %d", operation, rows)
		return
	}
	log.Debugf("%s: %d rows affected", operation, rows)
}
