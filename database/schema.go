package database

import (
	"context"
	"fmt"

	"github.com/apex/log"
)

const createReportsTable = `
CREATE TABLE IF NOT EXISTS reports (
	id CHAR(36) NOT NULL,
	image_ref LONGTEXT NOT NULL,
	description TEXT NOT NULL,
	lat DOUBLE NOT NULL,
	lng DOUBLE NOT NULL,
	address VARCHAR(512) NOT NULL DEFAULT '',
	zipcode CHAR(5) NOT NULL DEFAULT '',
	issue_type VARCHAR(32) NOT NULL DEFAULT 'other',
	confidence DOUBLE NOT NULL DEFAULT 0,
	summary TEXT NOT NULL,
	severity TINYINT NOT NULL DEFAULT 3,
	department VARCHAR(32) NOT NULL DEFAULT 'general',
	reason VARCHAR(255) NOT NULL DEFAULT '',
	status VARCHAR(16) NOT NULL DEFAULT 'pending',
	classification_failed BOOLEAN NOT NULL DEFAULT FALSE,
	enrichment_failed BOOLEAN NOT NULL DEFAULT FALSE,
	enrichment_source VARCHAR(32) NOT NULL DEFAULT '',
	created_at DATETIME(6) NOT NULL,
	updated_at DATETIME(6) NOT NULL,
	resolved_at DATETIME(6) NULL,
	resolution_time_hours INT NULL,
	PRIMARY KEY (id),
	INDEX idx_reports_location (lat, lng),
	INDEX idx_reports_status (status),
	INDEX idx_reports_zipcode_department (zipcode, department),
	INDEX idx_reports_created_at (created_at)
)`

// InitSchema creates the reports table if it doesn't exist.
func (d *Database) InitSchema(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, createReportsTable); err != nil {
		return fmt.Errorf("failed to create reports table: %w", err)
	}
	log.Info("reports table created/verified successfully")
	return nil
}
