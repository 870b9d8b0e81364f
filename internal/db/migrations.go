package db

import (
	"fmt"

	"gorm.io/gorm"
)

var migrationStatements = []string{
	`CREATE TABLE IF NOT EXISTS traffic_junctions (
		id               BIGSERIAL PRIMARY KEY,
		junction_name    TEXT NOT NULL,
		location         TEXT NOT NULL DEFAULT '',
		latitude         DOUBLE PRECISION,
		longitude        DOUBLE PRECISION,
		status           TEXT NOT NULL DEFAULT 'active',
		algorithm_config JSONB,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`DO $$
	BEGIN
		IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'chk_traffic_junctions_status') THEN
			ALTER TABLE traffic_junctions ADD CONSTRAINT chk_traffic_junctions_status
				CHECK (status IN ('active', 'maintenance', 'inactive'));
		END IF;
	END
	$$;`,

	// One row per saved configuration; the latest row for a junction is the
	// one with the highest id.
	`CREATE TABLE IF NOT EXISTS traffic_cycles (
		id                  BIGSERIAL PRIMARY KEY,
		junction_id         BIGINT NOT NULL REFERENCES traffic_junctions(id) ON DELETE CASCADE,
		status              TEXT NOT NULL,
		total_cycle_time    INT,
		lane_1_green_time   INT,
		lane_2_green_time   INT,
		lane_3_green_time   INT,
		lane_4_green_time   INT,
		algorithm_version   TEXT NOT NULL DEFAULT '',
		calculation_time_ms INT NOT NULL DEFAULT 0,
		created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_traffic_cycles_junction_id ON traffic_cycles(junction_id, id DESC);`,

	`CREATE TABLE IF NOT EXISTS vehicle_detections (
		id                  BIGSERIAL PRIMARY KEY,
		junction_id         BIGINT NOT NULL REFERENCES traffic_junctions(id) ON DELETE CASCADE,
		lane_number         INT NOT NULL,
		vehicle_type        TEXT NOT NULL DEFAULT '',
		detection_timestamp TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_vehicle_detections_timestamp ON vehicle_detections(detection_timestamp DESC);`,
	`CREATE INDEX IF NOT EXISTS idx_vehicle_detections_junction_time ON vehicle_detections(junction_id, detection_timestamp DESC);`,

	`CREATE TABLE IF NOT EXISTS system_logs (
		id          BIGSERIAL PRIMARY KEY,
		junction_id BIGINT REFERENCES traffic_junctions(id) ON DELETE SET NULL,
		timestamp   TIMESTAMPTZ NOT NULL DEFAULT now(),
		log_level   TEXT NOT NULL DEFAULT 'INFO',
		component   TEXT NOT NULL DEFAULT '',
		message     TEXT NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_system_logs_timestamp ON system_logs(timestamp DESC);`,

	`CREATE TABLE IF NOT EXISTS scanners (
		id                  BIGSERIAL PRIMARY KEY,
		junction_id         BIGINT REFERENCES traffic_junctions(id) ON DELETE CASCADE,
		scanner_mac_address TEXT NOT NULL,
		scanner_position    TEXT NOT NULL DEFAULT '',
		last_heartbeat      TIMESTAMPTZ,
		status              TEXT NOT NULL DEFAULT 'active'
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_scanners_mac ON scanners(scanner_mac_address);`,
}

func runMigrations(db *gorm.DB) error {
	for i, stmt := range migrationStatements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
