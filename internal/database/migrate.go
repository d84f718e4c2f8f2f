package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is applied in order by Migrate.  Every statement is idempotent.
//
// tickets.active_owner is a generated column that holds owner_id while the
// ticket is active and NULL otherwise; its UNIQUE index rejects a second
// active ticket for the same owner even if two writers race past the
// application check.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		email         VARCHAR(255) NOT NULL UNIQUE,
		password_hash VARCHAR(255) NOT NULL,
		role          ENUM('USER','ADMIN') NOT NULL DEFAULT 'USER',
		is_active     TINYINT(1) NOT NULL DEFAULT 1,
		created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS refresh_tokens (
		id         BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		user_id    BIGINT UNSIGNED NOT NULL,
		token_hash CHAR(64) NOT NULL UNIQUE,
		expires_at DATETIME NOT NULL,
		revoked_at DATETIME NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		CONSTRAINT fk_refresh_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS services (
		id          BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		name        VARCHAR(120) NOT NULL UNIQUE,
		description VARCHAR(500) NOT NULL DEFAULT ''
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS tickets (
		id           BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		owner_id     BIGINT UNSIGNED NOT NULL,
		service_id   BIGINT UNSIGNED NOT NULL,
		status       ENUM('waiting','in-progress','completed','canceled') NOT NULL DEFAULT 'waiting',
		position     INT UNSIGNED NULL,
		created_at   DATETIME(6) NOT NULL,
		updated_at   DATETIME(6) NOT NULL,
		active_owner BIGINT UNSIGNED AS (IF(status IN ('waiting','in-progress'), owner_id, NULL)) STORED,
		UNIQUE KEY uq_tickets_active_owner (active_owner),
		KEY idx_tickets_status_position (status, position),
		KEY idx_tickets_owner (owner_id, created_at),
		CONSTRAINT fk_tickets_owner FOREIGN KEY (owner_id) REFERENCES users(id),
		CONSTRAINT fk_tickets_service FOREIGN KEY (service_id) REFERENCES services(id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id             BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		target_user_id BIGINT UNSIGNED NULL,
		message        VARCHAR(1000) NOT NULL,
		created_at     DATETIME(6) NOT NULL,
		KEY idx_notifications_target (target_user_id, created_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS audit_logs (
		id         BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		actor_id   BIGINT UNSIGNED NOT NULL DEFAULT 0,
		ticket_id  BIGINT UNSIGNED NOT NULL DEFAULT 0,
		action     VARCHAR(500) NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		KEY idx_audit_created (created_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// seedServices gives a fresh database a usable catalog.  Rows whose name
// already exists are left alone.
const seedServices = `INSERT IGNORE INTO services (name, description) VALUES
	('General', 'General enquiries'),
	('Payments', 'Payments and billing'),
	('Support', 'Technical support')`

// Migrate creates the queue schema when it does not exist yet and seeds
// the service catalog.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i+1, err)
		}
	}
	if _, err := db.ExecContext(ctx, seedServices); err != nil {
		return fmt.Errorf("seed services: %w", err)
	}
	return nil
}
