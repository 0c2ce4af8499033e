// Package schema: safe database initialization — create only missing tables,
// never drop or overwrite.
package schema

import (
	"database/sql"
	"log"
)

// InitializeDatabase ensures every core table exists. Checks
// INFORMATION_SCHEMA.TABLES and creates only what is missing; never drops or
// recreates tables, never removes data.
func InitializeDatabase(db *sql.DB) {
	for _, t := range tableDefinitions {
		exists, err := tableExists(db, t.name)
		if err != nil {
			log.Fatalf("[SCHEMA] Failed to check if table %s exists: %v", t.name, err)
		}
		if exists {
			continue
		}
		if _, err := db.Exec(t.ddl); err != nil {
			log.Fatalf("[SCHEMA] Failed to create table %s: %v", t.name, err)
		}
		log.Printf("[SCHEMA] Created table %s", t.name)
	}
	log.Println("[SCHEMA] Database initialization complete")
}

func tableExists(db *sql.DB, table string) (bool, error) {
	var count int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM information_schema.TABLES WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?`,
		table,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

type tableDefinition struct {
	name string
	ddl  string
}

// tableDefinitions in dependency order.
var tableDefinitions = []tableDefinition{
	{"departments", `
		CREATE TABLE departments (
			department_id BIGINT AUTO_INCREMENT PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			head_user_id BIGINT NOT NULL DEFAULT 0,
			UNIQUE KEY uk_departments_name (name)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`},

	{"categories", `
		CREATE TABLE categories (
			category_id BIGINT AUTO_INCREMENT PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			keywords TEXT NOT NULL,
			default_department_id BIGINT NOT NULL,
			UNIQUE KEY uk_categories_name (name),
			KEY idx_categories_department (default_department_id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`},

	{"sla_rules", `
		CREATE TABLE sla_rules (
			department_id BIGINT NOT NULL,
			priority VARCHAR(20) NOT NULL,
			sla_days INT NOT NULL,
			PRIMARY KEY (department_id, priority)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`},

	{"staff_accounts", `
		CREATE TABLE staff_accounts (
			user_id BIGINT AUTO_INCREMENT PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			email VARCHAR(255) NOT NULL,
			password_hash VARCHAR(255) NOT NULL,
			role VARCHAR(30) NOT NULL,
			department_id BIGINT NULL,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NULL,
			UNIQUE KEY uk_staff_email (email),
			KEY idx_staff_department (department_id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`},

	{"complaint_sequences", `
		CREATE TABLE complaint_sequences (
			year INT NOT NULL PRIMARY KEY,
			seq BIGINT NOT NULL DEFAULT 1
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`},

	{"complaints", `
		CREATE TABLE complaints (
			complaint_id BIGINT AUTO_INCREMENT PRIMARY KEY,
			complaint_number VARCHAR(30) NOT NULL,
			citizen_id BIGINT NOT NULL,
			title VARCHAR(255) NOT NULL,
			description TEXT NOT NULL,
			location_text VARCHAR(500) NOT NULL,
			latitude DOUBLE NULL,
			longitude DOUBLE NULL,
			category_id BIGINT NULL,
			department_id BIGINT NULL,
			priority VARCHAR(20) NOT NULL DEFAULT 'medium',
			ai_confidence DOUBLE NOT NULL DEFAULT 0,
			ai_reasoning TEXT NULL,
			needs_manual_routing BOOLEAN NOT NULL DEFAULT FALSE,
			current_state VARCHAR(20) NOT NULL DEFAULT 'filed',
			assigned_staff_id BIGINT NULL,
			escalation_level INT NOT NULL DEFAULT 0,
			needs_manual_attention BOOLEAN NOT NULL DEFAULT FALSE,
			resolution_cycle INT NOT NULL DEFAULT 1,
			sla_days INT NOT NULL DEFAULT 7,
			sla_deadline DATETIME NULL,
			started_at DATETIME NULL,
			resolved_at DATETIME NULL,
			closed_at DATETIME NULL,
			intake_image_handle VARCHAR(100) NULL,
			intake_image_analysis TEXT NULL,
			upvote_count INT NOT NULL DEFAULT 0,
			citizen_satisfaction INT NULL,
			row_version BIGINT NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NULL,
			UNIQUE KEY uk_complaint_number (complaint_number),
			KEY idx_complaints_citizen (citizen_id),
			KEY idx_complaints_department_state (department_id, current_state),
			KEY idx_complaints_staff (assigned_staff_id),
			KEY idx_complaints_sla (current_state, needs_manual_attention, sla_deadline),
			KEY idx_complaints_routing (needs_manual_routing, current_state)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`},

	{"audit_entries", `
		CREATE TABLE audit_entries (
			audit_id BIGINT AUTO_INCREMENT PRIMARY KEY,
			entity_type VARCHAR(50) NOT NULL,
			entity_id BIGINT NOT NULL,
			action VARCHAR(30) NOT NULL,
			old_value TEXT NULL,
			new_value TEXT NULL,
			actor_kind VARCHAR(10) NOT NULL,
			actor_id BIGINT NULL,
			actor_role VARCHAR(30) NULL,
			reason TEXT NULL,
			created_at DATETIME NOT NULL,
			KEY idx_audit_entity (entity_type, entity_id, created_at),
			KEY idx_audit_action (action, created_at),
			KEY idx_audit_actor (actor_kind, actor_id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`},

	{"escalations", `
		CREATE TABLE escalations (
			escalation_id BIGINT AUTO_INCREMENT PRIMARY KEY,
			complaint_id BIGINT NOT NULL,
			from_level INT NOT NULL,
			to_level INT NOT NULL,
			triggered_at DATETIME NOT NULL,
			reason VARCHAR(100) NOT NULL,
			notified_role VARCHAR(30) NOT NULL,
			created_at DATETIME NOT NULL,
			KEY idx_escalations_complaint (complaint_id, triggered_at)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`},

	{"resolution_proofs", `
		CREATE TABLE resolution_proofs (
			proof_id BIGINT AUTO_INCREMENT PRIMARY KEY,
			complaint_id BIGINT NOT NULL,
			cycle INT NOT NULL,
			image_handle VARCHAR(100) NOT NULL,
			evidence_hash CHAR(64) NOT NULL,
			captured_at DATETIME NOT NULL,
			latitude DOUBLE NULL,
			longitude DOUBLE NULL,
			staff_id BIGINT NOT NULL,
			remarks TEXT NULL,
			verified BOOLEAN NOT NULL DEFAULT FALSE,
			archived BOOLEAN NOT NULL DEFAULT FALSE,
			created_at DATETIME NOT NULL,
			KEY idx_proofs_complaint_cycle (complaint_id, cycle, archived)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`},

	{"citizen_signoffs", `
		CREATE TABLE citizen_signoffs (
			signoff_id BIGINT AUTO_INCREMENT PRIMARY KEY,
			complaint_id BIGINT NOT NULL,
			cycle INT NOT NULL,
			accepted BOOLEAN NOT NULL DEFAULT FALSE,
			disputed BOOLEAN NOT NULL DEFAULT FALSE,
			rating INT NULL,
			dispute_reason TEXT NULL,
			counter_proof_handle VARCHAR(100) NULL,
			approved BOOLEAN NULL,
			review_reason TEXT NULL,
			reviewed_by BIGINT NULL,
			reviewed_at DATETIME NULL,
			signed_at DATETIME NOT NULL,
			UNIQUE KEY uk_signoff_cycle (complaint_id, cycle),
			KEY idx_signoffs_pending (disputed, approved)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`},

	{"complaint_upvotes", `
		CREATE TABLE complaint_upvotes (
			complaint_id BIGINT NOT NULL,
			citizen_id BIGINT NOT NULL,
			created_at DATETIME NOT NULL,
			PRIMARY KEY (complaint_id, citizen_id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`},

	{"notifications", `
		CREATE TABLE notifications (
			notification_id BIGINT AUTO_INCREMENT PRIMARY KEY,
			complaint_id BIGINT NOT NULL,
			kind VARCHAR(50) NOT NULL,
			payload TEXT NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'pending',
			attempts INT NOT NULL DEFAULT 0,
			last_error TEXT NULL,
			created_at DATETIME NOT NULL,
			sent_at DATETIME NULL,
			KEY idx_notifications_pending (status, created_at)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`},
}
