package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/apex/log"
	_ "github.com/go-sql-driver/mysql"

	"camera-analyze-service/config"
)

type Database struct {
	db *sql.DB
}

// NewDatabase opens the MySQL connection and waits for the server to
// become reachable, backing off between attempts.
func NewDatabase(cfg *config.Config) (*Database, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	maxRetries := 10
	for i := 0; i < maxRetries; i++ {
		if err = db.Ping(); err == nil {
			break
		}
		wait := time.Duration(1<<uint(i)) * time.Second
		if wait > 30*time.Second {
			wait = 30 * time.Second
		}
		log.WithError(err).WithField("wait", wait.String()).Warn("database not ready, retrying")
		time.Sleep(wait)
	}
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", maxRetries, err)
	}

	log.WithFields(log.Fields{
		"host": cfg.DBHost,
		"name": cfg.DBName,
	}).Info("database connected")
	return &Database{db: db}, nil
}

// NewWithDB wraps an existing connection, used by tests.
func NewWithDB(db *sql.DB) *Database {
	return &Database{db: db}
}

func (d *Database) Close() error {
	return d.db.Close()
}

// CreateSessionTables creates the conversation schema if missing.
func (d *Database) CreateSessionTables() error {
	schemas := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id VARCHAR(36) NOT NULL,
			title VARCHAR(255) NOT NULL DEFAULT 'New Analysis',
			query_count INT NOT NULL DEFAULT 0,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
			PRIMARY KEY (id),
			INDEX idx_updated_at (updated_at)
		)`,
		`CREATE TABLE IF NOT EXISTS session_turns (
			session_id VARCHAR(36) NOT NULL,
			turn_number INT NOT NULL,
			user_query TEXT NOT NULL,
			summary TEXT,
			key_findings LONGTEXT,
			results LONGTEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (session_id, turn_number)
		)`,
	}

	for _, schema := range schemas {
		if _, err := d.db.Exec(schema); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}
