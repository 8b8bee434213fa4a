// Package store persists the member client's session between runs.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/studiopass/internal/client/gateway"
	"github.com/angelmondragon/studiopass/pkg/db"
)

const sessionRowID = 1

const createSessionsTable = `
CREATE TABLE IF NOT EXISTS client_sessions (
  id INTEGER PRIMARY KEY,
  access_token TEXT NOT NULL,
  refresh_token TEXT NOT NULL,
  token_type TEXT NOT NULL,
  expires_at DATETIME NOT NULL,
  principal_id TEXT NOT NULL,
  email TEXT NOT NULL,
  principal_created_at DATETIME,
  updated_at DATETIME NOT NULL
);`

type sessionRow struct {
	ID                 int       `gorm:"column:id;primaryKey"`
	AccessToken        string    `gorm:"column:access_token"`
	RefreshToken       string    `gorm:"column:refresh_token"`
	TokenType          string    `gorm:"column:token_type"`
	ExpiresAt          time.Time `gorm:"column:expires_at"`
	PrincipalID        string    `gorm:"column:principal_id"`
	Email              string    `gorm:"column:email"`
	PrincipalCreatedAt time.Time `gorm:"column:principal_created_at"`
	UpdatedAt          time.Time `gorm:"column:updated_at"`
}

func (sessionRow) TableName() string { return "client_sessions" }

// Store keeps at most one session in a local sqlite file.
type Store struct {
	db *gorm.DB
}

// Open opens (or creates) the sqlite file at path.
func Open(path string) (*Store, error) {
	conn, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	return New(conn)
}

// New prepares the sessions table on an existing connection.
func New(conn *gorm.DB) (*Store, error) {
	if conn == nil {
		return nil, fmt.Errorf("session store requires a connection")
	}
	if err := conn.Exec(createSessionsTable).Error; err != nil {
		return nil, fmt.Errorf("create client_sessions: %w", err)
	}
	return &Store{db: conn}, nil
}

// Load returns the stored session, or nil when none is stored.
func (s *Store) Load(ctx context.Context) (*gateway.Session, error) {
	var row sessionRow
	err := s.db.WithContext(ctx).Where("id = ?", sessionRowID).First(&row).Error
	if db.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	principalID, err := uuid.Parse(row.PrincipalID)
	if err != nil {
		return nil, fmt.Errorf("stored session has invalid principal id: %w", err)
	}
	return &gateway.Session{
		AccessToken:  row.AccessToken,
		RefreshToken: row.RefreshToken,
		TokenType:    row.TokenType,
		ExpiresAt:    row.ExpiresAt.UTC(),
		Principal: gateway.Principal{
			ID:        principalID,
			Email:     row.Email,
			CreatedAt: row.PrincipalCreatedAt.UTC(),
		},
	}, nil
}

// Save replaces the stored session.
func (s *Store) Save(ctx context.Context, session *gateway.Session) error {
	if session == nil {
		return s.Clear(ctx)
	}
	row := sessionRow{
		ID:                 sessionRowID,
		AccessToken:        session.AccessToken,
		RefreshToken:       session.RefreshToken,
		TokenType:          session.TokenType,
		ExpiresAt:          session.ExpiresAt.UTC(),
		PrincipalID:        session.Principal.ID.String(),
		Email:              session.Principal.Email,
		PrincipalCreatedAt: session.Principal.CreatedAt.UTC(),
		UpdatedAt:          time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Save(&row).Error; err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Clear removes the stored session. Clearing an empty store is not an error.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Where("id = ?", sessionRowID).Delete(&sessionRow{}).Error; err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
