package postgres

import (
	"context"
	"fmt"

	"github.com/dom/rally-league/internal/domain"
	"github.com/dom/rally-league/internal/repository"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func NewConnection(databaseURL string, logLevel logger.LogLevel) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{
		Logger:         logger.Default.LogMode(logLevel),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// Migrate creates or updates the schema. It is idempotent.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&domain.User{},
		&domain.UserSession{},
		&domain.Post{},
		&domain.Application{},
		&domain.Party{},
		&domain.PartyMember{},
		&domain.ChatMessage{},
	)
	if err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}

	// gorm tags cannot express partial indexes.
	err = db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_applications_one_pending
		ON applications (post_id, applicant_id) WHERE status = 'pending'`).Error
	if err != nil {
		return fmt.Errorf("create pending application index: %w", err)
	}

	return nil
}

func NewRepositories(db *gorm.DB) *repository.Repositories {
	return &repository.Repositories{
		User:        NewUserRepository(db),
		Session:     NewSessionRepository(db),
		Post:        NewPostRepository(db),
		Application: NewApplicationRepository(db),
		Party:       NewPartyRepository(db),
		PartyMember: NewPartyMemberRepository(db),
		ChatMessage: NewChatMessageRepository(db),
		Tx:          &transactor{db: db},
	}
}

type transactor struct {
	db *gorm.DB
}

func (t *transactor) WithinTransaction(ctx context.Context, fn func(tx *repository.Repositories) error) error {
	return t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRepositories(tx))
	})
}
