// Package testutil provides an isolated in-memory database for package tests.
package testutil

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"runwayiq/models"
)

// NewDB opens a private shared-cache SQLite database with every table migrated
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

// CreateLead persists a lead with sensible defaults
func CreateLead(t testing.TB, db *gorm.DB, name, email string) *models.Lead {
	t.Helper()
	lead := &models.Lead{
		FullName: name,
		Email:    email,
		Phone:    "+15550100",
		Status:   models.LeadStatusNew,
		Priority: models.PriorityMedium,
		Owner:    "alex",
	}
	require.NoError(t, db.Create(lead).Error)
	return lead
}

// CreateUser persists an active user whose password is "password123"
func CreateUser(t testing.TB, db *gorm.DB, name, email string) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	require.NoError(t, err)
	user := &models.User{
		Email:        email,
		PasswordHash: string(hash),
		Name:         name,
		IsActive:     true,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}
