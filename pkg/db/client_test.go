package db

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type testModel struct {
	ID   int
	Name string
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := Open(sqlite.Open("file:" + uuid.NewString() + "?mode=memory&cache=shared"))
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&testModel{}))
	return conn
}

func TestWithTx_CommitsAndRollbacks(t *testing.T) {
	db := newTestDB(t)
	client := FromGorm(db)
	ctx := context.Background()

	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(&testModel{Name: "committed"}).Error
	}))

	var count int64
	require.NoError(t, db.Model(&testModel{}).Count(&count).Error)
	require.EqualValues(t, 1, count)

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&testModel{Name: "rolled"}).Error; err != nil {
			return err
		}
		return errors.New("boom")
	})
	require.EqualError(t, err, "boom")

	require.NoError(t, db.Model(&testModel{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestWithTx_RollsBackOnPanic(t *testing.T) {
	db := newTestDB(t)
	client := FromGorm(db)

	require.Panics(t, func() {
		_ = client.WithTx(context.Background(), func(tx *gorm.DB) error {
			tx.Create(&testModel{Name: "panicky"})
			panic("kaboom")
		})
	})

	var count int64
	require.NoError(t, db.Model(&testModel{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestPing(t *testing.T) {
	client := FromGorm(newTestDB(t))
	require.NoError(t, client.Ping(context.Background()))
}

func TestForUpdateIsNoopOnSQLite(t *testing.T) {
	db := newTestDB(t)
	var rows []testModel
	require.NoError(t, ForUpdate(db).Find(&rows).Error)
}

func TestIsUniqueViolation(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Exec(`CREATE UNIQUE INDEX uq_test_models_name ON test_models(name)`).Error)
	require.NoError(t, db.Create(&testModel{Name: "dup"}).Error)

	err := db.Create(&testModel{Name: "dup"}).Error
	require.Error(t, err)
	require.True(t, IsUniqueViolation(err, ""))
	require.True(t, IsUniqueViolation(err, "test_models.name"))
	require.False(t, IsUniqueViolation(err, "other_constraint"))
	require.False(t, IsUniqueViolation(errors.New("boom"), ""))
	require.False(t, IsUniqueViolation(nil, ""))
}

func TestIsNotFound(t *testing.T) {
	db := newTestDB(t)
	var row testModel
	err := db.First(&row, 42).Error
	require.True(t, IsNotFound(err))
	require.False(t, IsNotFound(errors.New("x")))
}
