package db

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/dealflow-backend/pkg/config"
	"github.com/angelmondragon/dealflow-backend/pkg/logger"
)

type testModel struct {
	ID   int
	Name string
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&testModel{}); err != nil {
		t.Fatalf("failed to migrate sqlite: %v", err)
	}
	return conn
}

func TestWithTx_CommitsAndRollbacks(t *testing.T) {
	db := newTestDB(t)
	client := &Client{conn: db}

	ctx := context.Background()
	if err := client.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(&testModel{Name: "committed"}).Error
	}); err != nil {
		t.Fatalf("WithTx commit failed: %v", err)
	}

	var count int64
	if err := db.Model(&testModel{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 record, got %d", count)
	}

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&testModel{Name: "rolled"}).Error; err != nil {
			return err
		}
		return errors.New("boom")
	})
	if err == nil {
		t.Fatal("expected WithTx to return an error")
	}
	if err := db.Model(&testModel{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed after rollback: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected rollback to leave 1 record, got %d", count)
	}
}

func TestPing(t *testing.T) {
	db := newTestDB(t)
	client := &Client{conn: db}
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected ping error: %v", err)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	db := newTestDB(t)
	type uniqueModel struct {
		ID   int
		Code string `gorm:"uniqueIndex:ux_unique_models_code"`
	}
	if err := db.AutoMigrate(&uniqueModel{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := db.Create(&uniqueModel{Code: "a"}).Error; err != nil {
		t.Fatalf("first insert: %v", err)
	}
	err := db.Create(&uniqueModel{Code: "a"}).Error
	if !IsUniqueViolation(err, "ux_unique_models_code") {
		t.Fatalf("expected unique violation, got %v", err)
	}
	if IsUniqueViolation(errors.New("boom"), "") {
		t.Fatal("plain error must not be a unique violation")
	}
	if IsUniqueViolation(nil, "") {
		t.Fatal("nil must not be a unique violation")
	}
}

func TestIsNotFound(t *testing.T) {
	db := newTestDB(t)
	var m testModel
	err := db.Where("name = ?", "missing").First(&m).Error
	if !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestWithTxRetriesSerializationFailures(t *testing.T) {
	db := newTestDB(t)
	client := Wrap(db)

	attempts := 0
	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		attempts++
		if err := tx.Create(&testModel{Name: fmt.Sprintf("attempt-%d", attempts)}).Error; err != nil {
			return err
		}
		if attempts < 3 {
			return fmt.Errorf("settle: %w", &pgconn.PgError{Code: serializationFailureCode})
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, attempts)

	var names []string
	require.NoError(t, db.Model(&testModel{}).Pluck("name", &names).Error)
	require.Equal(t, []string{"attempt-3"}, names)
}

func TestWithTxGivesUpAfterMaxAttempts(t *testing.T) {
	client := Wrap(newTestDB(t))
	attempts := 0
	err := client.WithTx(context.Background(), func(*gorm.DB) error {
		attempts++
		return &pq.Error{Code: deadlockDetectedCode}
	})
	require.True(t, IsTxConflict(err))
	require.Equal(t, maxTxAttempts, attempts)
}

func TestIsTxConflict(t *testing.T) {
	require.True(t, IsTxConflict(&pgconn.PgError{Code: serializationFailureCode}))
	require.False(t, IsTxConflict(&pgconn.PgError{Code: uniqueViolationCode}))
	require.False(t, IsTxConflict(errors.New("40001")))
	require.False(t, IsTxConflict(nil))
}

func TestDialectorFor(t *testing.T) {
	d, err := dialectorFor(config.DBConfig{DSN: "postgres://x"})
	require.NoError(t, err)
	require.Equal(t, "postgres", d.Name())

	d, err = dialectorFor(config.DBConfig{DSN: ":memory:", Driver: " SQLite "})
	require.NoError(t, err)
	require.Equal(t, "sqlite", d.Name())

	_, err = dialectorFor(config.DBConfig{DSN: "x", Driver: "mysql"})
	require.ErrorContains(t, err, "unsupported")
}

func TestQueryLoggerTracesOnlySlowAndFailed(t *testing.T) {
	buf := &bytes.Buffer{}
	q := newQueryLogger(logger.New(logger.Options{Format: logger.FormatJSON, Output: buf}), 50*time.Millisecond)
	sql := func() (string, int64) { return "SELECT 1", 1 }
	ctx := context.Background()

	q.Trace(ctx, time.Now(), sql, nil)
	q.Trace(ctx, time.Now(), sql, gorm.ErrRecordNotFound)
	require.Zero(t, buf.Len())

	q.Trace(ctx, time.Now().Add(-time.Second), sql, nil)
	require.Contains(t, buf.String(), "slow query")

	buf.Reset()
	q.Trace(ctx, time.Now(), sql, errors.New("relation missing"))
	require.Contains(t, buf.String(), "relation missing")

	buf.Reset()
	q.LogMode(gormlogger.Silent).Trace(ctx, time.Now(), sql, errors.New("relation missing"))
	require.Zero(t, buf.Len())

	require.Equal(t, gormlogger.Discard, newQueryLogger(nil, time.Second))
}
