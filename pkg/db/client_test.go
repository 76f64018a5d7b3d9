package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type testModel struct {
	ID   int
	Name string
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
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

func TestNewFromConnReportsDialect(t *testing.T) {
	client := NewFromConn(newTestDB(t))
	if client.Dialect() != "sqlite" {
		t.Fatalf("expected sqlite dialect, got %q", client.Dialect())
	}
}

func TestIsUniqueViolationMatchesBothDrivers(t *testing.T) {
	pg := errors.New(`ERROR: duplicate key value violates unique constraint "ux_production_tasks_idempotency_key_type"`)
	lite := errors.New("UNIQUE constraint failed: production_tasks.idempotency_key, production_tasks.type")

	if !IsUniqueViolation(pg, "") || !IsUniqueViolation(lite, "") {
		t.Fatal("expected both driver messages to be detected")
	}
	if !IsUniqueViolation(pg, "ux_production_tasks_idempotency_key_type") {
		t.Fatal("expected named constraint to match")
	}
	if IsUniqueViolation(lite, "ux_orders_reference") {
		t.Fatal("expected unrelated constraint not to match")
	}
	if IsUniqueViolation(errors.New("connection reset"), "") {
		t.Fatal("expected unrelated error not to match")
	}
}

func TestIsSerializationFailure(t *testing.T) {
	if !IsSerializationFailure(errors.New("ERROR: deadlock detected (SQLSTATE 40P01)")) {
		t.Fatal("expected deadlock to be retryable")
	}
	if IsSerializationFailure(nil) {
		t.Fatal("nil is not a serialization failure")
	}
}

func TestWithTxRetriesSerializationFailures(t *testing.T) {
	client := &Client{conn: newTestDB(t), retries: 2}

	calls := 0
	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		calls++
		if calls < 3 {
			return errors.New("ERROR: could not serialize access due to concurrent update (SQLSTATE 40001)")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected third attempt to succeed, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestWithTxStopsRetryingAtLimit(t *testing.T) {
	client := &Client{conn: newTestDB(t), retries: 1}

	calls := 0
	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		calls++
		return errors.New("ERROR: deadlock detected (SQLSTATE 40P01)")
	})
	if err == nil || !IsSerializationFailure(err) {
		t.Fatalf("expected serialization failure, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls)
	}
}

func TestWithTxDoesNotRetryOtherErrors(t *testing.T) {
	client := &Client{conn: newTestDB(t), retries: 3}

	calls := 0
	_ = client.WithTx(context.Background(), func(tx *gorm.DB) error {
		calls++
		return errors.New("boom")
	})
	if calls != 1 {
		t.Fatalf("expected a single attempt, got %d", calls)
	}
}

func TestErrorHelpersReadDriverCodes(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "ux_orders_order_number"}
	if !IsUniqueViolation(fmt.Errorf("insert order: %w", pgErr), "order_number") {
		t.Fatal("expected driver code to classify the unique violation")
	}
	if IsUniqueViolation(pgErr, "sku") {
		t.Fatal("expected a different constraint not to match")
	}
	if !IsSerializationFailure(&pgconn.PgError{Code: "40001", Message: "unexpected text"}) {
		t.Fatal("expected 40001 to be a serialization failure")
	}
	if IsSerializationFailure(&pgconn.PgError{Code: "23514"}) {
		t.Fatal("check violations are not retryable")
	}
}
