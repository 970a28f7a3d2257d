package settings

import (
	"context"
	"fmt"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Entry{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func TestRepo_GetMissingKey(t *testing.T) {
	repo := NewRepo(openTestDB(t))

	if _, err := repo.Get(context.Background(), KeySystemInstruction); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := repo.Get(context.Background(), ""); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for empty key, got %v", err)
	}
}

func TestRepo_SetUpserts(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	ctx := context.Background()

	if err := repo.Set(ctx, KeySystemInstruction, "v1"); err != nil {
		t.Fatalf("set v1: %v", err)
	}
	if err := repo.Set(ctx, KeySystemInstruction, "v2"); err != nil {
		t.Fatalf("set v2: %v", err)
	}

	got, err := repo.Get(ctx, KeySystemInstruction)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != "v2" {
		t.Fatalf("expected v2, got %q", got)
	}

	var cnt int64
	if err := db.Model(&Entry{}).Count(&cnt).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if cnt != 1 {
		t.Fatalf("expected a single row after upsert, got %d", cnt)
	}
}

func TestRepo_SetIfAbsentClaimsOnce(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	ctx := context.Background()

	if err := repo.SetIfAbsent(ctx, KeyAdminSecret, "segredo1"); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if err := repo.SetIfAbsent(ctx, KeyAdminSecret, "outro"); err != ErrAlreadySet {
		t.Fatalf("expected ErrAlreadySet, got %v", err)
	}

	got, _ := repo.Get(ctx, KeyAdminSecret)
	if got != "segredo1" {
		t.Fatalf("secret must not change on second claim, got %q", got)
	}
}
