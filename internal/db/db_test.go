package db

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/AMEND09/Razr/internal/session"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := NewDB(path)
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNewDBAppliesMigrations(t *testing.T) {
	db := setupTestDB(t)

	migrationsFS, err := getMigrationsFS()
	if err != nil {
		t.Fatalf("getMigrationsFS failed: %v", err)
	}

	version, dirty, err := db.MigrateVersion(migrationsFS)
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if dirty {
		t.Error("database should not be dirty after NewDB")
	}

	latest, err := GetLatestMigrationVersion(migrationsFS)
	if err != nil {
		t.Fatalf("GetLatestMigrationVersion failed: %v", err)
	}
	if version != latest {
		t.Errorf("expected version %d, got %d", latest, version)
	}
}

func TestNewDBIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := NewDB(path)
	if err != nil {
		t.Fatalf("first NewDB failed: %v", err)
	}
	db.Close()

	db, err = NewDB(path)
	if err != nil {
		t.Fatalf("second NewDB failed: %v", err)
	}
	db.Close()
}

func testRecord(id string, start time.Time, d time.Duration) session.Record {
	return session.Record{
		ID:        id,
		StartedAt: start,
		EndedAt:   start.Add(d),
		Duration:  d,
		Segments:  1,
		Policy:    session.PolicyFinish,
	}
}

func TestSaveAndListSessions(t *testing.T) {
	db := setupTestDB(t)
	base := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)

	first := testRecord("s-1", base, 25*time.Minute)
	first.Segments = 3
	first.Policy = session.PolicyPause
	second := testRecord("s-2", base.Add(2*time.Hour), 10*time.Minute)

	if err := db.SaveSession(first); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}
	if err := db.SaveSession(second); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}

	records, err := db.Sessions(10)
	if err != nil {
		t.Fatalf("Sessions failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(records))
	}
	// newest first
	if records[0].ID != "s-2" || records[1].ID != "s-1" {
		t.Errorf("wrong order: %s, %s", records[0].ID, records[1].ID)
	}

	got := records[1]
	if !got.StartedAt.Equal(first.StartedAt) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, first.StartedAt)
	}
	if got.Duration != 25*time.Minute {
		t.Errorf("Duration = %v, want 25m", got.Duration)
	}
	if got.Segments != 3 {
		t.Errorf("Segments = %d, want 3", got.Segments)
	}
	if got.Policy != session.PolicyPause {
		t.Errorf("Policy = %s, want pause", got.Policy)
	}
}

func TestSaveSessionRejectsEmptyID(t *testing.T) {
	db := setupTestDB(t)
	rec := testRecord("", time.Now(), time.Minute)
	if err := db.SaveSession(rec); err == nil {
		t.Error("expected error for empty id")
	}
}

func TestSessionsInRange(t *testing.T) {
	db := setupTestDB(t)
	base := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		rec := testRecord(id, base.AddDate(0, 0, i), 30*time.Minute)
		if err := db.SaveSession(rec); err != nil {
			t.Fatalf("SaveSession failed: %v", err)
		}
	}

	// [day1, day3) includes a and b but not c
	records, err := db.SessionsInRange(base, base.AddDate(0, 0, 2))
	if err != nil {
		t.Fatalf("SessionsInRange failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(records))
	}
	// oldest first
	if records[0].ID != "a" || records[1].ID != "b" {
		t.Errorf("wrong order: %s, %s", records[0].ID, records[1].ID)
	}
}

func TestDeleteSession(t *testing.T) {
	db := setupTestDB(t)
	rec := testRecord("doomed", time.Now(), time.Minute)
	if err := db.SaveSession(rec); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}

	if err := db.DeleteSession("doomed"); err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}
	err := db.DeleteSession("doomed")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("DeleteSession on missing id = %v, want ErrSessionNotFound", err)
	}
}

func TestSettingsRoundtrip(t *testing.T) {
	db := setupTestDB(t)

	got, err := db.GetSetting("flip_policy", "pause")
	if err != nil {
		t.Fatalf("GetSetting failed: %v", err)
	}
	if got != "pause" {
		t.Errorf("expected fallback, got %q", got)
	}

	if err := db.SetSetting("flip_policy", "finish"); err != nil {
		t.Fatalf("SetSetting failed: %v", err)
	}
	got, err = db.GetSetting("flip_policy", "pause")
	if err != nil {
		t.Fatalf("GetSetting failed: %v", err)
	}
	if got != "finish" {
		t.Errorf("expected finish, got %q", got)
	}

	// upsert replaces
	if err := db.SetSetting("flip_policy", "pause"); err != nil {
		t.Fatalf("SetSetting failed: %v", err)
	}
	if err := db.SetSetting("daily_goal_minutes", "90"); err != nil {
		t.Fatalf("SetSetting failed: %v", err)
	}

	all, err := db.Settings()
	if err != nil {
		t.Fatalf("Settings failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 settings, got %d", len(all))
	}
	if all["flip_policy"] != "pause" {
		t.Errorf("flip_policy = %q, want pause", all["flip_policy"])
	}
}

func TestMigrateDownDropsSettings(t *testing.T) {
	db := setupTestDB(t)

	migrationsFS, err := getMigrationsFS()
	if err != nil {
		t.Fatalf("getMigrationsFS failed: %v", err)
	}

	if err := db.MigrateDown(migrationsFS); err != nil {
		t.Fatalf("MigrateDown failed: %v", err)
	}

	var exists bool
	err = db.QueryRow(`
		SELECT COUNT(*) > 0 FROM sqlite_master
		WHERE type='table' AND name='settings'
	`).Scan(&exists)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if exists {
		t.Error("settings table should be gone after one rollback")
	}

	// sessions table from the earlier migration survives
	err = db.QueryRow(`
		SELECT COUNT(*) > 0 FROM sqlite_master
		WHERE type='table' AND name='sessions'
	`).Scan(&exists)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if !exists {
		t.Error("sessions table should survive one rollback")
	}
}

func TestGetLatestMigrationVersion(t *testing.T) {
	migrationsFS, err := getMigrationsFS()
	if err != nil {
		t.Fatalf("getMigrationsFS failed: %v", err)
	}
	latest, err := GetLatestMigrationVersion(migrationsFS)
	if err != nil {
		t.Fatalf("GetLatestMigrationVersion failed: %v", err)
	}
	if latest < 2 {
		t.Errorf("expected at least 2 migrations, got %d", latest)
	}
}
