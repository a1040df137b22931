package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/mixelka/mailpool/pkg/models"
)

func testDB(t *testing.T) *DB {
	t.Helper()

	db, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func TestAccountLifecycle(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	acc := &models.Account{
		UserID:      7,
		DisplayName: "Pool",
		Email:       "pool@gmail.com",
		Password:    "secret",
		Active:      true,
	}
	if err := db.CreateAccount(ctx, acc); err != nil {
		t.Fatalf("CreateAccount() error: %v", err)
	}
	if acc.ID == 0 {
		t.Fatal("CreateAccount did not set the ID")
	}

	// Same email for the same user is rejected
	dup := &models.Account{UserID: 7, Email: "pool@gmail.com", Password: "other"}
	if err := db.CreateAccount(ctx, dup); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("duplicate CreateAccount() = %v, want ErrAlreadyExists", err)
	}

	// Another user may hold the same address
	other := &models.Account{UserID: 8, Email: "pool@gmail.com", Password: "x"}
	if err := db.CreateAccount(ctx, other); err != nil {
		t.Fatalf("CreateAccount() for second user error: %v", err)
	}

	got, err := db.GetAccountByID(ctx, acc.ID)
	if err != nil {
		t.Fatalf("GetAccountByID() error: %v", err)
	}
	if got.Email != acc.Email || got.UserID != 7 {
		t.Fatalf("GetAccountByID() = %+v", got)
	}

	if err := db.SetAccountActive(ctx, acc.ID, false); err != nil {
		t.Fatalf("SetAccountActive() error: %v", err)
	}
	active, err := db.ListActiveAccounts(ctx, 7)
	if err != nil {
		t.Fatalf("ListActiveAccounts() error: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("ListActiveAccounts() = %d accounts, want 0", len(active))
	}
	all, err := db.ListAccounts(ctx, 7)
	if err != nil {
		t.Fatalf("ListAccounts() error: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("ListAccounts() = %d accounts, want 1", len(all))
	}

	if err := db.DeleteAccount(ctx, acc.ID); err != nil {
		t.Fatalf("DeleteAccount() error: %v", err)
	}
	if _, err := db.GetAccountByID(ctx, acc.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetAccountByID() after delete = %v, want ErrNotFound", err)
	}
}

func TestSaveIncomingDeduplicates(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	acc := &models.Account{UserID: 7, Email: "pool@gmail.com", Password: "x", Active: true}
	if err := db.CreateAccount(ctx, acc); err != nil {
		t.Fatalf("CreateAccount() error: %v", err)
	}

	has, err := db.HasIncoming(ctx, acc.ID)
	if err != nil || has {
		t.Fatalf("HasIncoming() on empty account = %v, %v", has, err)
	}

	msg := &models.IncomingMessage{
		UserID:     7,
		AccountID:  acc.ID,
		UID:        42,
		FromEmail:  "anna@x.de",
		Subject:    "hi",
		Body:       "text",
		ReceivedAt: time.Now(),
	}
	if err := db.SaveIncoming(ctx, msg); err != nil {
		t.Fatalf("SaveIncoming() error: %v", err)
	}

	again := &models.IncomingMessage{UserID: 7, AccountID: acc.ID, UID: 42}
	if err := db.SaveIncoming(ctx, again); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("repeated SaveIncoming() = %v, want ErrAlreadyExists", err)
	}

	// Same UID on a different account is a different message
	acc2 := &models.Account{UserID: 7, Email: "pool2@gmail.com", Password: "x", Active: true}
	if err := db.CreateAccount(ctx, acc2); err != nil {
		t.Fatalf("CreateAccount() error: %v", err)
	}
	otherAcc := &models.IncomingMessage{UserID: 7, AccountID: acc2.ID, UID: 42}
	if err := db.SaveIncoming(ctx, otherAcc); err != nil {
		t.Fatalf("SaveIncoming() on second account error: %v", err)
	}

	has, err = db.HasIncoming(ctx, acc.ID)
	if err != nil || !has {
		t.Fatalf("HasIncoming() = %v, %v, want true", has, err)
	}
}

func TestProxyRepo(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	for i, kind := range []models.ProxyKind{models.ProxyVerify, models.ProxyVerify, models.ProxySend} {
		prx := &models.Proxy{
			UserID:  7,
			Kind:    kind,
			Host:    "10.0.0.1",
			Port:    1080 + i,
			Healthy: true,
		}
		if err := db.CreateProxy(ctx, prx); err != nil {
			t.Fatalf("CreateProxy() error: %v", err)
		}
	}

	verify, err := db.ListProxies(ctx, 7, models.ProxyVerify)
	if err != nil {
		t.Fatalf("ListProxies() error: %v", err)
	}
	if len(verify) != 2 {
		t.Fatalf("ListProxies(verify) = %d, want 2", len(verify))
	}
	// Stable id order keeps the rotation deterministic
	if verify[0].ID > verify[1].ID {
		t.Fatal("proxies not ordered by id")
	}

	if err := db.SetProxyHealthy(ctx, verify[0].ID, false); err != nil {
		t.Fatalf("SetProxyHealthy() error: %v", err)
	}
	verify, _ = db.ListProxies(ctx, 7, models.ProxyVerify)
	if verify[0].Healthy {
		t.Fatal("health flag not persisted")
	}

	if err := db.DeleteProxy(ctx, verify[0].ID); err != nil {
		t.Fatalf("DeleteProxy() error: %v", err)
	}
	verify, _ = db.ListProxies(ctx, 7, models.ProxyVerify)
	if len(verify) != 1 {
		t.Fatalf("ListProxies(verify) after delete = %d, want 1", len(verify))
	}
}

func TestContentRepo(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	subjects, err := db.ListSubjects(ctx, 7)
	if err != nil {
		t.Fatalf("ListSubjects() error: %v", err)
	}
	if len(subjects) != 0 {
		t.Fatalf("ListSubjects() on empty = %v", subjects)
	}

	if err := db.AddSubject(ctx, 7, "Noch da?"); err != nil {
		t.Fatalf("AddSubject() error: %v", err)
	}
	if err := db.AddTemplate(ctx, 7, "Hi SELLER"); err != nil {
		t.Fatalf("AddTemplate() error: %v", err)
	}

	subjects, _ = db.ListSubjects(ctx, 7)
	templates, _ := db.ListTemplates(ctx, 7)
	if len(subjects) != 1 || subjects[0] != "Noch da?" {
		t.Fatalf("ListSubjects() = %v", subjects)
	}
	if len(templates) != 1 || templates[0] != "Hi SELLER" {
		t.Fatalf("ListTemplates() = %v", templates)
	}

	// Pools are per user
	otherSubjects, _ := db.ListSubjects(ctx, 8)
	if len(otherSubjects) != 0 {
		t.Fatalf("subjects leaked across users: %v", otherSubjects)
	}
}

func TestSettingsRepo(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	got, err := db.GetSetting(ctx, 7, "unset", "fallback")
	if err != nil || got != "fallback" {
		t.Fatalf("GetSetting() = %q, %v, want fallback", got, err)
	}

	if err := db.SetSetting(ctx, 7, SettingSendDelayMin, "5"); err != nil {
		t.Fatalf("SetSetting() error: %v", err)
	}
	if err := db.SetSetting(ctx, 7, SettingSendDelayMin, "10"); err != nil {
		t.Fatalf("SetSetting() upsert error: %v", err)
	}
	got, _ = db.GetSetting(ctx, 7, SettingSendDelayMin, "")
	if got != "10" {
		t.Fatalf("GetSetting() after upsert = %q, want 10", got)
	}

	min, max, err := db.SendDelayRange(ctx, 7, 20*time.Second, 40*time.Second)
	if err != nil {
		t.Fatalf("SendDelayRange() error: %v", err)
	}
	if min != 10*time.Second || max != 40*time.Second {
		t.Fatalf("SendDelayRange() = %v, %v", min, max)
	}

	// Inverted bounds are swapped, not rejected
	if err := db.SetSetting(ctx, 7, SettingSendDelayMax, "3"); err != nil {
		t.Fatalf("SetSetting() error: %v", err)
	}
	min, max, _ = db.SendDelayRange(ctx, 7, 20*time.Second, 40*time.Second)
	if min != 3*time.Second || max != 10*time.Second {
		t.Fatalf("SendDelayRange() with inverted bounds = %v, %v", min, max)
	}

	strict, err := db.StrictVerify(ctx, 7)
	if err != nil || strict {
		t.Fatalf("StrictVerify() default = %v, %v, want false", strict, err)
	}
	if err := db.SetSetting(ctx, 7, SettingVerifyStrict, "1"); err != nil {
		t.Fatalf("SetSetting() error: %v", err)
	}
	strict, _ = db.StrictVerify(ctx, 7)
	if !strict {
		t.Fatal("StrictVerify() = false after enabling")
	}
}
