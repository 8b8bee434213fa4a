package members

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/studiopass/pkg/db"
	"github.com/angelmondragon/studiopass/pkg/db/models"
	"github.com/angelmondragon/studiopass/pkg/enums"
)

func setupMembersTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	principals := `
CREATE TABLE IF NOT EXISTS auth_principals (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL UNIQUE,
  password_hash TEXT NOT NULL,
  is_active INTEGER NOT NULL DEFAULT 1,
  last_sign_in_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`
	clanovi := `
CREATE TABLE IF NOT EXISTS clanovi (
  id TEXT PRIMARY KEY,
  clan_kod TEXT NOT NULL UNIQUE,
  ime_prezime TEXT NOT NULL,
  telefon TEXT,
  email TEXT,
  napravljeno DATETIME,
  status TEXT NOT NULL,
  role TEXT NOT NULL,
  napomena TEXT,
  barcode_value TEXT,
  barcode_image_url TEXT
);`
	require.NoError(t, conn.Exec(principals).Error)
	require.NoError(t, conn.Exec(clanovi).Error)
	return conn
}

func newPrincipal(t *testing.T, conn *gorm.DB, createdAt time.Time) *models.Principal {
	t.Helper()

	principal := &models.Principal{
		ID:           uuid.New(),
		Email:        fmt.Sprintf("member_%s@example.com", uuid.NewString()),
		PasswordHash: "hash",
		IsActive:     true,
		CreatedAt:    createdAt.UTC(),
		UpdatedAt:    createdAt.UTC(),
	}
	require.NoError(t, conn.Create(principal).Error)
	return principal
}

func memberRow(id uuid.UUID, code string) *models.Member {
	value := code[3:]
	return &models.Member{
		ID:           id,
		MemberCode:   code,
		FullName:     "Ana Anić",
		Status:       enums.MemberStatusActive,
		Role:         enums.MemberRoleMember,
		BarcodeValue: &value,
	}
}

func TestRepositoryUpsertInsertsAndUpdates(t *testing.T) {
	conn := setupMembersTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	principal := newPrincipal(t, conn, time.Now())

	saved, err := repo.Upsert(ctx, memberRow(principal.ID, "ZE-12345678"))
	require.NoError(t, err)
	assert.Equal(t, principal.ID, saved.ID)
	assert.Equal(t, "ZE-12345678", saved.MemberCode)
	assert.False(t, saved.CreatedAt.IsZero())
	createdAt := saved.CreatedAt

	phone := "+38761111222"
	update := memberRow(principal.ID, "ZE-12345678")
	update.FullName = "Ana Marić"
	update.Phone = &phone
	saved, err = repo.Upsert(ctx, update)
	require.NoError(t, err)
	assert.Equal(t, "Ana Marić", saved.FullName)
	require.NotNil(t, saved.Phone)
	assert.Equal(t, phone, *saved.Phone)
	assert.True(t, createdAt.Equal(saved.CreatedAt), "napravljeno must be preserved")

	var count int64
	require.NoError(t, conn.Model(&models.Member{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestRepositoryUpsertDuplicateCode(t *testing.T) {
	conn := setupMembersTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	first := newPrincipal(t, conn, time.Now())
	second := newPrincipal(t, conn, time.Now())
	_, err := repo.Upsert(ctx, memberRow(first.ID, "ZE-11111111"))
	require.NoError(t, err)

	_, err = repo.Upsert(ctx, memberRow(second.ID, "ZE-11111111"))
	require.Error(t, err)
	assert.True(t, db.IsUniqueViolation(err, ""))
}

func TestRepositoryFindByIDNotFound(t *testing.T) {
	conn := setupMembersTestDB(t)
	repo := NewRepository(conn)

	_, err := repo.FindByID(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, db.IsNotFound(err))
}

func TestRepositoryUpdateBarcodeImage(t *testing.T) {
	conn := setupMembersTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	principal := newPrincipal(t, conn, time.Now())
	_, err := repo.Upsert(ctx, memberRow(principal.ID, "ZE-22222222"))
	require.NoError(t, err)

	require.NoError(t, repo.UpdateBarcodeImage(ctx, principal.ID, "https://cdn.example.com/b.png"))
	member, err := repo.FindByID(ctx, principal.ID)
	require.NoError(t, err)
	require.NotNil(t, member.BarcodeImageURL)
	assert.Equal(t, "https://cdn.example.com/b.png", *member.BarcodeImageURL)

	err = repo.UpdateBarcodeImage(ctx, uuid.New(), "https://cdn.example.com/x.png")
	assert.True(t, db.IsNotFound(err))
}

func TestRepositoryListMissingBarcodeImage(t *testing.T) {
	conn := setupMembersTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	withImage := newPrincipal(t, conn, time.Now())
	withoutImage := newPrincipal(t, conn, time.Now())
	withoutValue := newPrincipal(t, conn, time.Now())

	_, err := repo.Upsert(ctx, memberRow(withImage.ID, "ZE-33333333"))
	require.NoError(t, err)
	require.NoError(t, repo.UpdateBarcodeImage(ctx, withImage.ID, "https://cdn.example.com/a.png"))
	_, err = repo.Upsert(ctx, memberRow(withoutImage.ID, "ZE-44444444"))
	require.NoError(t, err)
	bare := memberRow(withoutValue.ID, "ZE-55555555")
	bare.BarcodeValue = nil
	_, err = repo.Upsert(ctx, bare)
	require.NoError(t, err)

	rows, err := repo.ListMissingBarcodeImage(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, withoutImage.ID, rows[0].ID)
}

func TestRepositoryListOrphanPrincipals(t *testing.T) {
	conn := setupMembersTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	now := time.Now().UTC()

	linked := newPrincipal(t, conn, now.Add(-time.Hour))
	orphan := newPrincipal(t, conn, now.Add(-time.Hour))
	newPrincipal(t, conn, now) // still inside the grace period

	_, err := repo.Upsert(ctx, memberRow(linked.ID, "ZE-66666666"))
	require.NoError(t, err)

	rows, err := repo.ListOrphanPrincipals(ctx, now.Add(-15*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, orphan.ID, rows[0].ID)
	assert.Equal(t, orphan.Email, rows[0].Email)
}

func TestRepositoryUpsertKeepsStaffAndCredentialColumns(t *testing.T) {
	conn := setupMembersTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	principal := newPrincipal(t, conn, time.Now())

	_, err := repo.Upsert(ctx, memberRow(principal.ID, "ZE-12345678"))
	require.NoError(t, err)
	require.NoError(t, repo.UpdateBarcodeImage(ctx, principal.ID, "https://cdn.example.com/b.png"))
	require.NoError(t, conn.Exec("UPDATE clanovi SET status = ?, role = ? WHERE id = ?",
		enums.MemberStatusInactive, enums.MemberRoleTrainer, principal.ID).Error)

	edit := &models.Member{
		ID:         principal.ID,
		MemberCode: "ZE-12345678",
		FullName:   "Ana Marić",
		Status:     enums.MemberStatusActive,
		Role:       enums.MemberRoleMember,
	}
	saved, err := repo.Upsert(ctx, edit)
	require.NoError(t, err)

	assert.Equal(t, "Ana Marić", saved.FullName)
	assert.Equal(t, enums.MemberStatusInactive, saved.Status)
	assert.Equal(t, enums.MemberRoleTrainer, saved.Role)
	require.NotNil(t, saved.BarcodeValue)
	assert.Equal(t, "12345678", *saved.BarcodeValue)
	require.NotNil(t, saved.BarcodeImageURL)
	assert.Equal(t, "https://cdn.example.com/b.png", *saved.BarcodeImageURL)
}
