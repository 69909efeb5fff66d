package user

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/yungbote/undercurrent-backend/internal/data/repos/testutil"
	types "github.com/yungbote/undercurrent-backend/internal/domain"
	"github.com/yungbote/undercurrent-backend/internal/platform/dbctx"
)

func TestUserRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	repo := NewUserRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}

	created, err := repo.Create(dbc, &types.User{
		Email:    "  UserRepo@Example.com ",
		Password: "pw",
		Name:     "Avery",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID == uuid.Nil || created.Email != "userrepo@example.com" {
		t.Fatalf("Create: unexpected row: %+v", created)
	}

	got, err := repo.GetByID(dbc, created.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got == nil || got.Email != created.Email {
		t.Fatalf("GetByID: unexpected result: %+v", got)
	}

	byEmail, err := repo.GetByEmail(dbc, "USERREPO@example.com")
	if err != nil {
		t.Fatalf("GetByEmail: %v", err)
	}
	if byEmail == nil || byEmail.ID != created.ID {
		t.Fatalf("GetByEmail: unexpected result: %+v", byEmail)
	}

	exists, err := repo.EmailExists(dbc, created.Email)
	if err != nil {
		t.Fatalf("EmailExists: %v", err)
	}
	if !exists {
		t.Fatalf("EmailExists: expected true")
	}
	exists, err = repo.EmailExists(dbc, "does-not-exist@example.com")
	if err != nil {
		t.Fatalf("EmailExists (missing): %v", err)
	}
	if exists {
		t.Fatalf("EmailExists (missing): expected false")
	}

	if err := repo.UpdateName(dbc, created.ID, " Avery Quinn "); err != nil {
		t.Fatalf("UpdateName: %v", err)
	}
	got, err = repo.GetByID(dbc, created.ID)
	if err != nil || got.Name != "Avery Quinn" {
		t.Fatalf("UpdateName: got %+v err=%v", got, err)
	}

	missing, err := repo.GetByID(dbc, uuid.New())
	if err != nil || missing != nil {
		t.Fatalf("GetByID (missing): got %+v err=%v", missing, err)
	}
}
