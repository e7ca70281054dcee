package services

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestRoleService_ReplaceRolePermissions(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	svc := NewRoleService(db, nil)

	// The revoke and the inserts must sit in one transaction.
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("role-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectExec("UPDATE role_permissions SET is_active = false").
		WithArgs("role-1").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("INSERT INTO role_permissions").
		WithArgs(sqlmock.AnyArg(), "role-1", "perm-1", "actor-1").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO role_permissions").
		WithArgs(sqlmock.AnyArg(), "role-1", "perm-2", "actor-1").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err = svc.ReplaceRolePermissions(context.Background(), "actor-1", "role-1", []string{"perm-1", "perm-2"})
	if err != nil {
		t.Fatalf("ReplaceRolePermissions() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestRoleService_ReplaceRolePermissions_RoleMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	svc := NewRoleService(db, nil)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("role-404").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectRollback()

	err = svc.ReplaceRolePermissions(context.Background(), "actor-1", "role-404", []string{"perm-1"})
	if !errors.Is(err, ErrRoleNotFound) {
		t.Errorf("ReplaceRolePermissions() error = %v, want ErrRoleNotFound", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

// A failed insert must roll the whole replacement back: no partial sets.
func TestRoleService_ReplaceRolePermissions_InsertFailureRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	svc := NewRoleService(db, nil)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("role-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectExec("UPDATE role_permissions SET is_active = false").
		WithArgs("role-1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("INSERT INTO role_permissions").
		WithArgs(sqlmock.AnyArg(), "role-1", "perm-1", "actor-1").
		WillReturnError(errors.New("constraint violation"))
	mock.ExpectRollback()

	err = svc.ReplaceRolePermissions(context.Background(), "actor-1", "role-1", []string{"perm-1"})
	if err == nil {
		t.Fatal("ReplaceRolePermissions() expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestRoleService_CreateRole_Duplicate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	svc := NewRoleService(db, nil)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("admin_desa").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	_, err = svc.CreateRole(context.Background(), "actor-1", CreateRoleInput{Name: "admin_desa"})
	if !errors.Is(err, ErrRoleAlreadyExists) {
		t.Errorf("CreateRole() error = %v, want ErrRoleAlreadyExists", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
