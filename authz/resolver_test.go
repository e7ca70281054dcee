package authz

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

var permissionColumns = []string{"id", "name", "resource", "action", "scope", "is_critical", "requires_approval"}

func TestJoinedResolver_EffectivePermissions(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT r.name").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).
			AddRow("admin_kabupaten").
			AddRow("verifikator"))
	mock.ExpectQuery("SELECT DISTINCT p.id").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows(permissionColumns).
			AddRow("p1", "facility:read", "facility", "read", "location", false, false).
			AddRow("p2", "housing:read", "housing", "read", "location", false, false).
			AddRow("p3", "housing:verify", "housing", "verify", "inherited", true, false))

	set, err := NewJoinedResolver(db).EffectivePermissions(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("EffectivePermissions() error = %v", err)
	}

	if !set.RoleNames["admin_kabupaten"] || !set.RoleNames["verifikator"] {
		t.Errorf("RoleNames = %v, want both roles", set.RoleNames)
	}
	if len(set.Permissions) != 3 {
		t.Fatalf("Permissions = %d entries, want 3", len(set.Permissions))
	}
	// Sorted by name.
	for i := 1; i < len(set.Permissions); i++ {
		if set.Permissions[i-1].Name > set.Permissions[i].Name {
			t.Errorf("Permissions not sorted: %q before %q", set.Permissions[i-1].Name, set.Permissions[i].Name)
		}
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestNaiveResolver_EffectivePermissions(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT r.id, r.name").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).
			AddRow("r1", "admin_kabupaten").
			AddRow("r2", "verifikator"))
	mock.ExpectQuery("SELECT p.id, p.name").
		WithArgs("r1").
		WillReturnRows(sqlmock.NewRows(permissionColumns).
			AddRow("p1", "facility:read", "facility", "read", "location", false, false).
			AddRow("p2", "housing:read", "housing", "read", "location", false, false))
	mock.ExpectQuery("SELECT p.id, p.name").
		WithArgs("r2").
		WillReturnRows(sqlmock.NewRows(permissionColumns).
			AddRow("p2", "housing:read", "housing", "read", "location", false, false).
			AddRow("p3", "housing:verify", "housing", "verify", "inherited", true, false))

	set, err := NewNaiveResolver(db).EffectivePermissions(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("EffectivePermissions() error = %v", err)
	}

	// p2 is granted through both roles and must appear once.
	if len(set.Permissions) != 3 {
		t.Fatalf("Permissions = %d entries, want 3 after dedup", len(set.Permissions))
	}
	if !set.PermissionNames["housing:read"] || !set.PermissionNames["housing:verify"] || !set.PermissionNames["facility:read"] {
		t.Errorf("PermissionNames = %v, missing expected names", set.PermissionNames)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

// Both strategies must derive the same set from equivalent data.
func TestResolverEquivalence(t *testing.T) {
	joinedDB, joinedMock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer joinedDB.Close()

	naiveDB, naiveMock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer naiveDB.Close()

	joinedMock.ExpectQuery("SELECT r.name").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("admin_desa"))
	joinedMock.ExpectQuery("SELECT DISTINCT p.id").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows(permissionColumns).
			AddRow("p1", "housing:create", "housing", "create", "location", false, false).
			AddRow("p2", "housing:read", "housing", "read", "location", false, false))

	naiveMock.ExpectQuery("SELECT r.id, r.name").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow("r1", "admin_desa"))
	naiveMock.ExpectQuery("SELECT p.id, p.name").
		WithArgs("r1").
		WillReturnRows(sqlmock.NewRows(permissionColumns).
			AddRow("p1", "housing:create", "housing", "create", "location", false, false).
			AddRow("p2", "housing:read", "housing", "read", "location", false, false))

	joined, err := NewJoinedResolver(joinedDB).EffectivePermissions(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("joined EffectivePermissions() error = %v", err)
	}
	naive, err := NewNaiveResolver(naiveDB).EffectivePermissions(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("naive EffectivePermissions() error = %v", err)
	}

	if !reflect.DeepEqual(joined.RoleNames, naive.RoleNames) {
		t.Errorf("RoleNames differ: joined %v, naive %v", joined.RoleNames, naive.RoleNames)
	}
	if !reflect.DeepEqual(joined.PermissionNames, naive.PermissionNames) {
		t.Errorf("PermissionNames differ: joined %v, naive %v", joined.PermissionNames, naive.PermissionNames)
	}
	if !reflect.DeepEqual(joined.Permissions, naive.Permissions) {
		t.Errorf("Permissions differ: joined %v, naive %v", joined.Permissions, naive.Permissions)
	}
}

type stubResolver struct {
	set *PermissionSet
	err error
}

func (s *stubResolver) EffectivePermissions(_ context.Context, _ string) (*PermissionSet, error) {
	return s.set, s.err
}

func TestFailoverResolver(t *testing.T) {
	good := &PermissionSet{PermissionNames: map[string]bool{"housing:read": true}, RoleNames: map[string]bool{}}

	t.Run("primary success", func(t *testing.T) {
		r := NewFailoverResolver(&stubResolver{set: good}, &stubResolver{err: errors.New("unused")})
		set, err := r.EffectivePermissions(context.Background(), "user-1")
		if err != nil || set != good {
			t.Errorf("EffectivePermissions() = %v, %v, want primary set", set, err)
		}
	})

	t.Run("primary failure falls back", func(t *testing.T) {
		r := NewFailoverResolver(&stubResolver{err: errors.New("join path down")}, &stubResolver{set: good})
		set, err := r.EffectivePermissions(context.Background(), "user-1")
		if err != nil || set != good {
			t.Errorf("EffectivePermissions() = %v, %v, want fallback set", set, err)
		}
	})

	t.Run("both failing reports both errors", func(t *testing.T) {
		r := NewFailoverResolver(&stubResolver{err: errors.New("primary down")}, &stubResolver{err: errors.New("fallback down")})
		_, err := r.EffectivePermissions(context.Background(), "user-1")
		if err == nil {
			t.Fatal("EffectivePermissions() expected error")
		}
	})
}
