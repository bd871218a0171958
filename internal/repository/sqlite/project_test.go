package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/sakif/mlvision/internal/apperror"
	"github.com/sakif/mlvision/internal/model"
	"github.com/sakif/mlvision/internal/repository"
)

// createTestProject creates a project owned by a fresh user in tenantID.
func createTestProject(t *testing.T, db *DB, tenantID, name string) *model.Project {
	t.Helper()
	owner := createPasswordUser(t, db.Users(), name+"-owner@example.com")
	project := &model.Project{TenantID: tenantID, OwnerID: owner.ID, Name: name}
	if err := db.Projects().Create(context.Background(), project); err != nil {
		t.Fatalf("failed to create test project: %v", err)
	}
	return project
}

func TestProjectCreateAndGet(t *testing.T) {
	db := newTestDB(t)
	created := createTestProject(t, db, "t1", "vision")

	if created.ID == "" {
		t.Fatal("Create() did not set ID")
	}

	found, err := db.Projects().GetByID(context.Background(), "t1", created.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if found.Name != "vision" || found.OwnerID != created.OwnerID {
		t.Errorf("GetByID() = %+v", found)
	}
}

func TestProjectGetByID_OtherTenant(t *testing.T) {
	db := newTestDB(t)
	created := createTestProject(t, db, "t1", "vision")

	_, err := db.Projects().GetByID(context.Background(), "t2", created.ID)
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetByID() across tenants error = %v, want ErrNotFound", err)
	}
}

func TestProjectCreate_DuplicateNameInTenant(t *testing.T) {
	db := newTestDB(t)
	first := createTestProject(t, db, "t1", "vision")

	err := db.Projects().Create(context.Background(), &model.Project{TenantID: "t1", OwnerID: first.OwnerID, Name: "vision"})
	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("Create() error = %v, want ErrConflict", err)
	}

	// The same name in another tenant is fine
	if err := db.Projects().Create(context.Background(), &model.Project{TenantID: "t2", OwnerID: first.OwnerID, Name: "vision"}); err != nil {
		t.Errorf("Create() in another tenant error = %v", err)
	}
}

func TestProjectListByTenant(t *testing.T) {
	db := newTestDB(t)
	for _, name := range []string{"a", "b", "c"} {
		createTestProject(t, db, "t1", name)
	}
	createTestProject(t, db, "t2", "other")

	projects, err := db.Projects().ListByTenant(context.Background(), "t1", repository.ListOptions{})
	if err != nil {
		t.Fatalf("ListByTenant() error = %v", err)
	}
	if len(projects) != 3 {
		t.Fatalf("ListByTenant() returned %d projects, want 3", len(projects))
	}
	for _, p := range projects {
		if p.TenantID != "t1" {
			t.Errorf("ListByTenant() leaked project of tenant %q", p.TenantID)
		}
	}

	page, err := db.Projects().ListByTenant(context.Background(), "t1", repository.ListOptions{Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("ListByTenant() page error = %v", err)
	}
	if len(page) != 1 {
		t.Errorf("second page has %d projects, want 1", len(page))
	}
}

func TestProjectUpdate(t *testing.T) {
	db := newTestDB(t)
	created := createTestProject(t, db, "t1", "vision")

	created.Name = "vision-v2"
	created.Description = "second iteration"
	if err := db.Projects().Update(context.Background(), created); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	found, _ := db.Projects().GetByID(context.Background(), "t1", created.ID)
	if found.Name != "vision-v2" || found.Description != "second iteration" {
		t.Errorf("after Update() got %+v", found)
	}

	foreign := *created
	foreign.TenantID = "t2"
	if err := db.Projects().Update(context.Background(), &foreign); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Update() across tenants error = %v, want ErrNotFound", err)
	}
}

func TestProjectDelete(t *testing.T) {
	db := newTestDB(t)
	created := createTestProject(t, db, "t1", "vision")

	if err := db.Projects().Delete(context.Background(), "t2", created.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Delete() across tenants error = %v, want ErrNotFound", err)
	}
	if err := db.Projects().Delete(context.Background(), "t1", created.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := db.Projects().GetByID(context.Background(), "t1", created.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetByID() after Delete() error = %v, want ErrNotFound", err)
	}
}
