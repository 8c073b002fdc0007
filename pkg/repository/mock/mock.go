package mock

import (
	"context"

	"github.com/gather-app/gather/pkg/models"
)

// Test helpers and mocks
type Mocks struct {
	AdminRepo *mockAdminRepo
}

func NewMocks() *Mocks {
	return &Mocks{
		AdminRepo: &mockAdminRepo{},
	}
}

type mockAdminRepo struct {
	Stored    *models.Admin
	Count     int64
	CreateErr error
	ListErr   error
}

func (m *mockAdminRepo) CreateAdmin(ctx context.Context, a *models.Admin) (int64, error) {
	if m.CreateErr != nil {
		return 0, m.CreateErr
	}
	m.Stored = &models.Admin{ID: 1, Email: a.Email, HashedPassword: a.HashedPassword, IsActive: a.IsActive, CreatedAt: a.CreatedAt}
	m.Count++
	return 1, nil
}

func (m *mockAdminRepo) GetAdminByID(ctx context.Context, id int64) (*models.Admin, error) {
	if m.Stored != nil && m.Stored.ID == id {
		return m.Stored, nil
	}
	return nil, nil
}

func (m *mockAdminRepo) GetAdminByEmail(ctx context.Context, email string) (*models.Admin, error) {
	if m.Stored != nil && m.Stored.Email == email {
		return m.Stored, nil
	}
	return nil, nil
}

func (m *mockAdminRepo) ListAdmins(ctx context.Context) ([]models.Admin, error) {
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	if m.Stored == nil {
		return nil, nil
	}
	return []models.Admin{*m.Stored}, nil
}

func (m *mockAdminRepo) CountAdmins(ctx context.Context) (int64, error) {
	return m.Count, nil
}

func (m *mockAdminRepo) DeleteAdminByEmail(ctx context.Context, email string) error {
	if m.Stored != nil && m.Stored.Email == email {
		m.Stored = nil
		if m.Count > 0 {
			m.Count--
		}
	}
	return nil
}
