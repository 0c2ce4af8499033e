package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jansunwai/models"
	"jansunwai/utils"
)

type fakeCredentialStore struct {
	byEmail map[string]*models.StaffAccount
	nextID  int64
}

func (f *fakeCredentialStore) GetStaffByEmail(_ context.Context, email string) (*models.StaffAccount, error) {
	a, ok := f.byEmail[email]
	if !ok {
		return nil, models.Ef(models.KindNotFound, "no staff account for %s", email)
	}
	return a, nil
}

func (f *fakeCredentialStore) CreateStaff(_ context.Context, a *models.StaffAccount) error {
	if _, exists := f.byEmail[a.Email]; exists {
		return models.E(models.KindConflict, "email already registered")
	}
	f.nextID++
	a.UserID = f.nextID
	f.byEmail[a.Email] = a
	return nil
}

func newAuthFixture(t *testing.T) (*AuthService, *fakeCredentialStore) {
	t.Helper()
	store := &fakeCredentialStore{byEmail: make(map[string]*models.StaffAccount)}

	hash, err := utils.HashPassword("correct-horse")
	require.NoError(t, err)
	store.byEmail["staff@city.gov.in"] = &models.StaffAccount{
		UserID: 101, Name: "Field Staff A", Email: "staff@city.gov.in",
		PasswordHash: hash, Role: models.RoleStaff,
		DepartmentID: sql.NullInt64{Int64: 1, Valid: true}, Active: true,
	}
	store.byEmail["gone@city.gov.in"] = &models.StaffAccount{
		UserID: 103, Name: "Former Staff", Email: "gone@city.gov.in",
		PasswordHash: hash, Role: models.RoleStaff,
		DepartmentID: sql.NullInt64{Int64: 1, Valid: true}, Active: false,
	}
	return NewAuthService(store, "test-jwt-secret", 24), store
}

func TestLoginIssuesRoleScopedToken(t *testing.T) {
	svc, _ := newAuthFixture(t)

	res, err := svc.Login(context.Background(), "Staff@City.gov.in ", "correct-horse")
	require.NoError(t, err)
	require.NotEmpty(t, res.Token)

	claims, err := utils.ParseToken(res.Token, []byte("test-jwt-secret"))
	require.NoError(t, err)
	assert.EqualValues(t, 101, claims.UserID)
	assert.Equal(t, models.RoleStaff, claims.Role)
	assert.EqualValues(t, 1, claims.DepartmentID)
}

func TestLoginFailuresAreUniform(t *testing.T) {
	svc, _ := newAuthFixture(t)

	cases := map[string]struct{ email, password string }{
		"wrong password":   {"staff@city.gov.in", "nope"},
		"unknown account":  {"nobody@city.gov.in", "correct-horse"},
		"inactive account": {"gone@city.gov.in", "correct-horse"},
	}
	for name, tc := range cases {
		_, err := svc.Login(context.Background(), tc.email, tc.password)
		require.Error(t, err, name)
		assert.True(t, models.IsKind(err, models.KindUnauthorized), name)
		assert.Contains(t, err.Error(), "invalid credentials", name)
	}
}

func TestLoginTokenRejectsWrongSecret(t *testing.T) {
	svc, _ := newAuthFixture(t)
	res, err := svc.Login(context.Background(), "staff@city.gov.in", "correct-horse")
	require.NoError(t, err)

	_, err = utils.ParseToken(res.Token, []byte("a-different-secret"))
	assert.Error(t, err)
}

func TestCreateStaffRequiresAdmin(t *testing.T) {
	svc, store := newAuthFixture(t)
	dept := int64(2)
	req := &CreateStaffRequest{
		Name: "New Staff", Email: "new@city.gov.in", Password: "long-enough-pw",
		Role: models.RoleStaff, DepartmentID: &dept,
	}

	_, err := svc.CreateStaff(context.Background(), head501, req)
	assert.True(t, models.IsKind(err, models.KindForbidden))

	account, err := svc.CreateStaff(context.Background(), admin900, req)
	require.NoError(t, err)
	assert.True(t, account.Active)
	assert.NotEqual(t, "long-enough-pw", account.PasswordHash)
	require.NoError(t, utils.CheckPassword("long-enough-pw", account.PasswordHash))
	assert.NotNil(t, store.byEmail["new@city.gov.in"])
}

func TestCreateStaffValidation(t *testing.T) {
	svc, _ := newAuthFixture(t)

	// Department-scoped roles need a department.
	_, err := svc.CreateStaff(context.Background(), admin900, &CreateStaffRequest{
		Name: "X", Email: "x@city.gov.in", Password: "long-enough-pw", Role: models.RoleDeptHead,
	})
	assert.True(t, models.IsKind(err, models.KindInvalidInput))

	_, err = svc.CreateStaff(context.Background(), admin900, &CreateStaffRequest{
		Name: "X", Email: "not-an-email", Password: "long-enough-pw", Role: models.RoleAdmin,
	})
	assert.True(t, models.IsKind(err, models.KindInvalidInput))

	_, err = svc.CreateStaff(context.Background(), admin900, &CreateStaffRequest{
		Name: "X", Email: "x@city.gov.in", Password: strings.Repeat("p", 7), Role: models.RoleAdmin,
	})
	assert.True(t, models.IsKind(err, models.KindInvalidInput))
}
