package repository

import (
	"context"
	"testing"

	"admissions-go/internal/models"
	"admissions-go/internal/testdb"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserRepository_RoleAndPassword(t *testing.T) {
	repo := NewUserRepository(testdb.Open(t))
	ctx := context.Background()

	role, err := repo.EnsureRole(ctx, "super_admin", models.AllPermissions)
	require.NoError(t, err)
	assert.Equal(t, models.SuperAdminRole, role.Name)

	again, err := repo.EnsureRole(ctx, "SUPER_ADMIN", []string{models.PermViewReport})
	require.NoError(t, err)
	assert.Equal(t, role.ID, again.ID)
	assert.Equal(t, []string{models.PermViewReport}, again.PermissionList())

	u, err := repo.CreateUser(ctx, "Ops Lead", "ops@example.com", "Sup3r$ecret", role.ID)
	require.NoError(t, err)

	loaded, err := repo.GetUserByEmail(ctx, "ops@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, loaded.ID)
	assert.Equal(t, models.SuperAdminRole, loaded.Role.Name)
	assert.True(t, loaded.CheckPassword("Sup3r$ecret"))

	require.NoError(t, repo.UpdateUserPassword(ctx, u.ID, "N3w$ecret!"))
	loaded, err = repo.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, loaded.CheckPassword("Sup3r$ecret"))
	assert.True(t, loaded.CheckPassword("N3w$ecret!"))
}
