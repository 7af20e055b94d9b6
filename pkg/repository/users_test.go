package repository

import (
	"context"
	"fmt"
	"testing"

	"github.com/example/freshcart/pkg/models"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDirectory(t *testing.T) *UserDirectory {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	dir := NewUserDirectory(db)
	require.NoError(t, dir.Migrate())

	users := []models.User{
		{ID: "u-2", Name: "Meera", Email: "meera@example.com", Role: models.RoleAdmin},
		{ID: "u-1", Name: "Ravi", Email: "ravi@example.com", Role: models.RoleAdmin},
		{ID: "u-3", Name: "Asha", Email: "asha@example.com", Role: models.RoleCustomer, Address: "12 Lake Road", Area: "North"},
		{ID: "u-4", Name: "Dev", Email: "dev@example.com", Role: models.RoleDriver},
	}
	require.NoError(t, db.Create(&users).Error)
	return dir
}

func TestUserDirectoryListAdmins(t *testing.T) {
	t.Parallel()

	dir := newTestDirectory(t)
	admins, err := dir.ListAdmins(context.Background())
	require.NoError(t, err)
	require.Len(t, admins, 2)
	assert.Equal(t, "u-1", admins[0].ID)
	assert.Equal(t, "u-2", admins[1].ID)
}

func TestUserDirectoryGetUser(t *testing.T) {
	t.Parallel()

	dir := newTestDirectory(t)
	u, err := dir.GetUser(context.Background(), "u-3")
	require.NoError(t, err)
	assert.Equal(t, "North", u.Area)

	_, err = dir.GetUser(context.Background(), "u-404")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, dir.Ping(context.Background()))
}
