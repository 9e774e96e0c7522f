package repository

import (
	"context"
	"strings"

	"admissions-go/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// EnsureRole creates the role or replaces its permissions.
func (r *UserRepository) EnsureRole(ctx context.Context, name string, permissions []string) (*models.Role, error) {
	role := models.Role{
		Name:        strings.ToUpper(name),
		Permissions: strings.Join(permissions, ","),
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"permissions"}),
	}).Create(&role).Error
	if err != nil {
		return nil, err
	}
	var stored models.Role
	err = r.db.WithContext(ctx).First(&stored, "name = ?", role.Name).Error
	return &stored, err
}

func (r *UserRepository) CreateUser(ctx context.Context, name, email, password string, roleID uint) (*models.User, error) {
	user := &models.User{
		Name:   name,
		Email:  email,
		RoleID: roleID,
	}
	if err := user.SetPassword(password); err != nil {
		return nil, err
	}
	result := r.db.WithContext(ctx).Create(user)
	return user, result.Error
}

func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	result := r.db.WithContext(ctx).Preload("Role").First(&user, "email = ?", email)
	return &user, result.Error
}

func (r *UserRepository) GetUserByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	result := r.db.WithContext(ctx).Preload("Role").First(&user, id)
	return &user, result.Error
}

func (r *UserRepository) UpdateUserPassword(ctx context.Context, userID uint, newPassword string) error {
	var u models.User
	if err := u.SetPassword(newPassword); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Update("password", u.Password).Error
}
