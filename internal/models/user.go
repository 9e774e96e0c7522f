package models

import (
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Permissions granted through roles.
const (
	PermViewReport     = "view_report"
	PermTriggerNurture = "trigger_nurture"
	PermManageRoles    = "manage_roles"
	PermEditSettings   = "edit_settings"
)

// AllPermissions is what the super admin role carries.
var AllPermissions = []string{PermViewReport, PermTriggerNurture, PermManageRoles, PermEditSettings}

const SuperAdminRole = "SUPER_ADMIN"

type Role struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Name        string `gorm:"uniqueIndex;not null" json:"name"`
	Permissions string `gorm:"type:text" json:"permissions"` // comma separated
}

// PermissionList splits the stored permission string.
func (r Role) PermissionList() []string {
	var out []string
	for _, p := range strings.Split(r.Permissions, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (r Role) Has(perm string) bool {
	for _, p := range r.PermissionList() {
		if p == perm {
			return true
		}
	}
	return false
}

// User is a back-office operator.
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `json:"name"`
	Email     string    `gorm:"uniqueIndex;not null" json:"email"`
	Password  string    `gorm:"not null" json:"-"`
	RoleID    uint      `json:"roleId"`
	Role      Role      `gorm:"foreignKey:RoleID" json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

func (u *User) SetPassword(password string) error {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.Password = string(hashed)
	return nil
}

func (u *User) CheckPassword(password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password))
	return err == nil
}
