// Package user is the users table wired end to end: entity, request and
// repository.
package user

import (
	"fmt"

	"github.com/ammar0144/querykit/pkg/db"
	"github.com/ammar0144/querykit/pkg/persist"
	"github.com/ammar0144/querykit/pkg/query"
)

// Roles
const (
	RoleAdmin   = "ADMIN"
	RoleManager = "MANAGER"
	RoleUser    = "USER"
)

// Table is the users table, aliased u
var Table = query.NewTable[User]("users", "u")

// User is a row of the users table. The gorm tags only shape AutoMigrate.
type User struct {
	ID        int64  `db:"id" json:"id" gorm:"primaryKey;autoIncrement"`
	Username  string `db:"username" json:"username" gorm:"size:64;not null;uniqueIndex"`
	Email     string `db:"email" json:"email" gorm:"size:191;not null;uniqueIndex"`
	Password  string `db:"password" json:"-" gorm:"size:255"`
	FirstName string `db:"first_name" json:"firstName" gorm:"size:100"`
	LastName  string `db:"last_name" json:"lastName" gorm:"size:100"`
	Active    bool   `db:"active" json:"active"`
	Role      string `db:"role" json:"role" gorm:"size:32;index"`

	persist.Timestamps

	CreatedBy *string `db:"created_by" json:"createdBy,omitempty" gorm:"size:64"`
	UpdatedBy *string `db:"updated_by" json:"updatedBy,omitempty" gorm:"size:64"`
}

// New returns an active user with the default role
func New(username, email, password string) *User {
	return &User{
		Username: username,
		Email:    email,
		Password: password,
		Active:   true,
		Role:     RoleUser,
	}
}

// TableName tells gorm's AutoMigrate which table to create
func (User) TableName() string {
	return Table.Name
}

// FullName joins first and last name, falling back to the username
func (u *User) FullName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	case u.LastName != "":
		return u.LastName
	}
	return u.Username
}

func (u *User) String() string {
	return fmt.Sprintf("User{id=%d, username=%q, email=%q, fullName=%q, active=%t, role=%q}",
		u.ID, u.Username, u.Email, u.FullName(), u.Active, u.Role)
}

// RowMapper maps a users row, column for column
func RowMapper() db.RowMapper[User] {
	return db.StructMapper[User]()
}
