package pgrepos

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/ecolehq/ecole/core"
	"github.com/ecolehq/ecole/core/user"
)

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sqlx.DB) user.Repository {
	return &userRepository{db: db}
}

// userRow is the flat identity+profile row; profile columns are NULL when no
// profile exists and role coalesces to "".
type userRow struct {
	ID           string      `db:"id"`
	Email        string      `db:"email"`
	PasswordHash []byte      `db:"password_hash"`
	IsActive     bool        `db:"is_active"`
	LastLogin    null.Time   `db:"last_login"`
	CreatedAt    time.Time   `db:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at"`
	FirstName    null.String `db:"first_name"`
	LastName     null.String `db:"last_name"`
	AvatarURL    null.String `db:"avatar_url"`
	Bio          null.String `db:"bio"`
	Role         string      `db:"role"`
}

func (row userRow) toUser() user.User {
	return user.User{
		ID:           row.ID,
		FirstName:    row.FirstName,
		LastName:     row.LastName,
		Email:        row.Email,
		AvatarURL:    row.AvatarURL,
		Bio:          row.Bio,
		Role:         row.Role,
		IsActive:     row.IsActive,
		PasswordHash: row.PasswordHash,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
		LastLogin:    row.LastLogin,
	}
}

const selectUserQuery = `
SELECT i.id, i.email, i.password_hash, i.is_active, i.last_login, i.created_at, i.updated_at,
       p.first_name, p.last_name, p.avatar_url, p.bio, COALESCE(p.role, '') AS role
FROM identities i
LEFT JOIN profiles p ON p.id = i.id`

func (repo *userRepository) CheckEmailUniqueness(email string, excludedUsers ...user.User) error {
	query := `SELECT EXISTS(SELECT 1 FROM identities WHERE email = ?)`
	args := []interface{}{email}
	if len(excludedUsers) > 0 {
		ids := make([]string, 0, len(excludedUsers))
		for _, usr := range excludedUsers {
			ids = append(ids, usr.ID)
		}
		var err error
		query = `SELECT EXISTS(SELECT 1 FROM identities WHERE email = ? AND id NOT IN (?))`
		if query, args, err = sqlx.In(query, email, ids); err != nil {
			return errors.Wrap(err, "building query")
		}
	}

	var exists bool
	if err := repo.db.Get(&exists, repo.db.Rebind(query), args...); err != nil {
		return errors.Wrap(err, "checking email uniqueness")
	}
	if exists {
		return user.ErrEmailExists
	}
	return nil
}

func (repo *userRepository) CreateIdentity(usr user.User) (user.User, error) {
	query := `
INSERT INTO identities (id, email, password_hash, is_active, last_login, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := repo.db.Exec(query,
		usr.ID, usr.Email, usr.PasswordHash, usr.IsActive, usr.LastLogin, usr.CreatedAt, usr.UpdatedAt)
	if err != nil {
		if isPqError(err, uniqueViolation, "identities_email_key") {
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, errors.Wrap(err, "inserting identity")
	}

	// profile half does not exist yet
	res := usr
	res.FirstName = null.String{}
	res.LastName = null.String{}
	res.AvatarURL = null.String{}
	res.Bio = null.String{}
	res.Role = ""
	return res, nil
}

func (repo *userRepository) CreateProfile(usr user.User) (user.User, error) {
	query := `
INSERT INTO profiles (id, first_name, last_name, avatar_url, bio, role, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := repo.db.Exec(query,
		usr.ID, usr.FirstName, usr.LastName, usr.AvatarURL, usr.Bio, usr.Role, usr.CreatedAt, usr.UpdatedAt)
	if err != nil {
		if isPqError(err, foreignKeyViolation, "") {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, errors.Wrap(err, "inserting profile")
	}
	return repo.GetUserByID(usr.ID)
}

func (repo *userRepository) GetUserByID(id string) (user.User, error) {
	var row userRow
	if err := repo.db.Get(&row, selectUserQuery+" WHERE i.id = $1", id); err != nil {
		if err == sql.ErrNoRows {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, errors.Wrap(err, "getting user")
	}
	return row.toUser(), nil
}

func (repo *userRepository) GetUserByEmail(email string) (user.User, error) {
	var row userRow
	if err := repo.db.Get(&row, selectUserQuery+" WHERE i.email = $1", email); err != nil {
		if err == sql.ErrNoRows {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, errors.Wrap(err, "getting user")
	}
	return row.toUser(), nil
}

func (repo *userRepository) FilterUsers(filter user.QueryFilter, orderings ...core.DBOrdering) ([]user.User, error) {
	var conditions []string
	var args []interface{}

	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Search != "" {
		p := arg("%" + filter.Search + "%")
		conditions = append(conditions,
			fmt.Sprintf("(i.email ILIKE %[1]s OR p.first_name ILIKE %[1]s OR p.last_name ILIKE %[1]s)", p))
	}
	if filter.Role != "" {
		conditions = append(conditions, "p.role = "+arg(filter.Role))
	}
	if filter.IsActive != nil {
		conditions = append(conditions, "i.is_active = "+arg(*filter.IsActive))
	}
	if !filter.CreatedFrom.IsZero() {
		conditions = append(conditions, "i.created_at >= "+arg(filter.CreatedFrom.UTC()))
	}
	if !filter.CreatedTo.IsZero() {
		conditions = append(conditions, "i.created_at <= "+arg(filter.CreatedTo.UTC()))
	}

	query := selectUserQuery
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY " + orderBy(orderings, "i.created_at DESC")

	var rows []userRow
	if err := repo.db.Select(&rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "filtering users")
	}
	users := make([]user.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, row.toUser())
	}
	return users, nil
}

func (repo *userRepository) UpdateUser(usr user.User, isActive *bool) (user.User, error) {
	tx, err := repo.db.Beginx()
	if err != nil {
		return user.User{}, errors.Wrap(err, "beginning tx")
	}
	defer func() { _ = tx.Rollback() }()

	identityQ := `UPDATE identities SET email = $1, updated_at = $2`
	identityArgs := []interface{}{usr.Email, usr.UpdatedAt}
	if len(usr.PasswordHash) > 0 {
		identityArgs = append(identityArgs, usr.PasswordHash)
		identityQ += fmt.Sprintf(", password_hash = $%d", len(identityArgs))
	}
	if isActive != nil {
		identityArgs = append(identityArgs, *isActive)
		identityQ += fmt.Sprintf(", is_active = $%d", len(identityArgs))
	}
	identityArgs = append(identityArgs, usr.ID)
	identityQ += fmt.Sprintf(" WHERE id = $%d", len(identityArgs))

	res, err := tx.Exec(identityQ, identityArgs...)
	if err != nil {
		if isPqError(err, uniqueViolation, "identities_email_key") {
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, errors.Wrap(err, "updating identity")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return user.User{}, user.ErrNotFound
	}

	profileQ := `
UPDATE profiles SET first_name = $1, last_name = $2, avatar_url = $3, bio = $4, updated_at = $5`
	profileArgs := []interface{}{usr.FirstName, usr.LastName, usr.AvatarURL, usr.Bio, usr.UpdatedAt}
	if usr.Role != "" {
		profileArgs = append(profileArgs, usr.Role)
		profileQ += fmt.Sprintf(", role = $%d", len(profileArgs))
	}
	profileArgs = append(profileArgs, usr.ID)
	profileQ += fmt.Sprintf(" WHERE id = $%d", len(profileArgs))

	if _, err = tx.Exec(profileQ, profileArgs...); err != nil {
		return user.User{}, errors.Wrap(err, "updating profile")
	}

	if err = tx.Commit(); err != nil {
		return user.User{}, errors.Wrap(err, "committing tx")
	}
	return repo.GetUserByID(usr.ID)
}

func (repo *userRepository) SetLastLogin(usr user.User) (user.User, error) {
	res, err := repo.db.Exec(`UPDATE identities SET last_login = $1 WHERE id = $2`, usr.LastLogin, usr.ID)
	if err != nil {
		return user.User{}, errors.Wrap(err, "setting last login")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return repo.GetUserByID(usr.ID)
}

func (repo *userRepository) DeleteProfile(id string) error {
	res, err := repo.db.Exec(`DELETE FROM profiles WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting profile")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return user.ErrNotFound
	}
	return nil
}

func (repo *userRepository) DeleteIdentity(id string) error {
	res, err := repo.db.Exec(`DELETE FROM identities WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting identity")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return user.ErrNotFound
	}
	return nil
}
