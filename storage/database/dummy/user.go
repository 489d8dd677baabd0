package dummydb

import (
	"strings"

	"github.com/volatiletech/null/v8"

	"github.com/ecolehq/ecole/core"
	"github.com/ecolehq/ecole/core/user"
)

type userRepository struct {
	db *userTable
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db.user}
}

// get assembles a User, masking profile fields when no profile row exists.
func (repo *userRepository) get(id string) (user.User, bool) {
	usr, ok := repo.db.identities[id]
	if !ok {
		return user.User{}, false
	}
	res := *usr
	if _, hasProfile := repo.db.profiles[id]; !hasProfile {
		res.FirstName = null.String{}
		res.LastName = null.String{}
		res.AvatarURL = null.String{}
		res.Bio = null.String{}
		res.Role = ""
	}
	return res, true
}

func (repo *userRepository) query() []user.User {
	users := make([]user.User, 0, len(repo.db.identities))
	for id := range repo.db.identities {
		if usr, ok := repo.get(id); ok {
			users = append(users, usr)
		}
	}
	return users
}

func (repo *userRepository) CheckEmailUniqueness(email string, excludedUsers ...user.User) error {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, usr := range repo.db.identities {
		if usr.Email != email {
			continue
		}
		excluded := false
		for _, excl := range excludedUsers {
			if excl.ID == usr.ID {
				excluded = true
				break
			}
		}
		if !excluded {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *userRepository) CreateIdentity(usr user.User) (user.User, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	cp := usr
	repo.db.identities[usr.ID] = &cp
	res := usr
	res.FirstName = null.String{}
	res.LastName = null.String{}
	res.AvatarURL = null.String{}
	res.Bio = null.String{}
	res.Role = ""
	return res, nil
}

func (repo *userRepository) CreateProfile(usr user.User) (user.User, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	stored, ok := repo.db.identities[usr.ID]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	stored.FirstName = usr.FirstName
	stored.LastName = usr.LastName
	stored.AvatarURL = usr.AvatarURL
	stored.Bio = usr.Bio
	stored.Role = usr.Role
	stored.UpdatedAt = usr.UpdatedAt
	repo.db.profiles[usr.ID] = struct{}{}
	return *stored, nil
}

func (repo *userRepository) GetUserByID(id string) (user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if usr, ok := repo.get(id); ok {
		return usr, nil
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) GetUserByEmail(email string) (user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for id, usr := range repo.db.identities {
		if usr.Email == email {
			res, _ := repo.get(id)
			return res, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) FilterUsers(filter user.QueryFilter, orderings ...core.DBOrdering) ([]user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	users := repo.query()

	// users with search keyword matching any FirstName, LastName or Email ?
	if filter.Search != "" {
		var filtered []user.User
		for _, u := range users {
			if strings.Contains(strings.ToLower(u.FirstName.String), strings.ToLower(filter.Search)) ||
				strings.Contains(strings.ToLower(u.LastName.String), strings.ToLower(filter.Search)) ||
				strings.Contains(strings.ToLower(u.Email), strings.ToLower(filter.Search)) {
				filtered = append(filtered, u)
			}
		}
		users = filtered
	}
	if users != nil && filter.Role != "" {
		var filtered []user.User
		for _, u := range users {
			if u.Role == filter.Role {
				filtered = append(filtered, u)
			}
		}
		users = filtered
	}
	if users != nil && filter.IsActive != nil {
		var filtered []user.User
		for _, u := range users {
			if u.IsActive == *filter.IsActive {
				filtered = append(filtered, u)
			}
		}
		users = filtered
	}
	if users != nil && !filter.CreatedFrom.IsZero() {
		var filtered []user.User
		from := filter.CreatedFrom.UTC()
		for _, u := range users {
			if !u.CreatedAt.Before(from) {
				filtered = append(filtered, u)
			}
		}
		users = filtered
	}
	if users != nil && !filter.CreatedTo.IsZero() {
		var filtered []user.User
		to := filter.CreatedTo.UTC()
		for _, u := range users {
			if !u.CreatedAt.After(to) {
				filtered = append(filtered, u)
			}
		}
		users = filtered
	}
	return users, nil
}

func (repo *userRepository) UpdateUser(usr user.User, isActive *bool) (user.User, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	stored, ok := repo.db.identities[usr.ID]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	stored.Email = usr.Email
	stored.FirstName = usr.FirstName
	stored.LastName = usr.LastName
	stored.AvatarURL = usr.AvatarURL
	stored.Bio = usr.Bio
	stored.UpdatedAt = usr.UpdatedAt
	if usr.Role != "" {
		stored.Role = usr.Role
	}
	if len(usr.PasswordHash) > 0 {
		stored.PasswordHash = usr.PasswordHash
	}
	if isActive != nil {
		stored.IsActive = *isActive
	}
	res, _ := repo.get(usr.ID)
	return res, nil
}

func (repo *userRepository) SetLastLogin(usr user.User) (user.User, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	stored, ok := repo.db.identities[usr.ID]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	stored.LastLogin = usr.LastLogin
	res, _ := repo.get(usr.ID)
	return res, nil
}

func (repo *userRepository) DeleteProfile(id string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.profiles[id]; !ok {
		return user.ErrNotFound
	}
	delete(repo.db.profiles, id)
	return nil
}

func (repo *userRepository) DeleteIdentity(id string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.identities[id]; !ok {
		return user.ErrNotFound
	}
	delete(repo.db.identities, id)
	return nil
}
