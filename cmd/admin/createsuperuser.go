package main

import (
	"github.com/pkg/errors"

	"github.com/ecolehq/ecole/core"
	"github.com/ecolehq/ecole/core/user"
)

// createSuperuser creates an active admin account, or promotes the existing
// account with that email.
func (cli *commandLine) createSuperuser(email, pwd string) error {
	email = core.CleanString(email, true /* lower */)

	usr, err := cli.usrSvc.GetByEmail(email)
	if err != nil {
		if errors.Cause(err) != user.ErrNotFound {
			return err
		}
		_, err = cli.usrSvc.Create(user.NewUser{Email: email, Password: pwd}, user.RoleAdmin, true)
		return err
	}

	active := true
	_, err = cli.usrSvc.Update(usr, user.UpdateUser{
		Role:            user.RoleAdmin,
		IsActive:        &active,
		Password:        pwd,
		PasswordConfirm: pwd,
	})
	return err
}
