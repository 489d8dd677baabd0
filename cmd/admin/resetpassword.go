package main

import (
	"github.com/ecolehq/ecole/core"
	"github.com/ecolehq/ecole/core/user"
)

func (cli *commandLine) resetPassword(email, pwd string) error {
	usr, err := cli.usrSvc.GetByEmail(core.CleanString(email, true /* lower */))
	if err != nil {
		return err
	}
	_, err = cli.usrSvc.Update(usr, user.UpdateUser{Password: pwd, PasswordConfirm: pwd})
	return err
}
