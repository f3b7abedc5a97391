package main

import (
	"context"
	"time"

	"github.com/nextcentury/backend/core"
	"github.com/nextcentury/backend/core/user"
)

// addUser updates or creates a user.User
func (cli *commandLine) addUser(uname, email, pwd string, isAdmin bool) error {
	ctx := context.Background()
	uname = core.CleanString(uname, true /* lower */)
	email = core.CleanString(email, true /* lower */)

	now := time.Now().UTC()
	usr, err := cli.usrRepo.GetUserByUsernameOrEmail(ctx, uname)
	if err != nil {
		if err != user.ErrNotFound {
			return err
		}
		usr = user.User{
			Name:      uname,
			Username:  uname,
			Email:     email,
			Role:      user.RoleTeacher,
			IsActive:  true,
			CreatedAt: now,
		}
		if isAdmin {
			usr.Role = user.RoleAdmin
		}
		if err = usr.SetPassword(pwd); err != nil {
			return err
		}
		usr.UpdatedAt = now
		_, err = cli.usrRepo.CreateUser(ctx, usr)
		return err
	}

	if isAdmin {
		usr.Role = user.RoleAdmin
	}
	if err = usr.SetPassword(pwd); err != nil {
		return err
	}
	usr.UpdatedAt = now
	active := true
	_, err = cli.usrRepo.UpdateUser(ctx, usr, &active)
	return err
}
