package main

import (
	"github.com/nextcentury/backend/storage/database"
)

var migrateFunc = database.MigrateCommand // mockable

func (cli *commandLine) migrate(args []string) error {
	command := "up"
	var commandArgs []string
	if len(args) > 0 {
		command = args[0]
		commandArgs = args[1:]
	}
	return migrateFunc(cli.db, command, commandArgs...)
}
