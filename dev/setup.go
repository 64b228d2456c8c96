package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"

	devenv "stockharvest/dev/env"
	"stockharvest/internal/db"
)

func cmd(name string, args ...string) {
	cmd := exec.Command(name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	fullCmd := name
	for _, a := range args {
		fullCmd += " "
		fullCmd += a
	}

	fmt.Printf("$ %s\n", fullCmd)
	err := cmd.Run()
	if err != nil {
		os.Exit(1)
	}
}

func CreateLocalStack() error {
	err := os.Chdir("dev/local_stack")
	if err != nil {
		return err
	}
	cmd("docker", "compose", "up", "-d")
	return os.Chdir("../..")
}

func CreateStateDirs() error {
	for _, dir := range []string{"<dev_state>/downloads", "<dev_state>/screenshots"} {
		path, err := devenv.ResolvePath(dir)
		if err != nil {
			return err
		}
		err = os.MkdirAll(path, 0777)
		if err != nil {
			return err
		}
	}
	return nil
}

func CreateEmptyDB() error {
	config := db.Config{
		Driver: db.DriverSQLite,
		File:   "<dev_state>/stockharvest.db",
	}
	path, err := devenv.ResolvePath(config.File)
	if err != nil {
		return err
	}

	_, err = os.Stat(path)
	if err == nil {
		fmt.Println("database already created at", path)
		return nil
	}

	fmt.Println("creating database at", path)
	database, err := config.Open()
	if err != nil {
		return err
	}
	return database.Close()
}

func PrintConfigLocations(postgres bool) {
	slog.Info("copy stockharvest.json5 to stockharvest.local.json5 to override settings locally, STOCKHARVEST_* variables in .env are applied last.")
	if postgres {
		slog.Info("the local postgres listens on localhost:5432, set STOCKHARVEST_DB_DRIVER=postgres, STOCKHARVEST_DB_HOST=localhost and stockharvest as the user, name and password to use it.")
	}
}
