package main

import (
	"log"
	"os"
	"strings"
	"time"

	"github.com/cedar-tools/scriptrun/cmd"
	"github.com/cedar-tools/scriptrun/util"
	"github.com/getsentry/sentry-go"
)

var Version string
var Buildtime string
var Commit string

func main() {
	err := setupSentry()
	if err != nil {
		log.Fatalf("sentry init failed: %s", err)
	}

	appVersion := "local"
	if Version != "" {
		appVersion = Version
	}

	appBuildtime, _ := time.Parse(time.RFC3339, Buildtime)

	code := cmd.Execute(cmd.ExecuteParams{
		Version:  appVersion,
		Compiled: appBuildtime,
	})

	flushSentry()

	os.Exit(code)
}

func setupSentry() error {
	dsn := os.Getenv("SENTRY_DSN")
	if dsn == "" {
		return nil
	}

	environment := os.Getenv("SENTRY_ENVIRONMENT")
	if environment == "" {
		environment = "local"
	}

	var debug bool
	sentryDebug := strings.ToLower(os.Getenv("SENTRY_DEBUG"))
	if util.Truthy(sentryDebug) {
		debug = true
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Debug:       debug,
		Environment: environment,
		Release:     Commit,
	})
	if err != nil {
		return err
	}

	sentry.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("app", "scriptrun")
	})

	return nil
}

// flushSentry sends buffered events before the program terminates.
func flushSentry() {
	sentry.Flush(2 * time.Second)
}
