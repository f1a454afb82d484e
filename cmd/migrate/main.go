// Package main applies or rolls back the embedded schema migrations.
//
//	migrate up | down | version
package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/config"
	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/pkg/database"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintln(flag.CommandLine.Output(), "usage: migrate up|down|version")
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	mg, err := database.NewMigrator(cfg.Database.DSN())
	if err != nil {
		logger.Fatal("open migrator", zap.Error(err))
	}
	defer mg.Close()

	switch cmd := flag.Arg(0); cmd {
	case "up":
		err = mg.Up()
	case "down":
		err = mg.Down()
	case "version":
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		logger.Fatal("migration failed", zap.String("command", flag.Arg(0)), zap.Error(err))
	}

	v, dirty, err := mg.Version()
	if err != nil {
		logger.Fatal("read version", zap.Error(err))
	}
	logger.Info("schema version", zap.Uint("version", v), zap.Bool("dirty", dirty))
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
