/*
 * Copyright (c) 2022. TxnLab Inc.
 * All Rights reserved.
 */

package misc

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/joho/godotenv"
)

// LoadEnvSettings loads .env.local then .env from the working directory.  Values already in the environment win.
func LoadEnvSettings(logger *slog.Logger) {
	for _, name := range []string{".env.local", ".env"} {
		loadIfPresent(logger, name)
	}
}

// LoadEnvForProfile loads .env.<profile> overrides, ie: .env.dev
func LoadEnvForProfile(logger *slog.Logger, profile string) {
	if profile == "" {
		return
	}
	loadIfPresent(logger, fmt.Sprintf(".env.%s", profile))
}

func loadIfPresent(logger *slog.Logger, name string) {
	err := godotenv.Load(name)
	if err == nil {
		Debugf(logger, "loaded env file:%s", name)
		return
	}
	if !errors.Is(err, fs.ErrNotExist) {
		Warnf(logger, "unable to load env file:%s, err:%v", name, err)
	}
}
