/*
 * Copyright (c) 2022. TxnLab Inc.
 * All Rights reserved.
 */
package misc

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// GetSetting returns the named environment value or def if unset.
func GetSetting(key, def string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return def
}

// SetUintFromEnv overwrites val with the parsed value of envName, if set.
func SetUintFromEnv(val *uint64, envName string) error {
	if strVal := os.Getenv(envName); strVal != "" {
		intVal, err := strconv.ParseUint(strVal, 10, 64)
		if err != nil {
			return fmt.Errorf("env %s: %w", envName, err)
		}
		*val = intVal
	}
	return nil
}

// SetDurationFromEnv overwrites val with the parsed duration of envName, if set.
func SetDurationFromEnv(val *time.Duration, envName string) error {
	if strVal := os.Getenv(envName); strVal != "" {
		dur, err := time.ParseDuration(strVal)
		if err != nil {
			return fmt.Errorf("env %s: %w", envName, err)
		}
		*val = dur
	}
	return nil
}
