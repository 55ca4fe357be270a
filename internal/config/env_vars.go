package config

import (
	"os"
)

const (
	appNameVar    = "APP_NAME"
	appPrefixVar  = "APP_PREFIX"
	dataFolderVar = "FOLDER"
)

type EnvConfig interface {
	GetEnv() string
	GetAppName() string
	GetAppPrefix() string
	GetDataFolder() string
}

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "DEV"
	}
	return env
}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "MaintBoard")
}

// GetAppPrefix returns the prefix used for every persisted storage key.
func (EnvVars) GetAppPrefix() string {
	return GetEnv(appPrefixVar, "mb")
}

func (EnvVars) GetDataFolder() string {
	return GetEnv(dataFolderVar, "./data")
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}
