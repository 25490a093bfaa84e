package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sethvargo/go-envconfig"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kon-rad/wuhistory/internal/config"
)

const envPrefix = "WUH_"

// fileLookuper resolves WUH_* keys from a config file, where WUH_DB_PATH is
// written as db_path.
type fileLookuper struct {
	v *viper.Viper
}

func (l fileLookuper) Lookup(key string) (string, bool) {
	k := strings.ToLower(strings.TrimPrefix(key, envPrefix))
	if !l.v.IsSet(k) {
		return "", false
	}
	return l.v.GetString(k), true
}

// readConfigFile loads path through viper. An empty path yields an empty
// configuration, as does a missing default file.
func readConfigFile(path string) (*viper.Viper, error) {
	v := viper.New()
	if path == "" {
		v.SetConfigName("wuhistory")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	} else {
		v.SetConfigFile(path)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &notFound) {
			return v, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	return v, nil
}

// flagOverrides returns the WUH_* values set explicitly on the command line.
func flagOverrides(cmd *cobra.Command) map[string]string {
	out := map[string]string{}
	set := func(flag, key, value string) {
		if f := cmd.Flags().Lookup(flag); f != nil && f.Changed {
			out[key] = value
		}
	}
	set("db", "WUH_DB_PATH", flagDBPath)
	set("log-level", "WUH_LOG_LEVEL", flagLogLevel)
	set("bonus", "WUH_BONUS_MODE", flagBonusMode)
	return out
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v, err := readConfigFile(flagConfigFile)
	if err != nil {
		return nil, err
	}
	l := envconfig.MultiLookuper(
		envconfig.MapLookuper(flagOverrides(cmd)),
		envconfig.OsLookuper(),
		fileLookuper{v: v},
	)
	return config.LoadFrom(cmd.Context(), l)
}
