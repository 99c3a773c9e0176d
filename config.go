package main

import (
	"errors"
	"os/user"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/xerrors"
)

const appName = "gmifetch"

// currentUser looks up the passwd entry used when HOME is unset.
var currentUser = user.Current

// NewConfig binds the CGI environment, the command line flags and an
// optional config file in the gmifetch config directory.
func NewConfig(fs afero.Fs, flags *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetFs(fs)

	v.BindEnv("known_hosts", "GMIFETCH_KNOWN_HOSTS")
	v.BindEnv("log_level", "GMIFETCH_LOG_LEVEL")
	v.BindEnv("xdg_config_home", "XDG_CONFIG_HOME")
	v.BindEnv("home", "HOME")
	v.BindEnv("all_proxy", "ALL_PROXY")
	v.BindEnv("request_method", "REQUEST_METHOD")
	v.BindEnv("query_string", "QUERY_STRING")
	v.SetDefault("log_level", "warn")

	if flags != nil {
		if f := flags.Lookup("known-hosts"); f != nil {
			v.BindPFlag("known_hosts", f)
		}
		if f := flags.Lookup("log-level"); f != nil {
			v.BindPFlag("log_level", f)
		}
	}

	if dir := configDir(v); dir != "" {
		v.SetConfigName("config")
		v.AddConfigPath(dir)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, xerrors.Errorf("reading config: %v: %w", err, ErrConfig)
			}
		}
	}
	return v, nil
}

// configDir is $XDG_CONFIG_HOME/gmifetch, falling back to
// $HOME/.config/gmifetch and then to the passwd home directory.
func configDir(v *viper.Viper) string {
	if xdg := v.GetString("xdg_config_home"); xdg != "" {
		return filepath.Join(xdg, appName)
	}
	home := v.GetString("home")
	if home == "" {
		if u, err := currentUser(); err == nil {
			home = u.HomeDir
		}
	}
	if home == "" {
		return ""
	}
	return filepath.Join(home, ".config", appName)
}

// KnownHostsPath resolves the known_hosts file: the explicit override,
// else known_hosts in the config directory.
func KnownHostsPath(v *viper.Viper) (string, error) {
	if p := v.GetString("known_hosts"); p != "" {
		return p, nil
	}
	dir := configDir(v)
	if dir == "" {
		return "", xerrors.Errorf("failed to get HOME directory: %w", ErrConfig)
	}
	return filepath.Join(dir, "known_hosts"), nil
}
