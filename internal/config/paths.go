package config

import (
	"os"
	"path/filepath"
)

const homeEnv = "STABLEMEM_HOME"

type Paths struct {
	Home    string
	Config  string
	DataDir string
	LogDir  string
}

// Allow user to set app home through env variable
// otherwise default to ~/.local/share/stablemem

func ResolvePaths(homeOverride, configOverride string) (*Paths, error) {
	home := homeOverride
	if home == "" {
		home = os.Getenv(homeEnv)
	}

	if home == "" {
		userHome, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		home = filepath.Join(userHome, ".local", "share", "stablemem")
	}

	if err := os.MkdirAll(home, 0o755); err != nil {
		return nil, err
	}

	cfgPath := configOverride
	if cfgPath == "" {
		cfgPath = filepath.Join(home, "config.yaml")
	}

	return &Paths{
		Home:    home,
		Config:  cfgPath,
		DataDir: filepath.Join(home, "data"),
		LogDir:  filepath.Join(home, "log"),
	}, nil
}
