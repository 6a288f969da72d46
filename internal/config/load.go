package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// LoadOptions selects the sources Load reads.
type LoadOptions struct {
	// Path is an optional YAML or JSON config file.
	Path string
	// EnvFile is a dotenv file. The default ".env" may be missing; an
	// explicitly named file must exist.
	EnvFile string
	// LookupEnv reads the process environment; nil means os.LookupEnv.
	LookupEnv func(string) (string, bool)
}

const defaultEnvFile = ".env"

// Load builds the config from defaults, file, dotenv and environment.
func Load(opts LoadOptions) (*Config, error) {
	cfg := Default()

	if strings.TrimSpace(opts.Path) != "" {
		if err := parseFile(opts.Path, cfg); err != nil {
			return nil, fmt.Errorf("config %s: %w", opts.Path, err)
		}
	}

	dotenv, err := readDotenv(opts.EnvFile)
	if err != nil {
		return nil, err
	}

	lookup := opts.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	env := func(k string) (string, bool) {
		if v, ok := lookup(k); ok {
			return v, true
		}
		v, ok := dotenv[k]
		return v, ok
	}
	if err := applyEnv(cfg, env); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseFile decodes path over cfg. Unknown keys and trailing data are errors.
func parseFile(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	jb, err := fileJSON(path, b)
	if err != nil {
		return err
	}

	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return err
	}
	// reject trailing tokens (e.g. concatenated JSON)
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return fmt.Errorf("invalid config: trailing data")
		}
		return err
	}
	return nil
}

func readDotenv(path string) (map[string]string, error) {
	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		path = defaultEnvFile
	}
	m, err := godotenv.Read(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("env file %s: %w", path, err)
	}
	return m, nil
}
