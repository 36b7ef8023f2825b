package configutil

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"github.com/joho/godotenv"
	"github.com/titanous/json5"
)

func splitExt(f string) (string, string) {
	for i := len(f) - 1; i >= 0; i-- {
		if f[i] == '.' {
			return f[0:i], f[i+1:]
		}
	}
	return f, ""
}

// LocalPath returns the path of the local override file for a given
// configuration file, `config.env` becomes `config.local.env`.
func LocalPath(name string) string {
	prefixname, ext := splitExt(filepath.Base(name))
	if ext == "" {
		return filepath.Join(filepath.Dir(name), prefixname+".local")
	}
	return filepath.Join(
		filepath.Dir(name),
		fmt.Sprintf("%s.local.%s", prefixname, ext),
	)
}

// read parses `name` and its local override with the given decoder and
// merges the override on top.
func read[T any](name string, decode func(contents []byte, out *T) error) (T, error) {
	var out T
	allNotFound := true

	defaultFile, err := os.ReadFile(name)
	if err != nil && !os.IsNotExist(err) {
		return out, err
	}
	if err == nil {
		err = decode(defaultFile, &out)
		if err != nil {
			return out, fmt.Errorf("parse %s: %w", name, err)
		}
		allNotFound = false
	}

	localFilepath := LocalPath(name)
	localFile, err := os.ReadFile(localFilepath)
	if err != nil && !os.IsNotExist(err) {
		return out, err
	}
	if err == nil {
		var override T
		err = decode(localFile, &override)
		if err != nil {
			return out, fmt.Errorf("parse %s: %w", localFilepath, err)
		}
		err = mergo.Merge(&out, override, mergo.WithOverride)
		if err != nil {
			return out, err
		}
		slog.Info("merging config with local overrides", "local", localFilepath)
		allNotFound = false
	}

	if allNotFound {
		return out, os.ErrNotExist
	}
	return out, nil
}

func decodeJson5[T any](contents []byte, out *T) error {
	if len(contents) == 0 {
		return nil
	}
	return json5.Unmarshal(contents, out)
}

func decodeEnv(contents []byte, out *map[string]string) error {
	parsed, err := godotenv.UnmarshalBytes(contents)
	if err != nil {
		return err
	}
	*out = parsed
	return nil
}

// reads a configuration file, `name` should come with a file extension,
// it will automatically be lopped off to produce the other extensions.
// this function will merge the following files, where higher number is more prioritized.
// 1. <name>.<ext>
// 2. <name>.local.<ext>
func ReadConfig[T any](name string) (T, error) {
	return read(name, decodeJson5[T])
}

// ReadEnv is ReadConfig for KEY=VALUE dotenv files, the result maps each key
// to its value with keys from the local file taking precedence.
func ReadEnv(name string) (map[string]string, error) {
	out, err := read(name, decodeEnv)
	if out == nil {
		out = map[string]string{}
	}
	return out, err
}

// ReadConfig but it recursively goes up the filesystem until the root
// to find a configuration file matching the name.
func ReadRecursively[T any](name string) (T, error) {
	var defaultOut T

	current, err := os.Getwd()
	if err != nil {
		return defaultOut, err
	}

	for {
		config, err := ReadConfig[T](filepath.Join(current, name))
		if err == nil {
			return config, nil
		}
		if !os.IsNotExist(err) {
			return defaultOut, err
		}

		parent := filepath.Dir(current)
		if parent == current {
			return defaultOut, os.ErrNotExist
		}
		current = parent
	}
}
