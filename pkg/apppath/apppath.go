package apppath

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	// Prefix is replaced by the application data directory in ResolvePath.
	Prefix  = "<app>"
	dirName = "application"
)

// Root returns the directory the application lives in: the directory of the
// executable, or the working directory when running out of a temporary build
// (go run, go test).
func Root() (string, error) {
	exe, err := os.Executable()
	if err == nil {
		exe, err = filepath.EvalSymlinks(exe)
	}
	if err != nil {
		return os.Getwd()
	}

	dir := filepath.Dir(exe)
	tmp, _ := filepath.EvalSymlinks(os.TempDir())
	if tmp != "" && strings.HasPrefix(dir, tmp) {
		return os.Getwd()
	}
	return dir, nil
}

// DataDir returns the application data directory, creating it if necessary.
func DataDir() (string, error) {
	root, err := Root()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(root, dirName)
	err = os.MkdirAll(dir, 0777)
	if err != nil {
		return "", err
	}
	return dir, nil
}

// ResolvePath expands a leading "<app>" into the application data directory,
// any other path is returned unchanged.
func ResolvePath(path string) (string, error) {
	if !strings.HasPrefix(path, Prefix) {
		return path, nil
	}
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	subpath := strings.TrimLeft(strings.TrimPrefix(path, Prefix), `/\`)
	return filepath.Join(dir, filepath.FromSlash(subpath)), nil
}
