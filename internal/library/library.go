// Package library serves the SQL templates kept on disk as <sql_dir>/<brand>/<file>.sql.
package library

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var (
	// ErrNotFound is returned for a missing brand or file.
	ErrNotFound = errors.New("not found")
	// ErrInvalidName is returned for names that would escape the library root.
	ErrInvalidName = errors.New("invalid name")
)

// Library reads and updates templates under a root directory.
type Library struct {
	root string
}

// New returns a library rooted at dir.
func New(dir string) *Library {
	return &Library{root: dir}
}

// Root returns the library directory.
func (l *Library) Root() string { return l.root }

// Brands lists the brand directories, sorted.
func (l *Library) Brands() ([]string, error) {
	entries, err := os.ReadDir(l.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("read sql dir: %w", err)
	}
	brands := []string{}
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			brands = append(brands, e.Name())
		}
	}
	sort.Strings(brands)
	return brands, nil
}

// Files lists the .sql files of a brand, sorted.
func (l *Library) Files(brand string) ([]string, error) {
	dir, err := l.brandDir(brand)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("brand %q: %w", brand, ErrNotFound)
		}
		return nil, fmt.Errorf("read brand dir: %w", err)
	}
	files := []string{}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// Content returns the raw template text.
func (l *Library) Content(brand, file string) (string, error) {
	path, err := l.filePath(brand, file)
	if err != nil {
		return "", err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("sql file %s/%s: %w", brand, file, ErrNotFound)
		}
		return "", fmt.Errorf("read sql file: %w", err)
	}
	return string(raw), nil
}

// Save overwrites an existing template. New files cannot be created this way.
func (l *Library) Save(brand, file, content string) error {
	path, err := l.filePath(brand, file)
	if err != nil {
		return err
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("sql file %s/%s (cannot create new files): %w", brand, file, ErrNotFound)
		}
		return fmt.Errorf("stat sql file: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), info.Mode().Perm()); err != nil {
		return fmt.Errorf("write sql file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace sql file: %w", err)
	}
	return nil
}

func (l *Library) brandDir(brand string) (string, error) {
	if err := checkName(brand); err != nil {
		return "", err
	}
	return filepath.Join(l.root, brand), nil
}

func (l *Library) filePath(brand, file string) (string, error) {
	dir, err := l.brandDir(brand)
	if err != nil {
		return "", err
	}
	if err := checkName(file); err != nil {
		return "", err
	}
	return filepath.Join(dir, file), nil
}

func checkName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return fmt.Errorf("%q: %w", name, ErrInvalidName)
	}
	return nil
}
