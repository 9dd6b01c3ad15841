// Package config loads the construction-time parameters that configure a
// Store: page size, B-tree minimum degree, and cache capacity (spec.md §6,
// "Configured constants").
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"bkv/internal/pager"
)

// Config is the on-disk, user-editable form of Options. Path is the
// database file path; the rest mirror the pager/B-tree construction
// parameters.
type Config struct {
	Path          string `yaml:"path"`
	PageSize      int    `yaml:"page_size"`
	MinDegree     int    `yaml:"min_degree"`
	CacheCapacity int    `yaml:"cache_capacity"`
}

// Defaults returns the spec's default configuration for a database at path.
func Defaults(path string) Config {
	return Config{
		Path:          path,
		PageSize:      pager.DefaultPageSize,
		MinDegree:     pager.DefaultMinDegree,
		CacheCapacity: pager.DefaultCacheCapacity,
	}
}

// Load reads and parses a YAML config file, filling in defaults for
// page_size, min_degree and cache_capacity when left at zero. path has no
// default.
func Load(configPath string) (Config, error) {
	raw, err := os.ReadFile(configPath)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", configPath, err)
	}
	var c Config
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", configPath, err)
	}
	if c.PageSize == 0 {
		c.PageSize = pager.DefaultPageSize
	}
	if c.MinDegree == 0 {
		c.MinDegree = pager.DefaultMinDegree
	}
	if c.CacheCapacity == 0 {
		c.CacheCapacity = pager.DefaultCacheCapacity
	}
	return c, c.Validate()
}

// Validate rejects configurations the pager can't honor: a page size too
// small to hold even a bare header, a degree below 2, or attempting to
// reopen an existing file with a different page size than it was created
// with (spec.md §6: "changing P in an existing file is not supported").
func (c Config) Validate() error {
	if c.PageSize <= pager.PageHeaderSize {
		return fmt.Errorf("config: page_size %d too small (header alone needs %d bytes)", c.PageSize, pager.PageHeaderSize)
	}
	if c.MinDegree < 2 {
		return fmt.Errorf("config: min_degree %d must be >= 2", c.MinDegree)
	}
	if c.CacheCapacity < 1 {
		return fmt.Errorf("config: cache_capacity %d must be >= 1", c.CacheCapacity)
	}

	fi, err := os.Stat(c.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config: stat %s: %w", c.Path, err)
	}
	if fi.Size() < pager.DBHeaderSize {
		return nil
	}

	f, err := os.Open(c.Path)
	if err != nil {
		return fmt.Errorf("config: open %s: %w", c.Path, err)
	}
	defer f.Close()

	buf := make([]byte, pager.DBHeaderSize)
	if _, err := f.ReadAt(buf, 0); err != nil {
		return fmt.Errorf("config: read header page of %s: %w", c.Path, err)
	}
	existing := pager.UnmarshalDBHeader(buf)
	if existing.PageSize != 0 && existing.PageSize != int64(c.PageSize) {
		return fmt.Errorf("config: %s was created with page_size %d, cannot reopen with %d", c.Path, existing.PageSize, c.PageSize)
	}
	return nil
}
