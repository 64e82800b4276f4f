// Package testutil provides shared helpers for package tests.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/spf13/viper"

	"github.com/mkoskinen/librarian/internal/cache"
	"github.com/mkoskinen/librarian/internal/config"
)

// ConfigState holds the config package variables a test may clobber.
type ConfigState struct {
	DBFile           string
	CoversDir        string
	ReplaceBadCovers bool
	AutoApprove      bool
}

// SaveConfigState captures the current config package variables.
func SaveConfigState() ConfigState {
	return ConfigState{
		DBFile:           config.DBFile,
		CoversDir:        config.CoversDir,
		ReplaceBadCovers: config.ReplaceBadCovers,
		AutoApprove:      config.AutoApprove,
	}
}

// RestoreConfigState restores saved config package variables.
func RestoreConfigState(state ConfigState) {
	config.DBFile = state.DBFile
	config.CoversDir = state.CoversDir
	config.ReplaceBadCovers = state.ReplaceBadCovers
	config.AutoApprove = state.AutoApprove
}

// ResetConfig resets viper and the config package for the duration of a
// test, restoring both on cleanup.
func ResetConfig(t *testing.T) {
	t.Helper()

	state := SaveConfigState()
	viper.Reset()

	t.Cleanup(func() {
		RestoreConfigState(state)
		viper.Reset()
	})
}

// WithTestCache points the global provider cache at a throwaway sqlite
// file and resets the singleton on both setup and cleanup, so tests
// never share cache state.
func WithTestCache(t *testing.T) {
	t.Helper()

	if err := cache.ResetGlobalCache(); err != nil {
		t.Fatalf("resetting global cache: %v", err)
	}
	viper.Set("cache.dbfile", filepath.Join(t.TempDir(), "cache.db"))

	t.Cleanup(func() {
		_ = cache.ResetGlobalCache()
		viper.Set("cache.dbfile", "")
	})
}
