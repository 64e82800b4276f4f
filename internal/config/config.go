// Package config holds the viper-backed global configuration snapshot.
package config

import (
	"github.com/spf13/viper"
)

// Global configuration variables
var (
	// DBFile is the path to the catalog SQLite database.
	DBFile string
	// CoversDir is the directory where accepted cover images are saved.
	CoversDir string
	// ReplaceBadCovers enables re-validation and replacement of existing
	// covers that fail the validator.
	ReplaceBadCovers bool
	// AutoApprove skips the pending-approval queue and applies every
	// accepted candidate directly. Off by default.
	AutoApprove bool
)

// InitConfig initializes the global configuration from viper.
func InitConfig() {
	viper.SetDefault("dbfile", "./librarian.db")
	viper.SetDefault("covers.dir", "./covers/")
	viper.SetDefault("enrich.batchsize", 50)
	viper.SetDefault("enrich.cursorfile", "./enrich-progress.json")
	viper.SetDefault("enrich.replacebad", false)
	viper.SetDefault("approvals.file", "./pending-approvals.yaml")

	DBFile = viper.GetString("dbfile")
	CoversDir = viper.GetString("covers.dir")
	ReplaceBadCovers = viper.GetBool("enrich.replacebad")
	AutoApprove = viper.GetBool("enrich.autoapprove")
}

// SetDBFile overrides the catalog database path (CLI flag).
func SetDBFile(path string) {
	DBFile = path
}

// SetReplaceBadCovers sets the replace-known-bad mode flag.
func SetReplaceBadCovers(replace bool) {
	ReplaceBadCovers = replace
}
