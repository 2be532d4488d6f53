// Command critique administers the SQLite database behind the critique
// service: schema creation, bulk loading, fixtures and migrations.
//
//	critique init --db critique.db
//	critique load --schema schema.sql --data dump.sql
//	critique fixtures testdata/fixtures.yaml
//	critique migrate up
package main

import (
	"os"

	"github.com/Skryldev/critique/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
