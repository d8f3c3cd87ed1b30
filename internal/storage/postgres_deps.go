//go:build postgres

package storage

// Blank imports pinning pgx transitive dependencies so module tidying keeps
// them resolvable for postgres-tagged integration environments.
import (
	_ "github.com/jackc/pgpassfile"
	_ "github.com/jackc/pgservicefile"
	_ "golang.org/x/text/transform"
)
