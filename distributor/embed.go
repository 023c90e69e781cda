// Package distributor holds assets embedded into the distributor service.
package distributor

import "embed"

//go:embed db/clickhouse/migrations/*.sql
var ClickHouseMigrationsFS embed.FS
