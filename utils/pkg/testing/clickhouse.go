package rakuraitesting

import (
	"testing"

	"github.com/rakurai-io/rakurai/distributor/pkg/clickhouse"
	clickhousetesting "github.com/rakurai-io/rakurai/distributor/pkg/clickhouse/testing"
	"github.com/stretchr/testify/require"
)

// ClientInfo holds a migrated test client and its database name.
type ClientInfo struct {
	Client   clickhouse.Client
	Database string
}

func NewClient(t *testing.T, db *clickhousetesting.DB) clickhouse.Client {
	return NewClientWithInfo(t, db).Client
}

// NewClientWithInfo creates an isolated database with all migrations applied.
func NewClientWithInfo(t *testing.T, db *clickhousetesting.DB) *ClientInfo {
	t.Helper()

	client, name := clickhousetesting.NewTestClient(t, db)
	require.NoError(t, clickhouse.Up(t.Context(), NewLogger(), db.Config(name)))

	return &ClientInfo{Client: client, Database: name}
}
