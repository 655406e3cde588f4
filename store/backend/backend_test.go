package backend_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"

	"github.com/xraph/fulfill/store/backend"
	"github.com/xraph/fulfill/store/memory"
	"github.com/xraph/fulfill/store/sqlite"
)

func TestOpen(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		cfg     backend.Config
		wantErr string
	}{
		{name: "empty driver is memory", cfg: backend.Config{}},
		{name: "memory alias", cfg: backend.Config{Driver: "MEM"}},
		{name: "sqlite", cfg: backend.Config{Driver: "sqlite3", DSN: "file:" + filepath.Join(t.TempDir(), "f.db"), PoolSize: 1}},
		{name: "unknown driver", cfg: backend.Config{Driver: "oracle"}, wantErr: `unknown driver "oracle"`},
		{name: "mongo without database", cfg: backend.Config{Driver: "mongodb", DSN: "mongodb://localhost"}, wantErr: "requires a database"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := backend.Open(ctx, tt.cfg)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			defer s.Close()
			require.NoError(t, s.Migrate(ctx))
			assert.NoError(t, s.Ping(ctx))
		})
	}
}

func TestOpenSelectsStoreType(t *testing.T) {
	ctx := context.Background()

	s, err := backend.Open(ctx, backend.Config{Driver: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &memory.Store{}, s)

	s, err = backend.Open(ctx, backend.Config{Driver: "sqlite", DSN: "file:" + filepath.Join(t.TempDir(), "f.db")})
	require.NoError(t, err)
	defer s.Close()
	assert.IsType(t, &sqlite.Store{}, s)
}

func TestFromGrove(t *testing.T) {
	ctx := context.Background()

	drv := sqlitedriver.New()
	require.NoError(t, drv.Open(ctx, "file:"+filepath.Join(t.TempDir(), "f.db")))
	db, err := grove.Open(drv)
	require.NoError(t, err)

	s, err := backend.FromGrove(db)
	require.NoError(t, err)
	defer s.Close()
	assert.IsType(t, &sqlite.Store{}, s)
	require.NoError(t, s.Migrate(ctx))
}
