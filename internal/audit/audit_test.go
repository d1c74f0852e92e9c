package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenMigratesAndLogsEvents(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "audit.db")

	db, err := Open(dbPath)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)

	require.NoError(t, db.Log(ctx, now, "listdetector", KindRuleReload, "applied 12 rules"))
	require.NoError(t, db.Log(ctx, now.Add(time.Second), "chsink", KindEndpointRotate, "rotated to backup DSN"))

	events, err := db.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, string(KindEndpointRotate), events[0].Kind, "Recent orders newest-first")

	byKind, err := db.ByKind(ctx, KindRuleReload, 10)
	require.NoError(t, err)
	require.Len(t, byKind, 1)
	assert.Equal(t, "listdetector", byKind[0].Driver)
}
