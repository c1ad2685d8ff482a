package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weiawesome/wes-io-watchparty/pkg/log"
)

func TestLogWritesAuditFields(t *testing.T) {
	var buf bytes.Buffer
	ctx := log.WithLogger(context.Background(), zerolog.New(&buf))

	LogWithDetail(ctx, ActionCloseParty, "alice", "ABCDEF", "watch party closed")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "audit", entry["log_type"])
	assert.Equal(t, "party.close", entry["action"])
	assert.Equal(t, "alice", entry["username"])
	assert.Equal(t, "ABCDEF", entry["detail"])
	assert.Equal(t, "watch party closed", entry["message"])
}
