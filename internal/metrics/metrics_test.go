package metrics

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersAndTextfile(t *testing.T) {
	before := testutil.ToFloat64(ConversionsTotal.WithLabelValues("gif", "success"))
	IncConversion("gif", "success")
	assert.Equal(t, before+1, testutil.ToFloat64(ConversionsTotal.WithLabelValues("gif", "success")))

	AddBytesSaved("local", -5)
	AddBytesSaved("local", 10)
	assert.GreaterOrEqual(t, testutil.ToFloat64(CompressionBytesSaved.WithLabelValues("local")), 10.0)

	path := filepath.Join(t.TempDir(), "framecast.prom")
	require.NoError(t, WriteTextfile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "framecast_conversions_total")
}
