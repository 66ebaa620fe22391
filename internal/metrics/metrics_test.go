package metrics

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServer_Endpoints(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := NewServer("", zerolog.Nop())
	srv.SetListener(ln)
	require.NoError(t, srv.Start())
	t.Cleanup(func() { _ = srv.Stop(context.Background()) })

	SecondsCredited.WithLabelValues(SourceHeartbeat).Add(60)

	base := "http://" + ln.Addr().String()

	resp, err := http.Get(base + "/health")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(body))

	resp, err = http.Get(base + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "playtime_seconds_credited_total")
}

func TestCountersAccumulate(t *testing.T) {
	before := testutil.ToFloat64(PresenceTransitions.WithLabelValues(KindSwitch))
	PresenceTransitions.WithLabelValues(KindSwitch).Inc()
	PresenceTransitions.WithLabelValues(KindSwitch).Inc()
	assert.Equal(t, before+2, testutil.ToFloat64(PresenceTransitions.WithLabelValues(KindSwitch)))
}
