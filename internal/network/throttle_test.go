package network

import (
	"bytes"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeRoundTripper struct {
	body string
}

func (f *fakeRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(bytes.NewReader([]byte(f.body))),
		Request:    req,
	}, nil
}

func TestThrottledClientPassesBodyThroughUnlimited(t *testing.T) {
	base := &http.Client{Transport: &fakeRoundTripper{body: "hello world"}}
	bm := NewBandwidthManager() // limit disabled: Wait is a no-op fast path

	client := NewThrottledClient(base, bm)
	resp, err := client.Get("https://example.test/file")
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, "hello world", string(data))
}

func TestThrottledClientAppliesLowPriorityDelay(t *testing.T) {
	base := &http.Client{Transport: &fakeRoundTripper{body: "x"}}
	bm := NewBandwidthManager()
	bm.SetLimit(1 << 20) // enable the limiter so priority lookups matter
	bm.SetTaskPriority("example.test", 1)

	client := NewThrottledClient(base, bm)
	resp, err := client.Get("https://example.test/file")
	require.NoError(t, err)
	defer resp.Body.Close()

	start := time.Now()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, "x", string(data))
	require.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}

func TestThrottledClientLeavesDefaultTransportWhenBaseHasNone(t *testing.T) {
	bm := NewBandwidthManager()
	client := NewThrottledClient(&http.Client{}, bm)

	transport, ok := client.Transport.(*ThrottledTransport)
	require.True(t, ok)
	require.Equal(t, http.DefaultTransport, transport.Base)
}
