package network

import (
	"context"
	"io"
	"net/http"
)

// ThrottledTransport wraps an http.RoundTripper so every response body read
// passes through a BandwidthManager before the caller sees the bytes,
// matching the teacher's BandwidthManager.Wait contract (priority-aware
// token-bucket throttling) without requiring task.Task to know about
// bandwidth management at all.
type ThrottledTransport struct {
	Base    http.RoundTripper
	Manager *BandwidthManager
	TaskID  func(*http.Request) string
}

// NewThrottledClient builds an *http.Client whose response bodies are
// throttled by bm. base's Transport (or http.DefaultTransport if nil) still
// performs the actual dial/TLS/request work.
func NewThrottledClient(base *http.Client, bm *BandwidthManager) *http.Client {
	transport := base.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	clone := *base
	clone.Transport = &ThrottledTransport{
		Base:    transport,
		Manager: bm,
		TaskID:  func(r *http.Request) string { return r.URL.Host },
	}
	return &clone
}

func (t *ThrottledTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.Base.RoundTrip(req)
	if err != nil || resp.Body == nil {
		return resp, err
	}
	taskID := req.URL.Host
	if t.TaskID != nil {
		taskID = t.TaskID(req)
	}
	resp.Body = &throttledBody{ReadCloser: resp.Body, ctx: req.Context(), manager: t.Manager, taskID: taskID}
	return resp, nil
}

type throttledBody struct {
	ReadCloser io.ReadCloser
	ctx        context.Context
	manager    *BandwidthManager
	taskID     string
}

func (b *throttledBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	if n > 0 {
		if waitErr := b.manager.Wait(b.ctx, b.taskID, n); waitErr != nil {
			return n, waitErr
		}
	}
	return n, err
}

func (b *throttledBody) Close() error {
	return b.ReadCloser.Close()
}
