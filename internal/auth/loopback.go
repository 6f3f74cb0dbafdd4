package auth

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"mc-launcher-engine/internal/apperr"
)

// RedirectResult is the (code, state) pair received on the OAuth redirect.
type RedirectResult struct {
	Code  string
	State string
}

// LoopbackReceiver implements C6: it binds an ephemeral loopback TCP port
// (preferring 7878, scanning upward per spec.md §4.5 step 1) and serves
// exactly one HTTP GET on /api/auth/redirect. Grounded on
// original_source/mc_launcher_core/src/account.rs's listen() — the warp
// route there is reimplemented as a minimal net/http ServeMux server,
// per spec.md §9's "Single-shot HTTP listener" design note.
type LoopbackReceiver struct {
	listener net.Listener
	Port     int
}

// ReservePort binds the first free loopback port starting at 7878, per
// spec.md §4.5 step 1. The listener is held open by the receiver from
// probe time through Serve, avoiding the port-race spec.md §9 calls out.
func ReservePort() (*LoopbackReceiver, error) {
	for port := 7878; port < 65535; port++ {
		l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err == nil {
			return &LoopbackReceiver{listener: l, Port: port}, nil
		}
	}
	return nil, apperr.New(apperr.NoFreePort, "auth.ReservePort", "no free loopback port found")
}

// Close releases the listener without serving, used on abort before Serve
// was ever called.
func (r *LoopbackReceiver) Close() error {
	return r.listener.Close()
}

// Serve accepts exactly one GET /api/auth/redirect, with a 120s timeout
// (spec.md §4.5 step 3 / §4.6). Non-empty code and state query parameters
// are required; on success they are returned and the listener is closed.
// The response HTML is localized from Accept-Language (spec.md §4.6).
func (r *LoopbackReceiver) Serve(ctx context.Context) (RedirectResult, error) {
	defer r.listener.Close()

	resultCh := make(chan RedirectResult, 1)
	errCh := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/redirect", func(w http.ResponseWriter, req *http.Request) {
		code := req.URL.Query().Get("code")
		state := req.URL.Query().Get("state")

		w.Header().Set("Content-Type", "text/html; charset=UTF-8")
		w.Header().Set("Connection", "close")

		if code == "" || state == "" {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, "<h1>Missing code or state.</h1>")
			select {
			case errCh <- apperr.New(apperr.Transport, "auth.LoopbackReceiver.Serve", "missing code or state"):
			default:
			}
			return
		}

		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "<h1>%s</h1>", redirectMessage(req.Header.Get("Accept-Language")))

		select {
		case resultCh <- RedirectResult{Code: code, State: state}:
		default:
		}
	})

	srv := &http.Server{Handler: mux}
	go srv.Serve(r.listener)
	defer srv.Close()

	timeout := time.NewTimer(120 * time.Second)
	defer timeout.Stop()

	select {
	case res := <-resultCh:
		return res, nil
	case err := <-errCh:
		return RedirectResult{}, err
	case <-timeout.C:
		return RedirectResult{}, apperr.New(apperr.RedirectTimeout, "auth.LoopbackReceiver.Serve", "timed out waiting for oauth redirect")
	case <-ctx.Done():
		return RedirectResult{}, apperr.Wrap(apperr.Aborted, "auth.LoopbackReceiver.Serve", ctx.Err())
	}
}

// redirectMessage localizes the human-readable page shown after redirect
// capture: zh* -> Chinese, en*/default -> English (spec.md §4.6).
func redirectMessage(acceptLanguage string) string {
	for _, lang := range strings.Split(acceptLanguage, ",") {
		lang = strings.TrimSpace(lang)
		switch {
		case strings.HasPrefix(lang, "zh"):
			return "您现在可以关闭这个标签页了！"
		case strings.HasPrefix(lang, "en"):
			return "You can close this tab now!"
		}
	}
	return "You can close this tab now!"
}
