package auth

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/browser"

	"mc-launcher-engine/internal/apperr"
)

// Upstream endpoints (spec.md §6).
const (
	defaultClientID  = "ec20f5c7-5a39-4beb-8844-f0b8df3a0502"
	authorizeURL     = "https://login.live.com/oauth20_authorize.srf"
	msTokenURL       = "https://login.live.com/oauth20_token.srf"
	xblAuthURL       = "https://user.auth.xboxlive.com/user/authenticate"
	xstsAuthURL      = "https://xsts.auth.xboxlive.com/xsts/authorize"
	mcLoginURL       = "https://api.minecraftservices.com/authentication/login_with_xbox"
	mcEntitlementURL = "https://api.minecraftservices.com/entitlements/mcstore"
	mcProfileURL     = "https://api.minecraftservices.com/minecraft/profile"
)

// State names the AuthFlow state machine position (spec.md §4.5).
type State string

const (
	StateIdle             State = "idle"
	StateWaitingRedirect  State = "waiting_redirect"
	StateCodeReceived     State = "code_received"
	StateMSTokenObtained  State = "ms_token_obtained"
	StateXBLObtained      State = "xbl_obtained"
	StateXSTSObtained     State = "xsts_obtained"
	StateMCTokenObtained  State = "mc_token_obtained"
	StateProfileFetched   State = "profile_fetched"
	StateDone             State = "done"
	StateFailed           State = "failed"
	StateAborted          State = "aborted"
)

// HTTPClient is the transport AuthFlow issues requests over.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// AuthFlow drives C5: the five-step Microsoft -> Xbox Live -> XSTS ->
// Minecraft token exchange, plus the refresh flow. Grounded on
// original_source/mc_launcher_core/src/account.rs's oauth2_login/
// get_access_token/refresh.
type AuthFlow struct {
	Client   HTTPClient
	ClientID string
	State    State
}

func NewAuthFlow(client HTTPClient, clientID string) *AuthFlow {
	if clientID == "" {
		clientID = defaultClientID
	}
	return &AuthFlow{Client: client, ClientID: clientID, State: StateIdle}
}

// OpenBrowser is swapped out in tests; defaults to the real system browser.
var OpenBrowser = browser.OpenURL

// Login drives the full login chain (spec.md §4.5 steps 1-9). The returned
// AccountInfo has IsValid set true only on full success; any error
// discards partial state, per spec.md §7's AuthFlow short-circuit policy.
func (f *AuthFlow) Login(ctx context.Context) (AccountInfo, error) {
	f.State = StateIdle

	state, err := randomAlphanumeric(16)
	if err != nil {
		return AccountInfo{}, apperr.Wrap(apperr.Transport, "auth.Login", err)
	}

	receiver, err := ReservePort()
	if err != nil {
		return AccountInfo{}, apperr.Wrap(apperr.NoFreePort, "auth.Login", err)
	}

	redirectURI := fmt.Sprintf("http://localhost:%d/api/auth/redirect", receiver.Port)
	authURL := fmt.Sprintf("%s?client_id=%s&response_type=code&redirect_uri=%s&scope=%s&state=%s",
		authorizeURL, f.ClientID, url.QueryEscape(redirectURI),
		url.QueryEscape("Xboxlive.signin Xboxlive.offline_access"), state)

	if err := OpenBrowser(authURL); err != nil {
		receiver.Close()
		return AccountInfo{}, apperr.Wrap(apperr.Transport, "auth.Login", err)
	}

	f.State = StateWaitingRedirect
	redirect, err := receiver.Serve(ctx)
	if err != nil {
		return AccountInfo{}, err
	}
	f.State = StateCodeReceived

	if redirect.State != state {
		return AccountInfo{}, apperr.New(apperr.CsrfMismatch, "auth.Login", "redirect state does not match generated state")
	}

	msAccess, msRefresh, err := f.exchangeCode(ctx, redirect.Code, redirectURI)
	if err != nil {
		return AccountInfo{}, err
	}
	f.State = StateMSTokenObtained

	mcAccess, err := f.exchangeForMinecraftToken(ctx, msAccess)
	if err != nil {
		return AccountInfo{}, err
	}
	f.State = StateMCTokenObtained

	if err := f.verifyOwnership(ctx, mcAccess); err != nil {
		return AccountInfo{}, err
	}

	uuid, name, err := f.fetchProfile(ctx, mcAccess)
	if err != nil {
		return AccountInfo{}, err
	}
	f.State = StateProfileFetched

	f.State = StateDone
	return AccountInfo{
		UUID:            uuid,
		Name:            name,
		RefreshToken:    msRefresh,
		AccessToken:     mcAccess,
		LastRefreshUnix: time.Now().Unix(),
		IsValid:         true,
	}, nil
}

// Refresh implements spec.md §4.5's refresh flow: skip steps 1-4, exchange
// the stored ms_refresh token, then repeat steps 5-7. Profile and
// entitlement fetch are not repeated.
func (f *AuthFlow) Refresh(ctx context.Context, info AccountInfo) (AccountInfo, error) {
	if !info.IsValid {
		return AccountInfo{}, apperr.New(apperr.NotLoggedIn, "auth.Refresh", "account has no valid session to refresh")
	}

	form := url.Values{
		"client_id":     {f.ClientID},
		"refresh_token": {info.RefreshToken},
		"grant_type":    {"refresh_token"},
	}
	var tokenResp struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := f.postForm(ctx, msTokenURL, form, &tokenResp); err != nil {
		return AccountInfo{}, err
	}

	mcAccess, err := f.exchangeForMinecraftToken(ctx, tokenResp.AccessToken)
	if err != nil {
		return AccountInfo{}, err
	}

	updated := info
	updated.RefreshToken = tokenResp.RefreshToken
	updated.AccessToken = mcAccess
	updated.LastRefreshUnix = time.Now().Unix()
	return updated, nil
}

func (f *AuthFlow) exchangeCode(ctx context.Context, code, redirectURI string) (msAccess, msRefresh string, err error) {
	form := url.Values{
		"client_id":    {f.ClientID},
		"code":         {code},
		"grant_type":   {"authorization_code"},
		"redirect_uri": {redirectURI},
	}
	var tokenResp struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := f.postForm(ctx, msTokenURL, form, &tokenResp); err != nil {
		return "", "", err
	}
	return tokenResp.AccessToken, tokenResp.RefreshToken, nil
}

// exchangeForMinecraftToken implements spec.md §4.5 steps 5-7: XBL
// authenticate, XSTS authorize, then the Minecraft login_with_xbox call.
func (f *AuthFlow) exchangeForMinecraftToken(ctx context.Context, msAccessToken string) (string, error) {
	xblPayload := map[string]any{
		"Properties": map[string]any{
			"AuthMethod": "RPS",
			"SiteName":   "user.auth.xboxlive.com",
			"RpsTicket":  fmt.Sprintf("d=%s", msAccessToken),
		},
		"RelyingParty": "http://auth.xboxlive.com",
		"TokenType":    "JWT",
	}
	var xblResp struct {
		Token         string `json:"Token"`
		DisplayClaims struct {
			Xui []struct {
				UHS string `json:"uhs"`
			} `json:"xui"`
		} `json:"DisplayClaims"`
	}
	if err := f.postJSON(ctx, xblAuthURL, xblPayload, &xblResp); err != nil {
		return "", err
	}
	if len(xblResp.DisplayClaims.Xui) == 0 {
		return "", apperr.New(apperr.Parse, "auth.exchangeForMinecraftToken", "xbl response missing user hash")
	}
	userHash := xblResp.DisplayClaims.Xui[0].UHS

	xstsPayload := map[string]any{
		"Properties": map[string]any{
			"SandboxId":  "RETAIL",
			"UserTokens": []string{xblResp.Token},
		},
		"RelyingParty": "rp://api.minecraftservices.com/",
		"TokenType":    "JWT",
	}
	var xstsResp struct {
		Token string `json:"Token"`
	}
	if err := f.postJSON(ctx, xstsAuthURL, xstsPayload, &xstsResp); err != nil {
		return "", err
	}

	mcPayload := map[string]any{
		"identityToken": fmt.Sprintf("XBL3.0 x=%s;%s", userHash, xstsResp.Token),
	}
	var mcResp struct {
		AccessToken string `json:"access_token"`
	}
	if err := f.postJSON(ctx, mcLoginURL, mcPayload, &mcResp); err != nil {
		return "", err
	}
	return mcResp.AccessToken, nil
}

// verifyOwnership implements spec.md §4.5 step 8.
func (f *AuthFlow) verifyOwnership(ctx context.Context, mcAccessToken string) error {
	var resp struct {
		Items []json.RawMessage `json:"items"`
	}
	if err := f.getAuthorized(ctx, mcEntitlementURL, mcAccessToken, &resp); err != nil {
		return err
	}
	if len(resp.Items) < 2 {
		return apperr.New(apperr.NotOwned, "auth.verifyOwnership", "account does not own minecraft")
	}
	return nil
}

// fetchProfile implements spec.md §4.5 step 9.
func (f *AuthFlow) fetchProfile(ctx context.Context, mcAccessToken string) (uuid, name string, err error) {
	var resp struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := f.getAuthorized(ctx, mcProfileURL, mcAccessToken, &resp); err != nil {
		return "", "", err
	}
	return resp.ID, resp.Name, nil
}

func (f *AuthFlow) postForm(ctx context.Context, endpoint string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return apperr.Wrap(apperr.UrlParse, "auth.postForm", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return f.do(req, out)
}

func (f *AuthFlow) postJSON(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return apperr.Wrap(apperr.Parse, "auth.postJSON", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(string(body)))
	if err != nil {
		return apperr.Wrap(apperr.UrlParse, "auth.postJSON", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return f.do(req, out)
}

func (f *AuthFlow) getAuthorized(ctx context.Context, endpoint, bearerToken string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return apperr.Wrap(apperr.UrlParse, "auth.getAuthorized", err)
	}
	req.Header.Set("Authorization", "Bearer "+bearerToken)
	return f.do(req, out)
}

func (f *AuthFlow) do(req *http.Request, out any) error {
	resp, err := f.Client.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.Transport, "auth.do", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperr.Wrap(apperr.Transport, "auth.do", err)
	}
	if resp.StatusCode >= 400 {
		return apperr.New(apperr.Transport, "auth.do", fmt.Sprintf("unexpected status %d from %s", resp.StatusCode, req.URL))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return apperr.Wrap(apperr.Parse, "auth.do", err)
	}
	return nil
}

const alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// randomAlphanumeric generates the CSRF state nonce (spec.md §4.5 step 1).
func randomAlphanumeric(n int) (string, error) {
	out := make([]byte, n)
	for i := range out {
		idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphanumeric))))
		if err != nil {
			return "", err
		}
		out[i] = alphanumeric[idx.Int64()]
	}
	return string(out), nil
}
