package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// fakeProvider serves a token endpoint that insists on a PKCE verifier and
// the github style user/emails endpoints.
func fakeProvider(t *testing.T, wantVerifier *string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		if r.Form.Get("code") != "good-code" || r.Form.Get("code_verifier") != *wantVerifier {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "provider-token",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer provider-token", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{"id": 42, "login": "octo", "email": nil})
	})
	mux.HandleFunc("/emails", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"email": "secondary@example.com", "primary": false, "verified": true},
			{"email": "Octo@Example.com", "primary": true, "verified": true},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testProvider(srv *httptest.Server) *Provider {
	return New("github", &oauth2.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURL:  "http://localhost/callback",
		Endpoint: oauth2.Endpoint{
			AuthURL:   srv.URL + "/authorize",
			TokenURL:  srv.URL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}, githubFetch(srv.URL+"/user", srv.URL+"/emails"))
}

func TestNewAuthRequest_UsesPKCE(t *testing.T) {
	var verifier string
	p := testProvider(fakeProvider(t, &verifier))

	req, err := NewAuthRequest(p)
	require.NoError(t, err)
	assert.NotEmpty(t, req.State)
	assert.NotEmpty(t, req.Verifier)

	u, err := url.Parse(req.URL)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, req.State, q.Get("state"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.Equal(t, oauth2.S256ChallengeFromVerifier(req.Verifier), q.Get("code_challenge"))
	assert.Equal(t, "code", q.Get("response_type"))

	other, err := NewAuthRequest(p)
	require.NoError(t, err)
	assert.NotEqual(t, req.State, other.State)
}

func TestValidateCallback(t *testing.T) {
	tests := []struct {
		name    string
		params  CallbackParams
		want    string
		wantErr error
	}{
		{"ok", CallbackParams{Code: "c", State: "s"}, "c", nil},
		{"provider error", CallbackParams{Error: "access_denied", State: "s"}, "", ErrProviderDenied},
		{"missing code", CallbackParams{State: "s"}, "", ErrMissingCode},
		{"missing state", CallbackParams{Code: "c"}, "", ErrMissingState},
		{"mismatch", CallbackParams{Code: "c", State: "x"}, "", ErrStateMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, err := ValidateCallback(tt.params, "s")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, code)
		})
	}
}

func TestExchangeAndFetchProfile(t *testing.T) {
	var verifier string
	p := testProvider(fakeProvider(t, &verifier))
	ctx := context.Background()

	req, err := NewAuthRequest(p)
	require.NoError(t, err)
	verifier = req.Verifier

	_, err = Exchange(ctx, p, "good-code", "wrong-verifier")
	assert.Error(t, err)

	tok, err := Exchange(ctx, p, "good-code", req.Verifier)
	require.NoError(t, err)
	assert.Equal(t, "provider-token", tok.AccessToken)

	profile, err := FetchProfile(ctx, p, tok)
	require.NoError(t, err)
	assert.Equal(t, "42", profile.ID)
	assert.Equal(t, "octo@example.com", profile.Email)
	assert.True(t, profile.EmailVerified)
	assert.Equal(t, "octo", profile.Name)
}

func TestNewRegistry(t *testing.T) {
	r := NewRegistry(&config.Config{
		GitHubClientID:     "id",
		GitHubClientSecret: "secret",
		GoogleClientID:     "only-id",
		OAuthRedirectBase:  "https://api.example.com/",
	})

	gh, err := r.Get("github")
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com/api/auth/oauth/github/callback", gh.Config.RedirectURL)

	_, err = r.Get("google")
	assert.ErrorIs(t, err, ErrUnknownProvider)
}
