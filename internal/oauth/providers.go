package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/config"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

const (
	googleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"
	githubUserURL     = "https://api.github.com/user"
	githubEmailsURL   = "https://api.github.com/user/emails"
)

func Google(clientID, clientSecret, redirectURL string) *Provider {
	return New("google", &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Endpoint:     endpoints.Google,
		Scopes:       []string{"openid", "email", "profile"},
	}, googleFetch(googleUserInfoURL)).WithIDToken(NewKeySet(googleJWKSURL, googleIssuers...))
}

func GitHub(clientID, clientSecret, redirectURL string) *Provider {
	return New("github", &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Endpoint:     endpoints.GitHub,
		Scopes:       []string{"read:user", "user:email"},
	}, githubFetch(githubUserURL, githubEmailsURL))
}

// Registry holds the providers enabled by configuration.
type Registry map[string]*Provider

// NewRegistry enables each provider whose client id and secret are set.
func NewRegistry(cfg *config.Config) Registry {
	base := strings.TrimRight(cfg.OAuthRedirectBase, "/")
	callback := func(name string) string { return base + "/api/auth/oauth/" + name + "/callback" }

	r := Registry{}
	if cfg.GoogleClientID != "" && cfg.GoogleClientSecret != "" {
		r["google"] = Google(cfg.GoogleClientID, cfg.GoogleClientSecret, callback("google"))
	}
	if cfg.GitHubClientID != "" && cfg.GitHubClientSecret != "" {
		r["github"] = GitHub(cfg.GitHubClientID, cfg.GitHubClientSecret, callback("github"))
	}
	return r
}

func (r Registry) Get(name string) (*Provider, error) {
	p, ok := r[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return p, nil
}

func getJSON(ctx context.Context, client *http.Client, url string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: unexpected status %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}

func googleFetch(userInfoURL string) FetchFunc {
	return func(ctx context.Context, client *http.Client) (Profile, error) {
		var body struct {
			Sub           string `json:"sub"`
			Email         string `json:"email"`
			EmailVerified bool   `json:"email_verified"`
			Name          string `json:"name"`
			Picture       string `json:"picture"`
		}
		if err := getJSON(ctx, client, userInfoURL, &body); err != nil {
			return Profile{}, err
		}
		return Profile{
			ID:            body.Sub,
			Email:         body.Email,
			EmailVerified: body.EmailVerified,
			Name:          body.Name,
			Picture:       body.Picture,
		}, nil
	}
}

// githubFetch falls back to the emails endpoint when the public profile
// hides the address; only a primary verified email is accepted there.
func githubFetch(userURL, emailsURL string) FetchFunc {
	return func(ctx context.Context, client *http.Client) (Profile, error) {
		var user struct {
			ID        int64  `json:"id"`
			Login     string `json:"login"`
			Name      string `json:"name"`
			Email     string `json:"email"`
			AvatarURL string `json:"avatar_url"`
		}
		if err := getJSON(ctx, client, userURL, &user); err != nil {
			return Profile{}, err
		}

		profile := Profile{
			ID:      strconv.FormatInt(user.ID, 10),
			Email:   user.Email,
			Name:    user.Name,
			Picture: user.AvatarURL,
		}
		if profile.Name == "" {
			profile.Name = user.Login
		}

		var emails []struct {
			Email    string `json:"email"`
			Primary  bool   `json:"primary"`
			Verified bool   `json:"verified"`
		}
		if err := getJSON(ctx, client, emailsURL, &emails); err != nil {
			// without the user:email scope only the public email is known
			return profile, nil
		}
		for _, e := range emails {
			if e.Primary && e.Verified {
				profile.Email = e.Email
				profile.EmailVerified = true
				break
			}
		}
		return profile, nil
	}
}
