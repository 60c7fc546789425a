package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"

	"nowplaying/internal/spotify"
)

// Scopes requested at sign-in.
var Scopes = []string{
	"user-read-email",
	"user-read-private",
	"user-read-playback-state",
	"user-library-read",
	"user-modify-playback-state",
	"playlist-read-private",
	"playlist-read-collaborative",
}

// Endpoint is Spotify's authorization server. Token requests authenticate with
// HTTP Basic client credentials.
var Endpoint = oauth2.Endpoint{
	AuthURL:   "https://accounts.spotify.com/authorize",
	TokenURL:  "https://accounts.spotify.com/api/token",
	AuthStyle: oauth2.AuthStyleInHeader,
}

// NewOAuthConfig returns the oauth2 configuration shared by the authenticator
// and the refresher.
func NewOAuthConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Endpoint:     Endpoint,
		Scopes:       Scopes,
	}
}

// Grant is the outcome of a completed authorization-code exchange.
type Grant struct {
	Token   *oauth2.Token
	Profile spotify.User
}

// SpotifyAuthenticator drives the authorization-code flow.
type SpotifyAuthenticator struct {
	config     *oauth2.Config
	httpClient *http.Client
	apiBaseURL string
}

// NewSpotifyAuthenticator creates a new SpotifyAuthenticator.
func NewSpotifyAuthenticator(config *oauth2.Config, httpClient *http.Client, apiBaseURL string) *SpotifyAuthenticator {
	return &SpotifyAuthenticator{config: config, httpClient: httpClient, apiBaseURL: apiBaseURL}
}

// AuthURL generates the Spotify consent URL with the given state.
func (a *SpotifyAuthenticator) AuthURL(state string) string {
	return a.config.AuthCodeURL(state)
}

// Exchange trades the authorization code for tokens and loads the profile
// the session will be bound to.
func (a *SpotifyAuthenticator) Exchange(ctx context.Context, code string) (*Grant, error) {
	exchangeCtx := ctx
	if a.httpClient != nil {
		exchangeCtx = context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
	}

	token, err := a.config.Exchange(exchangeCtx, code)
	if err != nil {
		return nil, fmt.Errorf("token exchange: %w", err)
	}

	client := spotify.New(a.httpClient, a.apiBaseURL, token.Type(), token.AccessToken)
	profile, err := client.Profile(ctx)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}

	return &Grant{Token: token, Profile: *profile}, nil
}

// GenerateState generates a cryptographically secure random state string.
func GenerateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
