package oauth2

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/facebook"
)

// FacebookOAuth2 runs the server side Facebook code flow. It resolves the
// user id of the exchanged access token with the Graph API and hands both
// to HandleToken.
type FacebookOAuth2 struct {
	*BaseOAuth2

	// GraphURL is the Graph API base. Can be overridden for testing.
	GraphURL string
}

func NewFacebookOAuth2(clientId, clientSecret, callbackUrl string, handleToken HandleTokenFunc) *FacebookOAuth2 {
	out := &FacebookOAuth2{
		BaseOAuth2: newBaseOAuth2(clientId, clientSecret, callbackUrl, facebook.Endpoint,
			[]string{"public_profile", "email"}, handleToken),
		GraphURL: DefaultFacebookGraphURL,
	}
	out.routes(out.handleCallback)
	return out
}

func (f *FacebookOAuth2) handleCallback(w http.ResponseWriter, r *http.Request) {
	token := f.exchange(ProviderFacebook, w, r)
	if token == nil {
		return
	}

	userID, err := f.fetchUserID(r, token)
	if err != nil {
		f.logger().InfoContext(r.Context(), "failed to resolve facebook user", "error", err)
		f.fail(w, r)
		return
	}
	f.complete(ProviderFacebook, token.AccessToken, userID, w, r)
}

func (f *FacebookOAuth2) fetchUserID(r *http.Request, token *oauth2.Token) (string, error) {
	ctx := f.exchangeContext(r.Context())
	client := f.oauthConfig.Client(ctx, token)

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, strings.TrimSuffix(f.GraphURL, "/")+"/me?fields=id", nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed getting user from facebook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("facebook /me returned status %d", resp.StatusCode)
	}

	var me struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxProviderResponseBytes)).Decode(&me); err != nil {
		return "", fmt.Errorf("failed to parse facebook user: %w", err)
	}
	if me.ID == "" {
		return "", fmt.Errorf("facebook returned no user id")
	}
	return me.ID, nil
}
