package oauth2

import (
	"net/http"

	"golang.org/x/oauth2/google"
)

// GoogleOAuth2 runs the server side Google code flow. The ID token returned
// by the exchange is checked with Verifier and handed to HandleToken, so a
// redirect login passes the same checks as a token posted by a client.
type GoogleOAuth2 struct {
	*BaseOAuth2
	Verifier *GoogleVerifier
}

func NewGoogleOAuth2(clientId, clientSecret, callbackUrl string, verifier *GoogleVerifier, handleToken HandleTokenFunc) *GoogleOAuth2 {
	out := &GoogleOAuth2{
		BaseOAuth2: newBaseOAuth2(clientId, clientSecret, callbackUrl, google.Endpoint,
			[]string{"openid", "email", "profile"}, handleToken),
		Verifier: verifier,
	}
	out.routes(out.handleCallback)
	return out
}

func (g *GoogleOAuth2) handleCallback(w http.ResponseWriter, r *http.Request) {
	token := g.exchange(ProviderGoogle, w, r)
	if token == nil {
		return
	}

	idToken, _ := token.Extra("id_token").(string)
	if idToken == "" || g.Verifier == nil {
		g.logger().InfoContext(r.Context(), "google exchange returned no verifiable id token")
		g.fail(w, r)
		return
	}
	claim, err := g.Verifier.Claim(r.Context(), idToken)
	if err != nil {
		g.logger().InfoContext(r.Context(), "google id token rejected", "error", err)
		g.fail(w, r)
		return
	}
	g.complete(ProviderGoogle, idToken, claim.Subject, w, r)
}
