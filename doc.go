// Package authcore is an account and authentication core for Go services.
//
// It owns local accounts (username, email and a bcrypt password) and
// federated accounts vouched for by Facebook or Google. Every successful
// login or registration yields a signed, time bounded session credential.
//
// # Architecture
//
// LocalIdentity: An account in this system. A local account carries a
// password hash and must confirm its email before it can log in. A federated
// account carries a Provider and ProviderSubject instead, and is unique per
// provider.
//
// Authenticator: Orchestrates login, registration, email confirmation and
// password recovery on top of an IdentityStore, the external verifiers, a
// SessionIssuer and a MailDispatcher.
//
// AccountAPI: Exposes the Authenticator as an HTTP/JSON API and can remember
// logins in an scs session.
//
// # Basic Usage
//
//	import (
//	    "github.com/panyam/authcore"
//	    "github.com/panyam/authcore/oauth2"
//	    "github.com/panyam/authcore/stores/fs"
//	)
//
//	storagePath := "/path/to/storage"
//	store := authcore.NewIdentityStore(
//	    fs.NewFSAccountStore(storagePath),
//	    fs.NewFSTokenStore(storagePath))
//
//	issuer, err := authcore.NewSessionIssuer(authcore.SessionConfig{SigningKey: key})
//	google, err := oauth2.NewGoogleVerifier(ctx, clientID, httpClient)
//
//	auth := &authcore.Authenticator{
//	    Store:    store,
//	    Facebook: &oauth2.FacebookVerifier{AppID: appID, AppSecret: appSecret},
//	    Google:   google,
//	    Sessions: issuer,
//	    Mailer:   &authcore.ConsoleMailDispatcher{},
//	    Links:    authcore.LinkConfig{ClientURL: "https://app.example.com"},
//	}
//
//	api := &authcore.AccountAPI{
//	    Auth:       auth,
//	    Middleware: &authcore.SessionMiddleware{Issuer: issuer},
//	}
//	http.Handle("/", api.Handler())
//
// # Store Implementations
//
// The stores/fs package keeps accounts and tokens in JSON files and suits
// development and single process deployments. stores/gorm targets SQL
// databases and stores/gae targets Google Cloud Datastore.
//
// # Security
//
// Passwords are hashed with bcrypt. Recovery tokens are 32 random bytes,
// stored only as their SHA-256 hash, bound to one purpose and one account,
// and deleted on first use. Confirmation tokens expire after 24 hours and
// reset tokens after one hour. Minting a token replaces any outstanding token
// of the same purpose.
//
// # Testing
//
// The HTTP API can be exercised with httptest against stores rooted in a
// temporary directory, and external verifiers can be replaced with fakes.
package authcore
