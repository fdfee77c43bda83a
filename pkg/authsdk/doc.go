/*
Package authsdk is a Go client for the authkit HTTP service.

The package is organized around two types:

  - SDKClient: unauthenticated calls (register, login, health, JWKS) and
    the constructors for sessions
  - Session: calls made with a bearer token, refreshed automatically

Password login either yields a Session or an *MFARequiredError carrying
the challenge ticket:

	client := authsdk.NewSDKClient("https://auth.example.com")

	session, err := client.Login(ctx, email, password)
	var mfaErr *authsdk.MFARequiredError
	if errors.As(err, &mfaErr) {
		session, err = client.CompleteMFA(ctx, mfaErr.Ticket, otpCode)
	}
	if err != nil {
		return err
	}

	me, err := session.Me(ctx)

Sessions are safe for concurrent use. An access token within 30 seconds of
expiry is rotated through the refresh endpoint before the request is sent.

Failed calls return *APIError with the service's error code:

	if authsdk.IsCode(err, "token_revoked") { ... }
*/
package authsdk
