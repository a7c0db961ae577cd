/*
Package marketsdk provides a client SDK for the gigboard marketplace REST backend.

# SDKClient vs Session

The package is organized around two main types:

  - SDKClient: unauthenticated operations (login, registration, verification mail)
  - Session: operations carrying a bearer access token

Create an SDKClient and exchange credentials for a session:

	client := marketsdk.NewSDKClient("https://api.gigboard.example")

	auth, err := client.Login(ctx, marketsdk.LoginRequest{Email: email, Password: password})
	if marketsdk.IsUnverifiedEmail(err) {
		_, err = client.ResendVerification(ctx, email)
	}

	session := client.NewSession(auth.AccessToken)
	profile, err := session.Me(ctx)

# Identity Provider Sign-in

GoogleLogin passes an ID token through to the backend untouched. An identity the
backend has never seen is reported with the GOOGLE_REGISTER_REQUIRED sentinel:

	auth, err := client.GoogleLogin(ctx, idToken)
	if marketsdk.IsRegistrationRequired(err) {
		auth, err = client.GoogleRegister(ctx, marketsdk.GoogleRegisterRequest{
			IDToken: idToken,
			Country: "AU",
			Role:    marketsdk.RoleClient,
		})
	}

# Authorization Failures

Set OnUnauthorized to learn about any 401 returned to a Session. The callback
receives the rejected token so stale sessions can be told apart from the
current one:

	client.OnUnauthorized = func(ctx context.Context, token string) {
		controller.HandleUnauthorized(ctx, token)
	}

# Error Handling

Non-2xx responses are returned as *APIError:

	var apiErr *marketsdk.APIError
	if errors.As(err, &apiErr) {
		fmt.Println(apiErr.StatusCode, apiErr.Message)
	}

Failures before a response arrived (DNS, timeouts, the local rate limiter) are
plain wrapped errors; IsTransport tells them apart.

# Validation

Request types expose Validate, returning a field to reason map, so forms can be
checked before any network call:

	if errs := req.Validate(); errs != nil {
		// show errs next to the fields
	}
*/
package marketsdk
