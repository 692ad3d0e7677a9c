// Package httpclient is the JSON transport shared by the SSO and social
// protocol adapters.
//
// Every request has a bounded timeout. Failures come back as
// *errors.AppError: network failures and timeouts as TRANSPORT, non-2xx
// answers as PROVIDER carrying the status and the raw body. The adapter
// never retries; retry policy belongs to the caller.
//
//	a, _ := httpclient.New(httpclient.Config{BaseURL: "https://oidc.us-east-1.amazonaws.com"})
//	resp, err := httpclient.Post[registerResponse](a, ctx, "/client/register", body,
//	    httpclient.WithOperation("client registration"))
package httpclient
