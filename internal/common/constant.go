// Package common contains shared constants and sentinel errors used across
// eventhub components.
package common

// AuthTokenHeaderName is the request header carrying the session bearer token.
const AuthTokenHeaderName = "X-Auth-Token"

// AuthorizationHeaderName is accepted as a fallback carrier in the
// "Bearer <token>" form.
const AuthorizationHeaderName = "Authorization"

// MinPasswordLength is the shortest password accepted on register and reset.
const MinPasswordLength = 6
