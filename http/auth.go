package http

import "encoding/base64"

const (
	// HeaderAuthorization is the header carrying credentials.
	HeaderAuthorization = "Authorization"
)

// BasicAuthHeader returns the Authorization value for RFC 7617 basic credentials.
func BasicAuthHeader(username, password string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(username+":"+password))
}

// BearerTokenHeader returns the Authorization value for an RFC 6750 bearer token.
func BearerTokenHeader(token string) string {
	return "Bearer " + token
}
