package auth

import (
	"errors"
	"strings"
)

const bearerScheme = "bearer"

var errMalformedHeader = errors.New("missing or malformed authorization header")

// ParseBearer extracts the credential from an `Authorization: Bearer <token>` header value.
func ParseBearer(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errMalformedHeader
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, bearerScheme) {
		return "", errMalformedHeader
	}
	token = strings.TrimSpace(token)
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", errMalformedHeader
	}
	return token, nil
}
