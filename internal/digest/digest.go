// Package digest computes the HTTP-digest (MD5, no qop) response this
// library attaches to REGISTER and INVITE retries after a 401/407
// challenge, per RFC 2617 as reused by RFC 3261 §22.
package digest

import (
	"fmt"

	"github.com/icholy/digest"
)

// Challenge is the realm/nonce pair extracted from a WWW-Authenticate
// header, the only fields this library's digest formula needs.
type Challenge struct {
	Realm string
	Nonce string
}

// ParseChallenge extracts realm and nonce from a WWW-Authenticate header
// value (e.g. `Digest realm="asterisk", nonce="abcdef"`).
func ParseChallenge(header string) (Challenge, error) {
	chal, err := digest.ParseChallenge(header)
	if err != nil {
		return Challenge{}, fmt.Errorf("digest: parse challenge: %w", err)
	}
	return Challenge{Realm: chal.Realm, Nonce: chal.Nonce}, nil
}

// Authorization computes the Authorization header value for method
// against digestURI (already built as "sip:<host>;transport=TCP" by the
// caller), using the given account and challenge. The wire form carries
// no qop and no opaque, matching §6's external-interface requirement.
func Authorization(method, digestURI, username, password string, chal Challenge) (string, error) {
	cred, err := digest.Digest(&digest.Challenge{
		Realm:     chal.Realm,
		Nonce:     chal.Nonce,
		Algorithm: "MD5",
	}, digest.Options{
		Method:   method,
		URI:      digestURI,
		Username: username,
		Password: password,
	})
	if err != nil {
		return "", fmt.Errorf("digest: compute response: %w", err)
	}
	return cred.String(), nil
}
