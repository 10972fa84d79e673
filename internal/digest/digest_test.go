package digest

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
	"testing"
)

func md5hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// TestAuthorizationMatchesSpecVector exercises the exact literal inputs
// from the registration-with-auth scenario: realm=asterisk, nonce=abcdef,
// username=alice, password=secret, server=192.0.2.1.
func TestAuthorizationMatchesSpecVector(t *testing.T) {
	ha1 := md5hex("alice:asterisk:secret")
	ha2 := md5hex("REGISTER:sip:192.0.2.1;transport=TCP")
	want := md5hex(ha1 + ":abcdef:" + ha2)

	header, err := Authorization(
		"REGISTER",
		"sip:192.0.2.1;transport=TCP",
		"alice",
		"secret",
		Challenge{Realm: "asterisk", Nonce: "abcdef"},
	)
	if err != nil {
		t.Fatalf("Authorization: %v", err)
	}

	if !strings.Contains(header, `response="`+want+`"`) && !strings.Contains(header, "response="+want) {
		t.Fatalf("Authorization header %q does not contain expected response %q", header, want)
	}
}

func TestParseChallenge(t *testing.T) {
	chal, err := ParseChallenge(`Digest realm="asterisk", nonce="abcdef"`)
	if err != nil {
		t.Fatalf("ParseChallenge: %v", err)
	}
	if chal.Realm != "asterisk" || chal.Nonce != "abcdef" {
		t.Fatalf("got %+v", chal)
	}
}
