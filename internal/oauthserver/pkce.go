package oauthserver

import (
	"golang.org/x/oauth2"

	"github.com/metamcp/metamcp/internal/domain/oauthstore"
)

// verifyPKCE checks a code_verifier against the stored code_challenge,
// per RFC 7636. S256 hashing uses the same helper the oauth2 package
// gives PKCE clients (oauth2.S256ChallengeFromVerifier), so the server
// and any Go client built against oauth2 agree on the exact encoding;
// plain compares directly.
func verifyPKCE(method oauthstore.CodeChallengeMethod, challenge, verifier string) bool {
	switch method {
	case oauthstore.CodeChallengeS256:
		return oauth2.S256ChallengeFromVerifier(verifier) == challenge
	case oauthstore.CodeChallengePlain:
		return verifier == challenge
	default:
		return false
	}
}
