package core

import "golang.org/x/oauth2"

// TokenSetFromOAuth2 converts an x/oauth2 token.
func TokenSetFromOAuth2(tok *oauth2.Token) TokenSet {
	if tok == nil {
		return TokenSet{}
	}
	return TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}
}

// OAuth2Token converts the set into an x/oauth2 bearer token.
func (t TokenSet) OAuth2Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  t.AccessToken,
		TokenType:    "Bearer",
		RefreshToken: t.RefreshToken,
		Expiry:       t.Expiry,
	}
}
