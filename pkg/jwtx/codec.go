package jwtx

import (
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/authkit/pkg/autherr"
	"github.com/golang-jwt/jwt/v5"
)

// MFATicketScope is the single scope carried by an mfa_pending ticket.
const MFATicketScope = "mfa_pending"

// Options configures a Codec.
type Options struct {
	// Algorithm defaults to HS256.
	Algorithm string

	// Secret is the HMAC secret, or a PEM private key for EdDSA, ES256 and
	// RS256.
	Secret []byte

	// KeyID is written to the "kid" header when set.
	KeyID string

	// Issuer is stamped on issued tokens and enforced on decode when set.
	Issuer string

	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// Leeway tolerates clock skew on exp/iat. Zero means strict.
	Leeway time.Duration

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Codec issues and decodes signed, time-bounded tokens. It holds no mutable
// state and is safe for concurrent use.
type Codec struct {
	keys       *keyMaterial
	kid        string
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	leeway     time.Duration
	now        func() time.Time
	parser     *jwt.Parser
}

// NewCodec validates opts and builds a Codec.
func NewCodec(opts Options) (*Codec, error) {
	if opts.Algorithm == "" {
		opts.Algorithm = AlgHS256
	}
	if opts.AccessTTL == 0 {
		opts.AccessTTL = DefaultAccessTokenTTL
	}
	if opts.RefreshTTL == 0 {
		opts.RefreshTTL = DefaultRefreshTokenTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.AccessTTL < time.Second {
		return nil, fmt.Errorf("jwtx: access ttl must be at least 1s, got %s", opts.AccessTTL)
	}
	if opts.AccessTTL >= opts.RefreshTTL {
		return nil, fmt.Errorf("jwtx: access ttl (%s) must be shorter than refresh ttl (%s)", opts.AccessTTL, opts.RefreshTTL)
	}
	if opts.Leeway < 0 {
		return nil, errors.New("jwtx: leeway must not be negative")
	}

	keys, err := loadKeyMaterial(opts.Algorithm, opts.Secret)
	if err != nil {
		return nil, err
	}

	c := &Codec{
		keys:       keys,
		kid:        opts.KeyID,
		issuer:     opts.Issuer,
		accessTTL:  opts.AccessTTL,
		refreshTTL: opts.RefreshTTL,
		leeway:     opts.Leeway,
		now:        opts.Now,
	}

	// Asymmetric keys are published, so give them a stable kid.
	if c.kid == "" && keys.public != nil {
		jwk, err := NewJWK("", keys.method.Alg(), keys.public)
		if err != nil {
			return nil, err
		}
		c.kid = jwk.Kid
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{keys.method.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithLeeway(opts.Leeway),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if opts.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(opts.Issuer))
	}
	c.parser = jwt.NewParser(parserOpts...)

	return c, nil
}

func (c *Codec) Algorithm() string { return c.keys.method.Alg() }
func (c *Codec) KeyID() string { return c.kid }
func (c *Codec) Leeway() time.Duration { return c.leeway }
func (c *Codec) AccessTTL() time.Duration { return c.accessTTL }
func (c *Codec) RefreshTTL() time.Duration { return c.refreshTTL }
func (c *Codec) Now() time.Time { return c.now() }

// Issue mints an access token for subject.
func (c *Codec) Issue(subject string, scopes []string, lifetime time.Duration) (string, error) {
	token, _, err := c.IssueFor(PurposeAccess, subject, scopes, lifetime)
	return token, err
}

// IssueFor mints a token of the given purpose and returns it together with
// the claims it carries.
func (c *Codec) IssueFor(purpose Purpose, subject string, scopes []string, lifetime time.Duration) (string, Claims, error) {
	if !purpose.Valid() {
		return "", Claims{}, fmt.Errorf("jwtx: unknown purpose %q", purpose)
	}
	if subject == "" {
		return "", Claims{}, errors.New("jwtx: subject is required")
	}
	if lifetime < time.Second {
		return "", Claims{}, fmt.Errorf("jwtx: lifetime must be at least 1s, got %s", lifetime)
	}

	claims := newClaims(purpose, subject, c.issuer, scopes, c.now(), lifetime)

	t := jwt.NewWithClaims(c.keys.method, claims)
	if c.kid != "" {
		t.Header["kid"] = c.kid
	}

	signed, err := t.SignedString(c.keys.signKey)
	if err != nil {
		return "", Claims{}, fmt.Errorf("jwtx: sign: %w", err)
	}
	return signed, claims, nil
}

// IssuePair mints an access token carrying scopes and a refresh token
// carrying none.
func (c *Codec) IssuePair(subject string, scopes []string) (TokenPair, error) {
	access, ac, err := c.IssueFor(PurposeAccess, subject, scopes, c.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, rc, err := c.IssueFor(PurposeRefresh, subject, nil, c.refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		TokenType:        "Bearer",
		AccessExpiresAt:  ac.ExpiresAtTime(),
		RefreshExpiresAt: rc.ExpiresAtTime(),
	}, nil
}

// Decode verifies the signature, then the time claims, then the structure.
// A token is expired once now reaches exp plus leeway.
func (c *Codec) Decode(token string) (Claims, error) {
	var claims Claims

	_, err := c.parser.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return c.keys.verifyKey, nil
	})
	if err != nil {
		return Claims{}, mapParseError(err)
	}

	switch {
	case claims.ID == "":
		return Claims{}, autherr.Wrapf(autherr.ErrMalformedToken, "missing jti")
	case claims.Subject == "":
		return Claims{}, autherr.Wrapf(autherr.ErrMalformedToken, "missing sub")
	case claims.IssuedAt == nil:
		return Claims{}, autherr.Wrapf(autherr.ErrMalformedToken, "missing iat")
	case !claims.ExpiresAt.After(claims.IssuedAt.Time):
		return Claims{}, autherr.Wrapf(autherr.ErrMalformedToken, "exp not after iat")
	case !claims.Purpose.Valid():
		return Claims{}, autherr.Wrapf(autherr.ErrMalformedToken, "unknown purpose %q", claims.Purpose)
	}

	if claims.Scopes == nil {
		claims.Scopes = []string{}
	}
	return claims, nil
}

func mapParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return autherr.Wrap(autherr.ErrMalformedToken, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable):
		return autherr.Wrap(autherr.ErrSignatureInvalid, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return autherr.Wrap(autherr.ErrTokenExpired, err)
	default:
		return autherr.Wrap(autherr.ErrMalformedToken, err)
	}
}
