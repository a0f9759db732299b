package token

import (
	"crypto/ed25519"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalid is returned when a token is malformed, carries a bad signature,
// or was signed with an unexpected algorithm.
var ErrInvalid = errors.New("token invalid")

// ErrExpired is returned when a structurally valid token is past its expiry.
var ErrExpired = errors.New("token expired")

// Method selects the signing scheme for both access and refresh tokens.
type Method string

const (
	// MethodEd25519 signs with an Ed25519 private key and verifies with the
	// matching public key.
	MethodEd25519 Method = "ed25519"
	// MethodHS256 signs and verifies with a single shared secret.
	MethodHS256 Method = "hs256"
)

// Config holds the immutable signing configuration. Key material is validated
// once in [NewSigner]; any key present at construction never fails to parse
// later.
type Config struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Method     Method
	PrivateKey []byte // HS256 shared secret or Ed25519 private key (raw or PEM); may be empty for a verify-only Ed25519 signer
	PublicKey  []byte // Ed25519 verify key (raw or PEM); unused for HS256
	Issuer     string
	Leeway     time.Duration
}

// Signer creates and verifies signed, time-limited tokens. It is stateless
// and safe for concurrent use.
type Signer struct {
	config Config
}

// AccessClaims are the verified contents of an access token.
type AccessClaims struct {
	UID string `json:"uid"`
	jwt.RegisteredClaims
}

// RefreshClaims are the verified contents of a refresh token. Family is the
// session-family identifier propagated unchanged through every rotation.
type RefreshClaims struct {
	UID    string `json:"uid"`
	Family string `json:"fam"`
	jwt.RegisteredClaims
}

// NewSigner validates cfg and returns a ready Signer. It fails when TTLs are
// non-positive or the configured key material is absent or malformed. An
// Ed25519 config may omit the private key to build a verify-only Signer for
// services that never issue tokens; its SignAccess and SignRefresh fail.
func NewSigner(cfg Config) (*Signer, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	switch cfg.Method {
	case MethodHS256:
		if len(cfg.PrivateKey) == 0 {
			return nil, errors.New("hs256 requires shared secret")
		}
	case MethodEd25519:
		if len(cfg.PrivateKey) > 0 {
			if _, err := parseEdPrivateKey(cfg.PrivateKey); err != nil {
				return nil, err
			}
		}
		if len(cfg.PublicKey) == 0 {
			return nil, errors.New("ed25519 requires public key")
		}
		if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("unsupported signing method")
	}

	return &Signer{config: cfg}, nil
}

// SignAccess produces a signed access token for subjectID, valid for the
// configured AccessTTL.
func (s *Signer) SignAccess(subjectID string) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		UID: subjectID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.AccessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.config.Issuer,
		},
	}
	return s.sign(jwt.NewWithClaims(s.method(), claims))
}

// SignRefresh produces a signed refresh token for subjectID carrying the
// session-family identifier, valid for the configured RefreshTTL. Every token
// carries a fresh jti, so two signings in the same second still produce
// distinct tokens and hash to distinct store keys.
func (s *Signer) SignRefresh(subjectID, familyID string) (string, error) {
	now := time.Now()
	claims := RefreshClaims{
		UID:    subjectID,
		Family: familyID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.RefreshTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.config.Issuer,
		},
	}
	return s.sign(jwt.NewWithClaims(s.method(), claims))
}

// VerifyAccess checks signature and expiry of an access token and returns its
// claims. Tokens carrying a family claim are rejected as [ErrInvalid] — a
// refresh token can never stand in for an access token. Other failures are
// [ErrExpired] or [ErrInvalid].
func (s *Signer) VerifyAccess(tokenStr string) (*AccessClaims, error) {
	var claims RefreshClaims
	if err := s.verify(tokenStr, &claims); err != nil {
		return nil, err
	}
	if claims.Family != "" {
		return nil, fmt.Errorf("%w: unexpected family claim", ErrInvalid)
	}
	return &AccessClaims{UID: claims.UID, RegisteredClaims: claims.RegisteredClaims}, nil
}

// VerifyRefresh checks signature and expiry of a refresh token and returns
// its claims. Tokens without a family claim are rejected as [ErrInvalid] —
// an access token can never be presented for rotation.
func (s *Signer) VerifyRefresh(tokenStr string) (*RefreshClaims, error) {
	var claims RefreshClaims
	if err := s.verify(tokenStr, &claims); err != nil {
		return nil, err
	}
	if claims.Family == "" {
		return nil, fmt.Errorf("%w: missing family claim", ErrInvalid)
	}
	return &claims, nil
}

// Digest returns the deterministic SHA-256 digest of a token's signed
// representation. The raw token is never persisted; this digest is the only
// value the store ever sees.
func Digest(tokenStr string) [32]byte {
	return sha256.Sum256([]byte(tokenStr))
}

func (s *Signer) sign(tok *jwt.Token) (string, error) {
	key, err := s.signKey()
	if err != nil {
		return "", err
	}
	signed, err := tok.SignedString(key)
	if err != nil {
		return "", err
	}
	return signed, nil
}

func (s *Signer) verify(tokenStr string, claims jwt.Claims) error {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{s.method().Alg()}),
	}
	if s.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(s.config.Leeway))
	}
	if s.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(s.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	parsed, err := parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != s.method().Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return s.verifyKey()
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return fmt.Errorf("%w: %v", ErrExpired, err)
		}
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if !parsed.Valid {
		return ErrInvalid
	}
	return nil
}

func (s *Signer) method() jwt.SigningMethod {
	switch s.config.Method {
	case MethodHS256:
		return jwt.SigningMethodHS256
	default:
		return jwt.SigningMethodEdDSA
	}
}

func (s *Signer) signKey() (interface{}, error) {
	switch s.config.Method {
	case MethodHS256:
		return s.config.PrivateKey, nil
	default:
		if len(s.config.PrivateKey) == 0 {
			return nil, errors.New("verify-only signer: no private key configured")
		}
		return parseEdPrivateKey(s.config.PrivateKey)
	}
}

func (s *Signer) verifyKey() (interface{}, error) {
	switch s.config.Method {
	case MethodHS256:
		return s.config.PrivateKey, nil
	default:
		return parseEdPublicKey(s.config.PublicKey)
	}
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
