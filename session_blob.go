package identity

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// SessionCodec serializes the non-secret session snapshot for whatever local
// blob storage the host environment provides. The blob is signed so tampering
// is detectable on rehydration, but a decoded blob is still only a cache: the
// Manager marks rehydrated sessions unauthenticated until the next Validate
// confirms them against the store.
type SessionCodec struct {
	signingKey []byte
	issuer     string
	ttl        time.Duration
	clock      Clock
	logger     Logger
}

type sessionClaims struct {
	jwt.RegisteredClaims
	Email         string         `json:"email"`
	Role          string         `json:"role"`
	Status        string         `json:"status"`
	AccountStatus string         `json:"account_status"`
	LastLoginAt   *time.Time     `json:"last_login_at,omitempty"`
	Attributes    map[string]any `json:"attributes,omitempty"`
}

// NewSessionCodec creates a codec with the given signing key.
func NewSessionCodec(signingKey []byte, issuer string, ttl time.Duration, clock Clock) *SessionCodec {
	if clock == nil {
		clock = SystemClock()
	}
	return &SessionCodec{
		signingKey: signingKey,
		issuer:     issuer,
		ttl:        ttl,
		clock:      clock,
		logger:     defLogger{},
	}
}

func (c *SessionCodec) WithLogger(logger Logger) *SessionCodec {
	if logger != nil {
		c.logger = logger
	}
	return c
}

// Encode signs the session snapshot as a compact blob.
func (c *SessionCodec) Encode(session *Session) (string, error) {
	if session == nil {
		return "", goerrors.New("session must not be nil", goerrors.CategoryInternal)
	}

	now := c.clock.Now()
	claims := &sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   session.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
		Email:         session.Email,
		Role:          string(session.Role),
		Status:        string(session.Status),
		AccountStatus: string(session.AccountStatus),
		LastLoginAt:   session.LastLoginAt,
		Attributes:    session.Attributes,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	blob, err := token.SignedString(c.signingKey)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign session blob")
	}

	return blob, nil
}

// Decode parses and verifies a blob. The returned session is deliberately
// unauthenticated; only a Validate round-trip against the store flips it.
func (c *SessionCodec) Decode(blob string) (*Session, error) {
	parserOptions := make([]jwt.ParserOption, 0, 2)
	if c.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(c.issuer))
	}
	parserOptions = append(parserOptions, jwt.WithTimeFunc(c.clock.Now))

	token, err := jwt.ParseWithClaims(blob, &sessionClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			c.logger.Error("session blob has unexpected signing method: %v", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return c.signingKey, nil
	}, parserOptions...)

	if err != nil {
		if goerrors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "failed to decode session blob").
			WithTextCode(TextCodeTokenInvalid)
	}

	claims, ok := token.Claims.(*sessionClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "session blob has malformed subject").
			WithTextCode(TextCodeTokenInvalid)
	}

	return &Session{
		UserID:        userID,
		Email:         claims.Email,
		Role:          Role(claims.Role),
		Status:        ApprovalStatus(claims.Status),
		AccountStatus: AccountStatus(claims.AccountStatus),
		LastLoginAt:   claims.LastLoginAt,
		Attributes:    claims.Attributes,
		Authenticated: false,
	}, nil
}
