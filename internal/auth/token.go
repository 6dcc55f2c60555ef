package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/servicedesk/internal/model"
)

var (
	// ErrTokenExpired は署名は正しいが有効期限切れのトークンを示す。
	ErrTokenExpired = errors.New("session token expired")
	// ErrTokenInvalid は署名・形式が不正なトークンを示す。
	ErrTokenInvalid = errors.New("session token invalid")
)

// Claims はセッショントークンのクレーム。
// Subjectはユーザー（プロフィール）ID、SessionIDはsessionsテーブルの行IDを指す。
type Claims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// TokenIssuer はHS256署名のセッショントークンを発行・検証する。
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer はTokenIssuerを生成する。
func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue はセッションに対するトークンを発行し、トークン文字列と有効期限を返す。
// トークンの有効期限はセッション行の期限を超えない。
func (t *TokenIssuer) Issue(session *model.Session) (string, time.Time, error) {
	now := t.now()
	expiresAt := now.Add(t.ttl)
	if !session.ExpiresAt.IsZero() && session.ExpiresAt.Before(expiresAt) {
		expiresAt = session.ExpiresAt
	}

	claims := Claims{
		SessionID: session.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   session.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, expiresAt, nil
}

// Parse はトークンの署名と有効期限を検証してクレームを返す。
func (t *TokenIssuer) Parse(token string) (*Claims, error) {
	return t.parse(token, jwt.WithTimeFunc(t.now))
}

// ParseIgnoringExpiry は署名のみを検証してクレームを返す。
// 期限切れトークンからのリフレッシュに使用する。
func (t *TokenIssuer) ParseIgnoringExpiry(token string) (*Claims, error) {
	return t.parse(token, jwt.WithoutClaimsValidation())
}

func (t *TokenIssuer) parse(token string, opts ...jwt.ParserOption) (*Claims, error) {
	opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if claims.Subject == "" || claims.SessionID == "" {
		return nil, fmt.Errorf("%w: missing sub or sid", ErrTokenInvalid)
	}
	return claims, nil
}
