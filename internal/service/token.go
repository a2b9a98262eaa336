package service

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid token")

const userIdKey = "user_id"

type Claims struct {
	UserId string `json:"user_id"`
}

// loadSecret returns the configured signing secret or a random one, which invalidates
// every token on restart.
func loadSecret(secret string) ([]byte, error) {
	if secret != "" {
		return []byte(secret), nil
	}

	random := make([]byte, 32)
	if _, err := rand.Read(random); err != nil {
		return nil, fmt.Errorf("failed to generate secret: %w", err)
	}

	return random, nil
}

func (s *service) generateJWT(userId string) (string, error) {
	claims := jwt.MapClaims{
		userIdKey: userId,
		"jti":     uuid.NewString(),
		"iat":     time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	return token.SignedString(s.secret)
}

func (s *service) parseJWT(tokenString string) (*Claims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	userId, ok := claims[userIdKey].(string)
	if !ok {
		return nil, ErrInvalidToken
	}

	return &Claims{
		UserId: userId,
	}, nil
}

// issueToken creates the resume token of userId. Must be called with s.mu held.
func (s *service) issueToken(userId string) (string, error) {
	token, err := s.generateJWT(userId)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	s.tokens[token] = userId
	s.userTokens[userId] = token
	return token, nil
}

// resolveToken returns the live user the token belongs to. Must be called with s.mu held.
func (s *service) resolveToken(token string) (string, error) {
	claims, err := s.parseJWT(token)
	if err != nil {
		return "", err
	}

	userId, ok := s.tokens[token]
	if !ok || userId != claims.UserId {
		return "", ErrInvalidToken
	}
	if _, ok := s.registry.LookupUser(userId); !ok {
		return "", ErrInvalidToken
	}

	return userId, nil
}

func (s *service) revokeToken(userId string) {
	if token, ok := s.userTokens[userId]; ok {
		delete(s.tokens, token)
		delete(s.userTokens, userId)
	}
}

// Authenticate resolves a bearer token to the user it was issued to. The user must have a
// live channel: a user in the grace period can only resume by joining with the token.
func (s *service) Authenticate(token string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	userId, err := s.resolveToken(token)
	if err != nil {
		return "", err
	}
	if s.conns.ConnCount(userId) == 0 {
		return "", ErrInvalidToken
	}

	return userId, nil
}
