package utils

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"jansunwai/models"
)

// IdentityClaims are the claims the core consumes. Token issuance lives
// outside the core; staff login here is the only issuer the repo carries.
type IdentityClaims struct {
	UserID       int64
	Role         models.Role
	DepartmentID int64
}

// GenerateToken issues a role-scoped JWT for a verified identity.
func GenerateToken(claims IdentityClaims, secret []byte, expiresInHours int) (string, error) {
	now := time.Now()
	mapClaims := jwt.MapClaims{
		"user_id": claims.UserID,
		"role":    string(claims.Role),
		"exp":     now.Add(time.Duration(expiresInHours) * time.Hour).Unix(),
		"iat":     now.Unix(),
	}
	if claims.DepartmentID != 0 {
		mapClaims["department_id"] = claims.DepartmentID
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, mapClaims)
	return token.SignedString(secret)
}

// ParseToken validates a JWT and extracts the identity claims the core needs.
func ParseToken(tokenString string, secret []byte) (*IdentityClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}

	userIDFloat, ok := mapClaims["user_id"].(float64)
	if !ok {
		return nil, fmt.Errorf("token missing user_id")
	}
	roleStr, ok := mapClaims["role"].(string)
	if !ok {
		return nil, fmt.Errorf("token missing role")
	}
	claims := &IdentityClaims{
		UserID: int64(userIDFloat),
		Role:   models.Role(roleStr),
	}
	if deptFloat, ok := mapClaims["department_id"].(float64); ok {
		claims.DepartmentID = int64(deptFloat)
	}
	return claims, nil
}
