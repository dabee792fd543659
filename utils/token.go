package utils

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dgrijalva/jwt-go"
)

type JwtCustomClaim struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	BusinessId string `json:"business_id"`
	Role       string `json:"role"`
	jwt.StandardClaims
}

func jwtSecret() []byte {
	secret := os.Getenv("API_SECRET")
	if secret == "" {
		return []byte("erp-core-secret")
	}
	return []byte(secret)
}

func JwtGenerate(userID int, name, businessId, role string) (string, error) {
	tokenLifespan, err := strconv.Atoi(os.Getenv("TOKEN_HOUR_LIFESPAN"))
	if err != nil || tokenLifespan <= 0 {
		tokenLifespan = 24
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, &JwtCustomClaim{
		ID:         userID,
		Name:       name,
		BusinessId: businessId,
		Role:       role,
		StandardClaims: jwt.StandardClaims{
			ExpiresAt: time.Now().Add(time.Hour * time.Duration(tokenLifespan)).Unix(),
			IssuedAt:  time.Now().Unix(),
		},
	})

	return t.SignedString(jwtSecret())
}

func JwtValidate(token string) (*jwt.Token, error) {
	return jwt.ParseWithClaims(token, &JwtCustomClaim{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("there's a problem with the signing method")
		}
		return jwtSecret(), nil
	})
}
