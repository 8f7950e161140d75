package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
)

const bytesRefresh = 32

// ErrInvalidRefresh indica un refresh token inválido, revocado o expirado.
var ErrInvalidRefresh = errors.New("refresh token inválido")

// GenerateRefreshToken retorna el valor opaco para la cookie y su hash para tokens_refresh.
func GenerateRefreshToken() (raw string, hashed string, err error) {
	buf := make([]byte, bytesRefresh)
	if _, err := rand.Read(buf); err != nil {
		return "", "", err
	}
	raw = base64.RawURLEncoding.EncodeToString(buf)
	return raw, HashRefreshToken(raw), nil
}

func HashRefreshToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// ClaveSesion es la marca en Redis de una sesión vigente: sesion:<audience>:<hash>.
func ClaveSesion(audience, hash string) string {
	return "sesion:" + audience + ":" + hash
}
