package auth

import (
	"crypto/rand"

	"github.com/alexedwards/argon2id"
)

var params = &argon2id.Params{
	Memory:      64 * 1024, // 64 MB
	Iterations:  3,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

// Hash genera un hash Argon2id con los parámetros embebidos.
func Hash(password string) (string, error) {
	return argon2id.CreateHash(password, params)
}

// Verify compara la contraseña con un hash Argon2id.
func Verify(password, encodedHash string) (bool, error) {
	return argon2id.ComparePasswordAndHash(password, encodedHash)
}

const alfabetoClave = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz23456789"

// GenerarClaveTemporal crea una contraseña aleatoria para cuentas nuevas.
func GenerarClaveTemporal(largo int) (string, error) {
	if largo < 8 {
		largo = 8
	}
	buf := make([]byte, largo)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = alfabetoClave[int(b)%len(alfabetoClave)]
	}
	return string(buf), nil
}
