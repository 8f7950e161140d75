// Package storage respalda artefactos (actas de cierre) en un bucket compatible con S3.
package storage

import (
	"context"
	"errors"
)

// ErrNoConfigurado indica que no hay backend de respaldo.
var ErrNoConfigurado = errors.New("storage: respaldo no configurado")

// UploadInput representa una subida simple.
type UploadInput struct {
	Key          string
	Body         []byte
	ContentType  string
	CacheControl string
}

// UploadResult describe el objeto persistido.
type UploadResult struct {
	URL  string
	ETag string
}

// Uploader almacena blobs.
type Uploader interface {
	Upload(ctx context.Context, input UploadInput) (*UploadResult, error)
}

// NewUploader elige el backend según STORAGE_PROVIDER.
func NewUploader(provider string, cfg S3Config) (Uploader, error) {
	switch provider {
	case "s3", "r2":
		up, err := NewS3Uploader(cfg)
		if err != nil {
			return nil, err
		}
		return up, nil
	case "", "noop", "local":
		return NoopUploader{}, nil
	}
	return nil, errors.New("storage: STORAGE_PROVIDER desconocido: " + provider)
}
