package storage

import "context"

// NoopUploader se usa cuando STORAGE_PROVIDER no es s3; las actas quedan sólo en disco.
type NoopUploader struct{}

func (NoopUploader) Upload(ctx context.Context, input UploadInput) (*UploadResult, error) {
	return nil, ErrNoConfigurado
}
