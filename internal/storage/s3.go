package storage

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	algoritmo       = "AWS4-HMAC-SHA256"
	cabecerasFirmas = "content-type;host;x-amz-content-sha256;x-amz-date"
)

// S3Config agrupa los parámetros para firmar solicitudes S3/R2.
type S3Config struct {
	Endpoint     string
	Region       string
	Bucket       string
	AccessKey    string
	SecretKey    string
	PublicDomain string
	HTTPClient   *http.Client
}

func (cfg S3Config) validate() error {
	faltantes := []struct{ valor, variable string }{
		{cfg.Endpoint, "S3_ENDPOINT"},
		{cfg.Region, "S3_REGION"},
		{cfg.Bucket, "S3_BUCKET"},
		{cfg.AccessKey, "S3_ACCESS_KEY"},
		{cfg.SecretKey, "S3_SECRET_KEY"},
	}
	for _, f := range faltantes {
		if strings.TrimSpace(f.valor) == "" {
			return errors.New("storage: falta " + f.variable)
		}
	}
	if !strings.HasPrefix(cfg.Endpoint, "http://") && !strings.HasPrefix(cfg.Endpoint, "https://") {
		return errors.New("storage: S3_ENDPOINT debe incluir http:// o https://")
	}
	return nil
}

// S3Uploader sube objetos con PUT firmado (SigV4, path-style).
type S3Uploader struct {
	cfg    S3Config
	client *http.Client
	now    func() time.Time
}

func NewS3Uploader(cfg S3Config) (*S3Uploader, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &S3Uploader{cfg: cfg, client: client, now: time.Now}, nil
}

func (u *S3Uploader) Upload(ctx context.Context, in UploadInput) (*UploadResult, error) {
	if strings.TrimSpace(in.Key) == "" {
		return nil, errors.New("storage: la clave del objeto es obligatoria")
	}
	if len(in.Body) == 0 {
		return nil, errors.New("storage: cuerpo vacío")
	}
	tipo := strings.TrimSpace(in.ContentType)
	if tipo == "" {
		tipo = "application/octet-stream"
	}

	clave := (&url.URL{Path: strings.TrimLeft(in.Key, "/")}).EscapedPath()
	destino := fmt.Sprintf("%s/%s/%s", strings.TrimRight(u.cfg.Endpoint, "/"), u.cfg.Bucket, clave)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, destino, bytes.NewReader(in.Body))
	if err != nil {
		return nil, err
	}
	req.ContentLength = int64(len(in.Body))
	req.Header.Set("Content-Type", tipo)
	req.Header.Set("Content-Length", strconv.Itoa(len(in.Body)))
	if in.CacheControl != "" {
		req.Header.Set("Cache-Control", in.CacheControl)
	}
	u.firmar(req, sha256Hex(in.Body))

	resp, err := u.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		cuerpo, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("storage: subida fallida (%d): %s", resp.StatusCode, strings.TrimSpace(string(cuerpo)))
	}

	res := &UploadResult{URL: destino, ETag: strings.Trim(resp.Header.Get("ETag"), `"`)}
	if dominio := strings.TrimSpace(u.cfg.PublicDomain); dominio != "" {
		res.URL = strings.TrimRight(dominio, "/") + "/" + clave
	}
	return res, nil
}

// firmar agrega x-amz-* y Authorization; sólo firma las cabeceras de cabecerasFirmas.
func (u *S3Uploader) firmar(req *http.Request, payload string) {
	ahora := u.now().UTC()
	fecha := ahora.Format("20060102T150405Z")
	dia := fecha[:8]

	req.Header.Set("x-amz-date", fecha)
	req.Header.Set("x-amz-content-sha256", payload)

	canonica := strings.Join([]string{
		req.Method,
		req.URL.EscapedPath(),
		"",
		"content-type:" + strings.TrimSpace(req.Header.Get("Content-Type")),
		"host:" + req.URL.Host,
		"x-amz-content-sha256:" + payload,
		"x-amz-date:" + fecha,
		"",
		cabecerasFirmas,
		payload,
	}, "\n")

	alcance := dia + "/" + u.cfg.Region + "/s3/aws4_request"
	aFirmar := strings.Join([]string{algoritmo, fecha, alcance, sha256Hex([]byte(canonica))}, "\n")

	clave := []byte("AWS4" + u.cfg.SecretKey)
	for _, parte := range []string{dia, u.cfg.Region, "s3", "aws4_request"} {
		clave = hmacSHA256(clave, parte)
	}
	firma := hex.EncodeToString(hmacSHA256(clave, aFirmar))

	req.Header.Set("Authorization", fmt.Sprintf("%s Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		algoritmo, u.cfg.AccessKey, alcance, cabecerasFirmas, firma))
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func hmacSHA256(key []byte, data string) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(data))
	return mac.Sum(nil)
}
