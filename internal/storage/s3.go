package storage

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/pbkdf2"

	"github.com/local/blinkpdf/internal/filetype"
)

// gcmMagic marks the encrypted object format:
// magic(8) + salt(16) + nonce(12) + ciphertext + auth_tag(16)
const gcmMagic = "GCM3NCR0"

// S3Archiver pushes finished job results to an S3 bucket. When a password
// is set, objects are encrypted client-side before upload. The password
// comes from the environment and is never logged.
type S3Archiver struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	region   string
	password string
}

// NewS3Archiver creates an archiver for the given bucket. Returns an error
// when AWS credentials cannot be resolved.
func NewS3Archiver(ctx context.Context, bucket, region, password string) (*S3Archiver, error) {
	opts := []func(*awscfg.LoadOptions) error{}
	if region != "" {
		opts = append(opts, awscfg.WithRegion(region))
	}
	cfg, err := awscfg.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	return &S3Archiver{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   bucket,
		region:   region,
		password: password,
	}, nil
}

// SaveResult uploads a finished result file under results/<jobID>/<name>
// and returns the object URI.
func (a *S3Archiver) SaveResult(ctx context.Context, jobID, filePath, name string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("read result: %w", err)
	}

	meta := map[string]string{
		"name":         name,
		"content-type": filetype.MIMEForName(name),
	}
	if a.password != "" {
		data, err = encryptGCM(data, a.password)
		if err != nil {
			return "", fmt.Errorf("encrypt result: %w", err)
		}
		meta["encrypted"] = "true"
		meta["encryption-format"] = gcmMagic
	}

	key := path.Join("results", jobID, name)
	_, err = a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:   aws.String(a.bucket),
		Key:      aws.String(key),
		Body:     bytes.NewReader(data),
		Metadata: meta,
	})
	if err != nil {
		return "", fmt.Errorf("upload to s3: %w", err)
	}

	log.Info().Str("job_id", jobID).Str("key", key).Int("size", len(data)).Msg("archived result to s3")
	return fmt.Sprintf("s3://%s/%s", a.bucket, key), nil
}

// Fetch downloads an archived result, decrypting when the object was
// encrypted on upload.
func (a *S3Archiver) Fetch(ctx context.Context, key string) ([]byte, string, error) {
	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, "", fmt.Errorf("download from s3: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read s3 object: %w", err)
	}

	name := ""
	if out.Metadata != nil {
		if n, ok := out.Metadata["name"]; ok {
			name = n
		} else if n, ok := out.Metadata["Name"]; ok {
			name = n
		}
	}

	if len(data) >= 8 && string(data[:8]) == gcmMagic {
		if a.password == "" {
			return nil, "", fmt.Errorf("object %s is encrypted but no password configured", key)
		}
		data, err = decryptGCM(data, a.password)
		if err != nil {
			return nil, "", fmt.Errorf("decrypt result: %w", err)
		}
	}
	return data, name, nil
}

func encryptGCM(data []byte, password string) ([]byte, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}

	key := pbkdf2.Key([]byte(password), salt, 100000, 32, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, data, nil)

	out := make([]byte, 0, 8+len(salt)+len(nonce)+len(sealed))
	out = append(out, []byte(gcmMagic)...)
	out = append(out, salt...)
	out = append(out, nonce...)
	out = append(out, sealed...)
	return out, nil
}

func decryptGCM(data []byte, password string) ([]byte, error) {
	if len(data) < 8+16+12+16 {
		return nil, fmt.Errorf("encrypted data too short: %d bytes", len(data))
	}

	salt := data[8:24]
	nonce := data[24:36]
	sealed := data[36:]

	key := pbkdf2.Key([]byte(password), salt, 100000, 32, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}

	plain, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("gcm decryption failed: %w", err)
	}
	return plain, nil
}
