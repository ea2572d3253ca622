// Package archive uploads recorded voice clips to S3-compatible
// storage. Archival is optional and best-effort: a failed upload is
// logged and never blocks or fails a conversational turn.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const uploadTimeout = 30 * time.Second

// S3Config holds credentials and target bucket for clip archival.
type S3Config struct {
	Endpoint        string `json:"endpoint"`          // Custom endpoint (empty = AWS)
	Bucket          string `json:"bucket"`            // Target bucket
	AccessKeyID     string `json:"access_key_id"`     // Access key
	SecretAccessKey string `json:"secret_access_key"` // Secret key
}

// IsConfigured reports whether archival is fully configured.
func (c *S3Config) IsConfigured() bool {
	return c.Bucket != "" && c.AccessKeyID != "" && c.SecretAccessKey != ""
}

// Archiver stores voice clips in a bucket, keyed by date and session.
type Archiver struct {
	cfg S3Config

	mu     sync.Mutex
	client *s3.Client
}

// New creates an Archiver for the given configuration.
func New(cfg S3Config) *Archiver {
	return &Archiver{cfg: cfg}
}

// Enabled reports whether the archiver will attempt uploads.
func (a *Archiver) Enabled() bool {
	return a.cfg.IsConfigured()
}

// getClient returns the cached S3 client, creating it on first use.
func (a *Archiver) getClient() *s3.Client {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.client != nil {
		return a.client
	}

	creds := credentials.NewStaticCredentialsProvider(
		a.cfg.AccessKeyID,
		a.cfg.SecretAccessKey,
		"",
	)

	options := []func(*s3.Options){
		func(o *s3.Options) {
			o.Credentials = creds
			o.Region = "auto"
		},
	}

	if a.cfg.Endpoint != "" {
		options = append(options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(a.cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	a.client = s3.New(s3.Options{}, options...)
	return a.client
}

// StoreClip uploads one WAV clip. The key embeds the date and the
// conversation's session ID so clips group naturally per conversation.
func (a *Archiver) StoreClip(ctx context.Context, sessionID string, clip []byte) error {
	if !a.Enabled() {
		return nil
	}
	if sessionID == "" {
		sessionID = "no-session"
	}

	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	key := fmt.Sprintf("clips/%s/%s-%d.wav",
		time.Now().Format(time.DateOnly), sessionID, time.Now().UnixNano())

	_, err := a.getClient().PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.cfg.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(clip),
		ContentLength: aws.Int64(int64(len(clip))),
		ContentType:   aws.String("audio/wav"),
	})
	if err != nil {
		return fmt.Errorf("upload clip: %w", err)
	}

	slog.Debug("archived voice clip", "key", key, "bytes", len(clip))
	return nil
}

// Test verifies bucket connectivity by uploading and deleting a probe
// object.
func (a *Archiver) Test(ctx context.Context) error {
	if !a.Enabled() {
		return fmt.Errorf("clip archive is not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	client := a.getClient()
	testKey := fmt.Sprintf("test-connection-%d.txt", time.Now().UnixNano())
	testContent := []byte("sam-gateway connection test")

	_, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.cfg.Bucket),
		Key:           aws.String(testKey),
		Body:          bytes.NewReader(testContent),
		ContentLength: aws.Int64(int64(len(testContent))),
	})
	if err != nil {
		return fmt.Errorf("upload test file: %w", err)
	}

	_, err = client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(a.cfg.Bucket),
		Key:    aws.String(testKey),
	})
	if err != nil {
		slog.Warn("failed to delete test file", "key", testKey, "error", err)
	}

	return nil
}
