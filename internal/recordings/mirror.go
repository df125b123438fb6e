package recordings

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"call-router/internal/config"
)

// Mirror copies carrier-hosted recordings into an S3-compatible bucket.
// Carrier URLs expire after a few minutes; the mirrored copy is the one the
// automation endpoint and operators get to keep.
type Mirror struct {
	client *minio.Client
	cfg    config.SpacesConfig
	http   *resty.Client
	log    *slog.Logger
}

func NewMirror(cfg config.SpacesConfig, log *slog.Logger) (*Mirror, error) {
	if log == nil {
		log = slog.Default()
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: true,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("recordings: init client: %w", err)
	}
	return &Mirror{
		client: client,
		cfg:    cfg,
		http:   resty.New().SetTimeout(60 * time.Second),
		log:    log,
	}, nil
}

// Mirror downloads the recording at sourceURL and uploads it under a key
// derived from the call id. The caller keeps the source URL when this fails.
func (m *Mirror) Mirror(ctx context.Context, callID, sourceURL string) (string, error) {
	resp, err := m.http.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(sourceURL)
	if err != nil {
		return "", fmt.Errorf("recordings: download %s: %w", callID, err)
	}
	body := resp.RawBody()
	defer body.Close()
	if resp.IsError() {
		return "", fmt.Errorf("recordings: download %s: status %d", callID, resp.StatusCode())
	}

	key := objectKey(callID)
	_, err = m.client.PutObject(ctx, m.cfg.Bucket, key, body, -1, minio.PutObjectOptions{
		ContentType:  "audio/mpeg",
		UserMetadata: map[string]string{"x-amz-acl": "public-read"},
	})
	if err != nil {
		return "", fmt.Errorf("recordings: upload %s: %w", callID, err)
	}

	url := m.publicURL(key)
	m.log.Info("recording mirrored", "call_id", callID, "url", url)
	return url, nil
}

func objectKey(callID string) string {
	return "recordings/" + callID + ".mp3"
}

func (m *Mirror) publicURL(key string) string {
	if m.cfg.PublicBaseURL != "" {
		return m.cfg.PublicBaseURL + "/" + key
	}
	return fmt.Sprintf("https://%s.%s/%s", m.cfg.Bucket, m.cfg.Endpoint, key)
}
