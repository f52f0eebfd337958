package whatsapp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-resty/resty/v2"

	"whatsapp-connect-chat/internal/domain"
)

const graphBaseURL = "https://graph.facebook.com"

// HTTPStatusError captures non-2xx Graph API responses.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("whatsapp: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int { return e.StatusCode }

// s3API is the minimal S3 interface required for media mirroring.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// TokenGetter resolves the Meta access token used for lookaside
// downloads.
type TokenGetter interface {
	GetToken(ctx context.Context, secretID string) (string, error)
}

// mediaMetadata is the minimal Graph media-metadata response shape.
type mediaMetadata struct {
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
	FileSize int64  `json:"file_size"`
	ID       string `json:"id"`
}

// MediaFetcher downloads inbound media binaries and mirrors them to the
// media bucket so the transcode and transcription side-channels can
// address them by S3 location.
type MediaFetcher struct {
	http          *resty.Client
	s3            s3API
	tokens        TokenGetter
	tokenSecretID string
	bucket        string
	apiVersion    string
	graphBase     string
}

// NewMediaFetcher creates a media fetcher.
func NewMediaFetcher(httpClient *resty.Client, s3c s3API, tokens TokenGetter, tokenSecretID, bucket, apiVersion string) (*MediaFetcher, error) {
	if httpClient == nil {
		httpClient = resty.New()
	}
	if s3c == nil {
		return nil, errors.New("whatsapp: s3 api must not be nil")
	}
	if tokens == nil {
		return nil, errors.New("whatsapp: token getter must not be nil")
	}
	if bucket == "" {
		return nil, errors.New("whatsapp: media bucket must not be empty")
	}
	if apiVersion == "" {
		apiVersion = "v23.0"
	}
	return &MediaFetcher{
		http:          httpClient,
		s3:            s3c,
		tokens:        tokens,
		tokenSecretID: tokenSecretID,
		bucket:        bucket,
		apiVersion:    apiVersion,
		graphBase:     graphBaseURL,
	}, nil
}

// FetchMedia resolves a media id to its binary content and mirrors the
// bytes into the media bucket, returning the attachment descriptor.
func (s *Service) FetchMedia(ctx context.Context, media *domain.MediaPayload) (*domain.Attachment, error) {
	if s.media == nil {
		return nil, errors.New("whatsapp: media fetcher not configured")
	}
	return s.media.fetch(ctx, media)
}

// GetS3FileContent reads back a previously mirrored (or converted)
// object by its s3://bucket/key location.
func (s *Service) GetS3FileContent(ctx context.Context, location string) ([]byte, error) {
	if s.media == nil {
		return nil, errors.New("whatsapp: media fetcher not configured")
	}
	return s.media.getObject(ctx, location)
}

func (f *MediaFetcher) fetch(ctx context.Context, media *domain.MediaPayload) (*domain.Attachment, error) {
	if media == nil || media.ID == "" {
		return nil, errors.New("whatsapp: media id is required")
	}

	token, err := f.tokens.GetToken(ctx, f.tokenSecretID)
	if err != nil {
		return nil, err
	}

	var meta mediaMetadata
	metaURL := fmt.Sprintf("%s/%s/%s", f.graphBase, f.apiVersion, media.ID)
	resp, err := f.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetResult(&meta).
		Get(metaURL)
	if err != nil {
		return nil, fmt.Errorf("whatsapp: media metadata: %w", err)
	}
	if resp.IsError() {
		return nil, &HTTPStatusError{StatusCode: resp.StatusCode(), URL: metaURL, Body: string(resp.Body())}
	}
	if meta.URL == "" {
		return nil, errors.New("whatsapp: media metadata carries no download url")
	}

	bin, err := f.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		Get(meta.URL)
	if err != nil {
		return nil, fmt.Errorf("whatsapp: media download: %w", err)
	}
	if bin.IsError() {
		return nil, &HTTPStatusError{StatusCode: bin.StatusCode(), URL: meta.URL, Body: string(bin.Body())}
	}

	mimeType := meta.MimeType
	if mimeType == "" {
		mimeType = media.MimeType
	}
	key := "media/" + media.ID + "." + ExtensionForMime(mimeType)
	content := bin.Body()

	_, err = f.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(f.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(content),
		ContentType: aws.String(mimeType),
	})
	if err != nil {
		return nil, fmt.Errorf("whatsapp: mirror media to s3: %w", err)
	}

	return &domain.Attachment{
		Content:  content,
		MimeType: mimeType,
		Filename: media.Filename,
		Location: fmt.Sprintf("s3://%s/%s", f.bucket, key),
	}, nil
}

func (f *MediaFetcher) getObject(ctx context.Context, location string) ([]byte, error) {
	bucket, key, err := ParseS3Location(location)
	if err != nil {
		return nil, err
	}
	out, err := f.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("whatsapp: get s3 object %s: %w", location, err)
	}
	defer out.Body.Close()
	content, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("whatsapp: read s3 object %s: %w", location, err)
	}
	return content, nil
}

// ParseS3Location splits an s3://bucket/key URI.
func ParseS3Location(location string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(location, "s3://")
	if !ok {
		return "", "", fmt.Errorf("whatsapp: %q is not an s3 location", location)
	}
	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("whatsapp: %q is not an s3 location", location)
	}
	return bucket, key, nil
}

// ExtensionForMime maps a declared media type to a file extension. The
// transcode step keys off the .ogg suffix, so voice notes must keep it.
func ExtensionForMime(mimeType string) string {
	base, _, _ := strings.Cut(mimeType, ";")
	switch strings.TrimSpace(base) {
	case "audio/ogg", "audio/opus":
		return "ogg"
	case "audio/mpeg":
		return "mp3"
	case "audio/wav", "audio/x-wav":
		return "wav"
	case "image/jpeg":
		return "jpeg"
	case "image/png":
		return "png"
	case "image/webp":
		return "webp"
	case "video/mp4":
		return "mp4"
	case "application/pdf":
		return "pdf"
	default:
		return "bin"
	}
}
