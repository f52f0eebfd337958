// Package secrets resolves the channel access token from AWS Secrets
// Manager.
package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// secretsAPI is the minimal Secrets Manager interface required by Client.
type secretsAPI interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// TokenGetter resolves an access token by secret id.
type TokenGetter interface {
	GetToken(ctx context.Context, secretID string) (string, error)
}

// tokenKeys are the JSON keys probed when the secret is a JSON object.
var tokenKeys = []string{"access_token", "token", "api_key", "apiKey"}

// Client wraps a Secrets Manager API for token retrieval.
type Client struct {
	api secretsAPI
}

// New creates a Client with the given Secrets Manager implementation.
func New(api secretsAPI) (*Client, error) {
	if api == nil {
		return nil, errors.New("secrets: api must not be nil")
	}
	return &Client{api: api}, nil
}

// GetToken returns the access token held by the secret. JSON secrets are
// probed for well-known token keys; anything else is returned verbatim.
func (c *Client) GetToken(ctx context.Context, secretID string) (string, error) {
	secretID = strings.TrimSpace(secretID)
	if secretID == "" {
		return "", errors.New("secrets: secret id is required")
	}

	out, err := c.api.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: &secretID,
	})
	if err != nil {
		return "", fmt.Errorf("secrets: get secret %q: %w", secretID, err)
	}

	var raw string
	switch {
	case out.SecretString != nil:
		raw = *out.SecretString
	case len(out.SecretBinary) > 0:
		raw = string(out.SecretBinary)
	default:
		return "", errors.New("secrets: secret has no value")
	}

	var asJSON map[string]string
	if err := json.Unmarshal([]byte(raw), &asJSON); err == nil {
		for _, key := range tokenKeys {
			if v, ok := asJSON[key]; ok && v != "" {
				return v, nil
			}
		}
		for _, v := range asJSON {
			if v != "" {
				return v, nil
			}
		}
	}
	return raw, nil
}
