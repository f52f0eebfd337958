package connectchat

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/connectparticipant"
)

const allowedHostSuffix = ".amazonaws.com"

var validateUploadURL = ValidateUploadURL

// ValidateUploadURL checks the destination returned by the upload-slot
// request before any byte leaves the process: https only, with a
// non-empty host under the approved cloud domain. file:// is called out
// explicitly because a poisoned destination must never reach the local
// filesystem.
func ValidateUploadURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("connectchat: malformed upload url: %w", err)
	}
	if parsed.Scheme == "file" {
		return fmt.Errorf("connectchat: file:// URLs are not allowed")
	}
	if parsed.Scheme != "https" {
		return fmt.Errorf("connectchat: only HTTPS upload URLs are allowed, got %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("connectchat: upload url has no host")
	}
	if !strings.HasSuffix(parsed.Hostname(), allowedHostSuffix) {
		return fmt.Errorf("connectchat: upload host %q is not an approved cloud domain", parsed.Hostname())
	}
	return nil
}

// AttachFile uploads a binary attachment in three phases: request an
// upload slot, transfer the bytes to the validated destination, then
// confirm completion. Returns the attachment id on success; on failure
// the tag classifies the slot-request error while transfer and
// validation failures surface as TagUnexpectedError with a descriptive
// error.
func (c *Client) AttachFile(ctx context.Context, content []byte, filename, mediaType, connectionToken string) (string, ErrorTag, error) {
	slot, err := c.participant.StartAttachmentUpload(ctx, &connectparticipant.StartAttachmentUploadInput{
		AttachmentName:        aws.String(filename),
		AttachmentSizeInBytes: int64(len(content)),
		ContentType:           aws.String(mediaType),
		ConnectionToken:       aws.String(connectionToken),
		ClientToken:           aws.String(newClientToken()),
	})
	if err != nil {
		return "", classify(err), fmt.Errorf("connectchat: start attachment upload: %w", err)
	}
	if slot.UploadMetadata == nil || slot.UploadMetadata.Url == nil {
		return "", TagUnexpectedError, fmt.Errorf("connectchat: upload slot carries no destination url")
	}

	destination := aws.ToString(slot.UploadMetadata.Url)
	if err := validateUploadURL(destination); err != nil {
		return "", TagUnexpectedError, err
	}

	req := c.http.R().SetContext(ctx).SetBody(content)
	for header, value := range slot.UploadMetadata.HeadersToInclude {
		req.SetHeader(header, value)
	}
	resp, err := req.Put(destination)
	if err != nil {
		return "", TagUnexpectedError, fmt.Errorf("connectchat: upload transfer: %w", err)
	}
	if resp.IsError() {
		return "", TagUnexpectedError, fmt.Errorf("connectchat: upload transfer returned status %d", resp.StatusCode())
	}

	_, err = c.participant.CompleteAttachmentUpload(ctx, &connectparticipant.CompleteAttachmentUploadInput{
		AttachmentIds:   []string{aws.ToString(slot.AttachmentId)},
		ConnectionToken: aws.String(connectionToken),
		ClientToken:     aws.String(newClientToken()),
	})
	if err != nil {
		return "", classify(err), fmt.Errorf("connectchat: complete attachment upload: %w", err)
	}

	return aws.ToString(slot.AttachmentId), TagOK, nil
}
