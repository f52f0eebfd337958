// Package connectchat wraps the Amazon Connect chat protocol: opening
// sessions with an optional streaming side-channel, sending text turns
// and uploading attachments, with a uniform one-shot renew-on-expiry
// policy layered on top.
package connectchat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/connect"
	connecttypes "github.com/aws/aws-sdk-go-v2/service/connect/types"
	"github.com/aws/aws-sdk-go-v2/service/connectparticipant"
	participanttypes "github.com/aws/aws-sdk-go-v2/service/connectparticipant/types"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

// supportedContentTypes lists the messaging content types a session
// accepts, matching the contact-center configuration.
var supportedContentTypes = []string{
	"text/plain",
	"text/markdown",
	"application/json",
	"application/vnd.amazonaws.connect.message.interactive",
	"application/vnd.amazonaws.connect.message.interactive.response",
}

// connectAPI is the minimal Connect control-plane interface required by
// Client.
type connectAPI interface {
	StartChatContact(ctx context.Context, in *connect.StartChatContactInput, optFns ...func(*connect.Options)) (*connect.StartChatContactOutput, error)
	StartContactStreaming(ctx context.Context, in *connect.StartContactStreamingInput, optFns ...func(*connect.Options)) (*connect.StartContactStreamingOutput, error)
}

// participantAPI is the minimal participant data-plane interface
// required by Client.
type participantAPI interface {
	CreateParticipantConnection(ctx context.Context, in *connectparticipant.CreateParticipantConnectionInput, optFns ...func(*connectparticipant.Options)) (*connectparticipant.CreateParticipantConnectionOutput, error)
	SendMessage(ctx context.Context, in *connectparticipant.SendMessageInput, optFns ...func(*connectparticipant.Options)) (*connectparticipant.SendMessageOutput, error)
	StartAttachmentUpload(ctx context.Context, in *connectparticipant.StartAttachmentUploadInput, optFns ...func(*connectparticipant.Options)) (*connectparticipant.StartAttachmentUploadOutput, error)
	CompleteAttachmentUpload(ctx context.Context, in *connectparticipant.CompleteAttachmentUploadInput, optFns ...func(*connectparticipant.Options)) (*connectparticipant.CompleteAttachmentUploadOutput, error)
}

var newClientToken = func() string {
	return uuid.NewString()
}

// Session holds the credentials of one open chat session.
type Session struct {
	ContactID        string
	ParticipantToken string
	ConnectionToken  string
}

// Client is the chat-backend session client.
type Client struct {
	connect       connectAPI
	participant   participantAPI
	http          *resty.Client
	instanceID    string
	contactFlowID string
	chatDuration  time.Duration
	topicARN      string
	logger        *slog.Logger
}

// NewClient creates a session client. topicARN is optional; when empty
// the streaming side-channel is skipped.
func NewClient(connectClient connectAPI, participantClient participantAPI, httpClient *resty.Client, instanceID, contactFlowID string, chatDuration time.Duration, topicARN string) (*Client, error) {
	if connectClient == nil || participantClient == nil {
		return nil, errors.New("connectchat: connect and participant apis must not be nil")
	}
	if instanceID == "" || contactFlowID == "" {
		return nil, errors.New("connectchat: instance id and contact flow id must not be empty")
	}
	if httpClient == nil {
		httpClient = resty.New().SetTimeout(30 * time.Second)
	}
	if chatDuration <= 0 {
		chatDuration = time.Hour
	}
	return &Client{
		connect:       connectClient,
		participant:   participantClient,
		http:          httpClient,
		instanceID:    instanceID,
		contactFlowID: contactFlowID,
		chatDuration:  chatDuration,
		topicARN:      topicARN,
		logger:        slog.Default(),
	}, nil
}

// StartChatAndStream opens a new chat session carrying text as the
// initial message, starts the streaming side-channel when a topic is
// configured, and establishes a participant connection. Failures here
// are never retried internally; they propagate to the caller.
func (c *Client) StartChatAndStream(ctx context.Context, text, customerID, channel, name, systemNumber string) (*Session, error) {
	if text == "" {
		text = "New conversation with attachment"
	}
	if name == "" {
		name = "NN"
	}

	started, err := c.connect.StartChatContact(ctx, &connect.StartChatContactInput{
		InstanceId:    aws.String(c.instanceID),
		ContactFlowId: aws.String(c.contactFlowID),
		Attributes: map[string]string{
			"Channel":      channel,
			"customerId":   customerID,
			"customerName": name,
			"systemNumber": systemNumber,
		},
		ParticipantDetails: &connecttypes.ParticipantDetails{DisplayName: aws.String(name)},
		InitialMessage: &connecttypes.ChatMessage{
			ContentType: aws.String("text/plain"),
			Content:     aws.String(text),
		},
		ChatDurationInMinutes:          aws.Int32(int32(c.chatDuration / time.Minute)),
		SupportedMessagingContentTypes: supportedContentTypes,
		ClientToken:                    aws.String(newClientToken()),
	})
	if err != nil {
		return nil, fmt.Errorf("connectchat: start chat contact: %w", err)
	}

	c.startStream(ctx, *started.ContactId)

	conn, err := c.participant.CreateParticipantConnection(ctx, &connectparticipant.CreateParticipantConnectionInput{
		Type:               []participanttypes.ConnectionType{participanttypes.ConnectionTypeConnectionCredentials},
		ParticipantToken:   started.ParticipantToken,
		ConnectParticipant: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("connectchat: create participant connection: %w", err)
	}
	if conn.ConnectionCredentials == nil || conn.ConnectionCredentials.ConnectionToken == nil {
		return nil, errors.New("connectchat: connection credentials missing from response")
	}

	return &Session{
		ContactID:        aws.ToString(started.ContactId),
		ParticipantToken: aws.ToString(started.ParticipantToken),
		ConnectionToken:  aws.ToString(conn.ConnectionCredentials.ConnectionToken),
	}, nil
}

// startStream subscribes the session to the notification topic. A
// missing topic is a logged skip, and a subscription failure is
// best-effort: the chat works without the side-channel.
func (c *Client) startStream(ctx context.Context, contactID string) {
	if c.topicARN == "" {
		c.logger.Warn("no topic configured, skipping contact streaming", "contactId", contactID)
		return
	}
	_, err := c.connect.StartContactStreaming(ctx, &connect.StartContactStreamingInput{
		InstanceId: aws.String(c.instanceID),
		ContactId:  aws.String(contactID),
		ChatStreamingConfiguration: &connecttypes.ChatStreamingConfiguration{
			StreamingEndpointArn: aws.String(c.topicARN),
		},
		ClientToken: aws.String(newClientToken()),
	})
	if err != nil {
		c.logger.Error("start contact streaming failed", "contactId", contactID, "err", err)
	}
}

// SendText sends a plain-text turn over an existing connection and
// classifies the outcome. No retries happen at this level.
func (c *Client) SendText(ctx context.Context, text, connectionToken string) (ErrorTag, error) {
	_, err := c.participant.SendMessage(ctx, &connectparticipant.SendMessageInput{
		ContentType:     aws.String("text/plain"),
		Content:         aws.String(text),
		ConnectionToken: aws.String(connectionToken),
		ClientToken:     aws.String(newClientToken()),
	})
	if err != nil {
		return classify(err), fmt.Errorf("connectchat: send message: %w", err)
	}
	return TagOK, nil
}
