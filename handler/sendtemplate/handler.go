// Package sendtemplate adapts Amazon Connect contact-flow invocations
// into outbound WhatsApp template messages. The flow never sees an
// error; every outcome is reported through the result envelope.
package sendtemplate

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"

	"whatsapp-connect-chat/internal/integrations/paramstore"
)

// attribute names the contact flow populates
var inputAttributes = []string{"input1", "input2", "input3", "input4"}

// TemplateSender delivers a raw template payload to one recipient.
type TemplateSender interface {
	SendTemplate(ctx context.Context, originationID string, payload map[string]any) (string, error)
}

type Handler struct {
	sender TemplateSender
	params paramstore.Getter
	// configName addresses the SSM parameter carrying the template
	// payload and optional origination override.
	configName string
	// originationID is the environment-level default, overridable from
	// the config parameter.
	originationID string
	logger        *slog.Logger
}

func NewHandler(sender TemplateSender, params paramstore.Getter, configName, originationID string) (*Handler, error) {
	if sender == nil {
		return nil, errors.New("sendtemplate: template sender must not be nil")
	}
	if params == nil {
		return nil, errors.New("sendtemplate: parameter getter must not be nil")
	}
	if configName == "" {
		return nil, errors.New("sendtemplate: config parameter name must not be empty")
	}
	return &Handler{
		sender:        sender,
		params:        params,
		configName:    configName,
		originationID: originationID,
		logger:        slog.Default(),
	}, nil
}

type Response struct {
	Result    string `json:"result"`
	MessageID string `json:"messageId,omitempty"`
	Message   string `json:"message,omitempty"`
}

func errorResponse(message string) Response {
	return Response{Result: "ERROR", Message: message}
}

func (h *Handler) Handle(ctx context.Context, event events.ConnectEvent) (Response, error) {
	cfg, err := paramstore.LoadConfig(ctx, h.params, h.configName)
	if err != nil {
		h.logger.Error("loading template config failed", "parameter", h.configName, "err", err)
		return errorResponse("could not load configuration"), nil
	}
	if len(cfg.Message) == 0 {
		return errorResponse("configuration carries no message template"), nil
	}

	originationID := cfg.OriginationPhoneNumberID
	if originationID == "" {
		originationID = h.originationID
	}
	if originationID == "" {
		return errorResponse("ORIGINATION_PHONE_NUMBER_ID is not set"), nil
	}

	attributes := event.Details.ContactData.Attributes
	phoneNumber := attributes["phoneNumber"]
	if phoneNumber == "" {
		phoneNumber = attributes["whatsapp"]
	}
	if phoneNumber == "" {
		return errorResponse("no phone number found in contact attributes (phoneNumber or whatsapp)"), nil
	}

	var payload map[string]any
	if err := json.Unmarshal(cfg.Message, &payload); err != nil {
		h.logger.Error("malformed message template", "parameter", h.configName, "err", err)
		return errorResponse("malformed message template"), nil
	}
	payload["to"] = phoneNumber
	applyBodyParameters(payload, templateParameters(attributes))

	messageID, err := h.sender.SendTemplate(ctx, originationID, payload)
	if err != nil {
		h.logger.Error("template send failed", "to", phoneNumber, "err", err)
		return errorResponse(err.Error()), nil
	}

	h.logger.Info("template sent", "to", phoneNumber, "messageId", messageID)
	return Response{Result: "OK", MessageID: messageID}, nil
}

// templateParameters builds the body parameter list from the input
// attributes, skipping absent ones.
func templateParameters(attributes map[string]string) []any {
	params := make([]any, 0, len(inputAttributes))
	for _, name := range inputAttributes {
		if value, ok := attributes[name]; ok {
			params = append(params, map[string]any{"type": "text", "text": value})
		}
	}
	return params
}

// applyBodyParameters sets the parameters on the template's body
// component, appending one when the template has none and parameters
// exist.
func applyBodyParameters(payload map[string]any, params []any) {
	template, _ := payload["template"].(map[string]any)
	if template == nil {
		return
	}
	components, _ := template["components"].([]any)
	for _, c := range components {
		if component, ok := c.(map[string]any); ok && component["type"] == "body" {
			component["parameters"] = params
			return
		}
	}
	if len(params) > 0 {
		template["components"] = append(components, map[string]any{
			"type":       "body",
			"parameters": params,
		})
	}
}
