package sendtemplate

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/require"
)

type mockSender struct {
	originationID string
	payload       map[string]any
	messageID     string
	err           error
}

func (m *mockSender) SendTemplate(_ context.Context, originationID string, payload map[string]any) (string, error) {
	m.originationID = originationID
	m.payload = payload
	if m.err != nil {
		return "", m.err
	}
	return m.messageID, nil
}

type mockParams struct {
	value string
	err   error
}

func (m *mockParams) GetParameter(_ context.Context, _ string) (string, error) {
	return m.value, m.err
}

const templateConfig = `{
	"instance_id": "inst-1",
	"contact_flow_id": "flow-1",
	"ORIGINATION_PHONE_NUMBER_ID": "pn-config",
	"message": {
		"messaging_product": "whatsapp",
		"type": "template",
		"template": {
			"name": "order_update",
			"language": {"code": "es_MX"},
			"components": [{"type": "body", "parameters": []}]
		}
	}
}`

func flowEvent(attributes map[string]string) events.ConnectEvent {
	return events.ConnectEvent{
		Details: events.ConnectDetails{
			ContactData: events.ConnectContactData{Attributes: attributes},
		},
	}
}

func TestNewHandler_Validates(t *testing.T) {
	_, err := NewHandler(nil, &mockParams{}, "cfg", "")
	require.Error(t, err)

	_, err = NewHandler(&mockSender{}, nil, "cfg", "")
	require.Error(t, err)

	_, err = NewHandler(&mockSender{}, &mockParams{}, "", "")
	require.Error(t, err)
}

func TestHandle_SendsTemplateWithParameters(t *testing.T) {
	sender := &mockSender{messageID: "msg-1"}
	h, err := NewHandler(sender, &mockParams{value: templateConfig}, "cfg", "pn-env")
	require.NoError(t, err)

	resp, err := h.Handle(context.Background(), flowEvent(map[string]string{
		"phoneNumber": "5215500000001",
		"input1":      "order 42",
		"input2":      "tomorrow",
	}))
	require.NoError(t, err)
	require.Equal(t, "OK", resp.Result)
	require.Equal(t, "msg-1", resp.MessageID)

	// config-level origination overrides the environment default
	require.Equal(t, "pn-config", sender.originationID)
	require.Equal(t, "5215500000001", sender.payload["to"])

	template := sender.payload["template"].(map[string]any)
	body := template["components"].([]any)[0].(map[string]any)
	require.Equal(t, []any{
		map[string]any{"type": "text", "text": "order 42"},
		map[string]any{"type": "text", "text": "tomorrow"},
	}, body["parameters"])
}

func TestHandle_FallsBackToWhatsappAttributeAndEnvOrigination(t *testing.T) {
	cfg := `{"instance_id":"i","contact_flow_id":"f","message":{"type":"template","template":{"name":"n","components":[]}}}`
	sender := &mockSender{messageID: "msg-2"}
	h, err := NewHandler(sender, &mockParams{value: cfg}, "cfg", "pn-env")
	require.NoError(t, err)

	resp, err := h.Handle(context.Background(), flowEvent(map[string]string{
		"whatsapp": "5215500000002",
		"input1":   "hi",
	}))
	require.NoError(t, err)
	require.Equal(t, "OK", resp.Result)
	require.Equal(t, "pn-env", sender.originationID)
	require.Equal(t, "5215500000002", sender.payload["to"])

	// a body component is appended when the template has none
	template := sender.payload["template"].(map[string]any)
	components := template["components"].([]any)
	require.Len(t, components, 1)
	require.Equal(t, "body", components[0].(map[string]any)["type"])
}

func TestHandle_ErrorEnvelopes(t *testing.T) {
	tests := []struct {
		name       string
		params     *mockParams
		sender     *mockSender
		attributes map[string]string
		contains   string
	}{
		{
			name:     "config load failure",
			params:   &mockParams{err: errors.New("not found")},
			sender:   &mockSender{},
			contains: "configuration",
		},
		{
			name:     "no message template",
			params:   &mockParams{value: `{"instance_id":"i","contact_flow_id":"f"}`},
			sender:   &mockSender{},
			contains: "message template",
		},
		{
			name:       "no phone number",
			params:     &mockParams{value: templateConfig},
			sender:     &mockSender{},
			attributes: map[string]string{"input1": "x"},
			contains:   "phone number",
		},
		{
			name:       "send failure",
			params:     &mockParams{value: templateConfig},
			sender:     &mockSender{err: fmt.Errorf("whatsapp: send message: throttled")},
			attributes: map[string]string{"phoneNumber": "521"},
			contains:   "throttled",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h, err := NewHandler(tc.sender, tc.params, "cfg", "pn-env")
			require.NoError(t, err)

			resp, err := h.Handle(context.Background(), flowEvent(tc.attributes))
			require.NoError(t, err)
			require.Equal(t, "ERROR", resp.Result)
			require.Contains(t, resp.Message, tc.contains)
		})
	}
}

func TestHandle_MissingOrigination(t *testing.T) {
	cfg := `{"instance_id":"i","contact_flow_id":"f","message":{"type":"template"}}`
	h, err := NewHandler(&mockSender{}, &mockParams{value: cfg}, "cfg", "")
	require.NoError(t, err)

	resp, err := h.Handle(context.Background(), flowEvent(map[string]string{"phoneNumber": "521"}))
	require.NoError(t, err)
	require.Equal(t, "ERROR", resp.Result)
	require.Contains(t, resp.Message, "ORIGINATION_PHONE_NUMBER_ID")
}
