package paramstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/require"
)

// fakeAPI is a simple fake implementing ssmAPI for tests.
type fakeAPI struct {
	getOut *ssm.GetParameterOutput
	getErr error
	calls  int
}

func (f *fakeAPI) GetParameter(_ context.Context, _ *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.calls++
	return f.getOut, f.getErr
}

func strPtr(s string) *string { return &s }

func TestGetParameter_HappyPath(t *testing.T) {
	api := &fakeAPI{getOut: &ssm.GetParameterOutput{Parameter: &types.Parameter{
		Name: strPtr("p"), Value: strPtr(`{"k":"v"}`),
	}}}
	client, err := New(api)
	require.NoError(t, err)
	v, err := client.GetParameter(context.Background(), "p")
	require.NoError(t, err)
	require.Equal(t, `{"k":"v"}`, v)
}

func TestGetParameter_SecondReadServedFromCache(t *testing.T) {
	api := &fakeAPI{getOut: &ssm.GetParameterOutput{Parameter: &types.Parameter{
		Name: strPtr("p"), Value: strPtr("cached"),
	}}}
	client, err := New(api)
	require.NoError(t, err)

	_, err = client.GetParameter(context.Background(), "p")
	require.NoError(t, err)
	v, err := client.GetParameter(context.Background(), "p")
	require.NoError(t, err)
	require.Equal(t, "cached", v)
	require.Equal(t, 1, api.calls)
}

func TestGetParameter_MissingValue(t *testing.T) {
	api := &fakeAPI{getOut: &ssm.GetParameterOutput{Parameter: &types.Parameter{Name: strPtr("p"), Value: nil}}}
	client, err := New(api)
	require.NoError(t, err)
	_, err = client.GetParameter(context.Background(), "p")
	require.Error(t, err)
	require.Contains(t, err.Error(), "missing value")
}

func TestGetParameter_ApiError(t *testing.T) {
	api := &fakeAPI{getErr: errors.New("boom")}
	client, err := New(api)
	require.NoError(t, err)
	_, err = client.GetParameter(context.Background(), "p")
	require.Error(t, err)
	require.ErrorContains(t, err, "boom")
}

func TestGetParameter_ClientNotInitialized(t *testing.T) {
	_, err := (&Client{}).GetParameter(context.Background(), "p")
	require.Error(t, err)
	require.Contains(t, err.Error(), "not initialized")
}

func TestGetParameter_EmptyName(t *testing.T) {
	api := &fakeAPI{}
	client, err := New(api)
	require.NoError(t, err)
	_, err = client.GetParameter(context.Background(), "  ")
	require.Error(t, err)
	require.Contains(t, err.Error(), "required")
}

func TestNew_NilAPI(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "must not be nil")
}

type staticGetter string

func (s staticGetter) GetParameter(context.Context, string) (string, error) {
	return string(s), nil
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(context.Background(), staticGetter(`{
		"instance_id": "inst-1",
		"contact_flow_id": "flow-1",
		"chat_duration_minutes": 30,
		"ignore_reactions": "yes",
		"ignore_stickers": "no",
		"buffer_in_seconds": 20
	}`), "/whatsapp_eum_connect_chat/config")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	require.Equal(t, 30*time.Minute, cfg.ChatDuration())
	require.Equal(t, 20*time.Second, cfg.BufferWindow())
	require.True(t, cfg.ReactionsIgnored())
	require.False(t, cfg.StickersIgnored())
	require.Equal(t, "v23.0", cfg.APIVersion())
}

func TestLoadConfig_DurationAsString(t *testing.T) {
	cfg, err := LoadConfig(context.Background(), staticGetter(`{
		"instance_id": "inst-1",
		"contact_flow_id": "flow-1",
		"chat_duration_minutes": "45"
	}`), "p")
	require.NoError(t, err)
	require.Equal(t, 45*time.Minute, cfg.ChatDuration())
}

func TestLoadConfig_InvalidJSON(t *testing.T) {
	_, err := LoadConfig(context.Background(), staticGetter("not json"), "p")
	require.Error(t, err)
}

func TestConfigValidate_MissingRequired(t *testing.T) {
	cfg := &Config{InstanceID: "inst-1"}
	require.Error(t, cfg.Validate())
}
