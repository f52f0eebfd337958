// Package invoke fans work out to sibling functions: asynchronous turn
// dispatch to the event handler, and synchronous helper calls for audio
// conversion and transcription.
package invoke

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"
)

// lambdaAPI is the minimal function-invocation interface required by
// Dispatcher.
type lambdaAPI interface {
	Invoke(ctx context.Context, in *lambda.InvokeInput, optFns ...func(*lambda.Options)) (*lambda.InvokeOutput, error)
}

// Dispatcher invokes the downstream functions of the pipeline. The
// converter and transcriber names are optional; when blank the
// corresponding helper degrades to a no-op.
type Dispatcher struct {
	api             lambdaAPI
	handlerName     string
	converterName   string
	transcriberName string
	logger          *slog.Logger
}

func NewDispatcher(api lambdaAPI, handlerName, converterName, transcriberName string) (*Dispatcher, error) {
	if api == nil {
		return nil, errors.New("invoke: lambda api must not be nil")
	}
	return &Dispatcher{
		api:             api,
		handlerName:     handlerName,
		converterName:   converterName,
		transcriberName: transcriberName,
		logger:          slog.Default(),
	}, nil
}

// helperResult is the response envelope shared by the converter and
// transcriber functions.
type helperResult struct {
	StatusCode        int    `json:"statusCode"`
	ConvertedLocation string `json:"converted_location"`
	Transcription     string `json:"transcription"`
	Error             string `json:"error"`
}

// DispatchTurn hands one aggregated turn to the event handler as a
// fire-and-forget invocation.
func (d *Dispatcher) DispatchTurn(ctx context.Context, turn any) error {
	if d.handlerName == "" {
		return errors.New("invoke: event handler function name is not configured")
	}
	payload, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("invoke: marshal turn: %w", err)
	}
	_, err = d.api.Invoke(ctx, &lambda.InvokeInput{
		FunctionName:   aws.String(d.handlerName),
		InvocationType: lambdatypes.InvocationTypeEvent,
		Payload:        payload,
	})
	if err != nil {
		return fmt.Errorf("invoke: dispatch turn: %w", err)
	}
	return nil
}

// ConvertToWAV asks the converter function to transcode the audio at
// the given object location. Best-effort: an unconfigured converter,
// an invocation failure or a file that needed no conversion all yield
// an empty location and no error.
func (d *Dispatcher) ConvertToWAV(ctx context.Context, location string) string {
	if d.converterName == "" {
		d.logger.Warn("audio converter function not configured, skipping conversion")
		return ""
	}
	result, err := d.callHelper(ctx, d.converterName, location)
	if err != nil {
		d.logger.Error("audio conversion failed", "location", location, "err", err)
		return ""
	}
	if result.ConvertedLocation == "" {
		d.logger.Info("audio file did not require conversion", "location", location)
	}
	return result.ConvertedLocation
}

// Transcribe asks the transcriber function for the text of the audio at
// the given object location. Best-effort like ConvertToWAV.
func (d *Dispatcher) Transcribe(ctx context.Context, location string) string {
	if d.transcriberName == "" {
		d.logger.Warn("transcriber function not configured, skipping transcription")
		return ""
	}
	result, err := d.callHelper(ctx, d.transcriberName, location)
	if err != nil {
		d.logger.Error("transcription failed", "location", location, "err", err)
		return ""
	}
	return result.Transcription
}

func (d *Dispatcher) callHelper(ctx context.Context, functionName, location string) (*helperResult, error) {
	payload, err := json.Marshal(map[string]string{"location": location})
	if err != nil {
		return nil, fmt.Errorf("invoke: marshal helper request: %w", err)
	}
	out, err := d.api.Invoke(ctx, &lambda.InvokeInput{
		FunctionName:   aws.String(functionName),
		InvocationType: lambdatypes.InvocationTypeRequestResponse,
		Payload:        payload,
	})
	if err != nil {
		return nil, fmt.Errorf("invoke: call %s: %w", functionName, err)
	}
	if out.FunctionError != nil {
		return nil, fmt.Errorf("invoke: %s raised %s", functionName, aws.ToString(out.FunctionError))
	}
	var result helperResult
	if err := json.Unmarshal(out.Payload, &result); err != nil {
		return nil, fmt.Errorf("invoke: decode %s response: %w", functionName, err)
	}
	if result.StatusCode != 200 {
		return nil, fmt.Errorf("invoke: %s returned status %d: %s", functionName, result.StatusCode, result.Error)
	}
	return &result, nil
}
