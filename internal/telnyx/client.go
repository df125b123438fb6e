package telnyx

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"call-router/internal/config"
)

// CallController is the provider-agnostic call-control contract used by
// business logic.
//
// Rules:
// - No provider HTTP calls outside this adapter.
// - A non-2xx carrier response is an error return, never a panic; callers
//   log and degrade (usually by speaking an apology to the affected party).
type CallController interface {
	Answer(ctx context.Context, callID string) error
	Speak(ctx context.Context, callID, text string) error
	Play(ctx context.Context, callID, audioURL string) error
	GatherUsingSpeak(ctx context.Context, callID, prompt string, opts GatherOptions) error
	GatherUsingAudio(ctx context.Context, callID, audioURL string, opts GatherOptions) error
	StartRecording(ctx context.Context, callID string) error
	Bridge(ctx context.Context, callID, otherCallID string) error
	Hangup(ctx context.Context, callID string) error
	Dial(ctx context.Context, req DialRequest) (DialResult, error)
}

// GatherOptions mirror the carrier's digit-gather parameters.
type GatherOptions struct {
	MinDigits        int
	MaxDigits        int
	TimeoutMillis    int
	TerminatingDigit string
}

func (o GatherOptions) withDefaults() GatherOptions {
	out := o
	if out.MinDigits <= 0 {
		out.MinDigits = 1
	}
	if out.MaxDigits <= 0 {
		out.MaxDigits = out.MinDigits
	}
	if out.TimeoutMillis <= 0 {
		out.TimeoutMillis = 15000
	}
	if out.TerminatingDigit == "" {
		out.TerminatingDigit = "#"
	}
	return out
}

type DialRequest struct {
	To string
	// From defaults to the configured caller id.
	From string
}

type DialResult struct {
	CallControlID string
}

// Client talks to the Telnyx Call Control v2 API.
type Client struct {
	http *resty.Client
	cfg  config.TelnyxConfig

	webhookURL string
}

func NewClient(cfg config.TelnyxConfig, webhookURL string) *Client {
	http := resty.New().
		SetBaseURL(cfg.APIBaseURL).
		SetAuthToken(cfg.APIKey).
		SetTimeout(15 * time.Second).
		SetHeader("Content-Type", "application/json")

	return &Client{http: http, cfg: cfg, webhookURL: webhookURL}
}

func (c *Client) action(ctx context.Context, callID, name string, body map[string]any) error {
	if callID == "" {
		return fmt.Errorf("telnyx: %s: call id required", name)
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		Post(fmt.Sprintf("/calls/%s/actions/%s", callID, name))
	if err != nil {
		return fmt.Errorf("telnyx: %s %s: %w", name, callID, err)
	}
	if resp.IsError() {
		return fmt.Errorf("telnyx: %s %s: status %d: %s", name, callID, resp.StatusCode(), resp.String())
	}
	return nil
}

func (c *Client) Answer(ctx context.Context, callID string) error {
	return c.action(ctx, callID, "answer", map[string]any{})
}

func (c *Client) Speak(ctx context.Context, callID, text string) error {
	return c.action(ctx, callID, "speak", map[string]any{
		"payload":  text,
		"voice":    c.cfg.Voice,
		"language": c.cfg.Language,
	})
}

func (c *Client) Play(ctx context.Context, callID, audioURL string) error {
	return c.action(ctx, callID, "playback_start", map[string]any{
		"audio_url": audioURL,
	})
}

func (c *Client) GatherUsingSpeak(ctx context.Context, callID, prompt string, opts GatherOptions) error {
	opts = opts.withDefaults()
	return c.action(ctx, callID, "gather_using_speak", map[string]any{
		"payload":           prompt,
		"voice":             c.cfg.Voice,
		"language":          c.cfg.Language,
		"minimum_digits":    opts.MinDigits,
		"maximum_digits":    opts.MaxDigits,
		"timeout_millis":    opts.TimeoutMillis,
		"terminating_digit": opts.TerminatingDigit,
	})
}

func (c *Client) GatherUsingAudio(ctx context.Context, callID, audioURL string, opts GatherOptions) error {
	opts = opts.withDefaults()
	return c.action(ctx, callID, "gather_using_audio", map[string]any{
		"audio_url":         audioURL,
		"minimum_digits":    opts.MinDigits,
		"maximum_digits":    opts.MaxDigits,
		"timeout_millis":    opts.TimeoutMillis,
		"terminating_digit": opts.TerminatingDigit,
	})
}

func (c *Client) StartRecording(ctx context.Context, callID string) error {
	return c.action(ctx, callID, "record_start", map[string]any{
		"format":   "mp3",
		"channels": "single",
	})
}

func (c *Client) Bridge(ctx context.Context, callID, otherCallID string) error {
	if otherCallID == "" {
		return fmt.Errorf("telnyx: bridge %s: other call id required", callID)
	}
	return c.action(ctx, callID, "bridge", map[string]any{
		"call_control_id": otherCallID,
	})
}

func (c *Client) Hangup(ctx context.Context, callID string) error {
	return c.action(ctx, callID, "hangup", map[string]any{})
}

type dialResponse struct {
	Data struct {
		CallControlID string `json:"call_control_id"`
	} `json:"data"`
}

// Dial creates an outbound call leg. Events for the new leg arrive on the
// same webhook as inbound traffic.
func (c *Client) Dial(ctx context.Context, req DialRequest) (DialResult, error) {
	if req.To == "" {
		return DialResult{}, fmt.Errorf("telnyx: dial: destination required")
	}
	from := req.From
	if from == "" {
		from = c.cfg.FromNumber
	}

	body := map[string]any{
		"connection_id":               c.cfg.ConnectionID,
		"to":                          req.To,
		"from":                        from,
		"answering_machine_detection": "disabled",
		"timeout_secs":                45,
	}
	if c.webhookURL != "" {
		body["webhook_url"] = c.webhookURL
	}

	var out dialResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		Post("/calls")
	if err != nil {
		return DialResult{}, fmt.Errorf("telnyx: dial %s: %w", req.To, err)
	}
	if resp.IsError() {
		return DialResult{}, fmt.Errorf("telnyx: dial %s: status %d: %s", req.To, resp.StatusCode(), resp.String())
	}
	if out.Data.CallControlID == "" {
		return DialResult{}, fmt.Errorf("telnyx: dial %s: response missing call_control_id", req.To)
	}
	return DialResult{CallControlID: out.Data.CallControlID}, nil
}
