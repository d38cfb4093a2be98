package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	transcribePath = "/api/transcribe"
	healthPath     = "/api/health"

	probeTimeout = 5 * time.Second
)

// Remote calls a collaborator-owned transcription service over HTTP.
// The credential is optional: when empty, requests go out unauthenticated
// and no Authorization header is attached.
type Remote struct {
	endpoint   string
	credential string
	timeout    time.Duration
	client     *http.Client
	probing    *http.Client
	log        zerolog.Logger
}

// remoteResponse is the canonical transcription response body:
// {"transcription": "...", "success": true}. The legacy "text" field name
// is accepted as a fallback; nested data wrappers are not supported.
type remoteResponse struct {
	Transcription string `json:"transcription"`
	Text          string `json:"text"`
	Success       *bool  `json:"success"`
	Error         string `json:"error"`
	Message       string `json:"message"`
}

// NewRemote creates a client for the given endpoint base URL.
func NewRemote(endpoint, credential string, timeout time.Duration, log zerolog.Logger) *Remote {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Remote{
		endpoint:   strings.TrimRight(endpoint, "/"),
		credential: credential,
		timeout:    timeout,
		client:     &http.Client{Timeout: timeout},
		probing:    &http.Client{Timeout: probeTimeout},
		log:        log,
	}
}

// Name returns the backend name.
func (r *Remote) Name() string { return "remote" }

// Endpoint returns the configured base URL.
func (r *Remote) Endpoint() string { return r.endpoint }

// Transcribe uploads the audio blob as multipart form data and extracts
// the transcript from the response. Exactly one network exchange per
// attempt; every failure mode is folded into the returned Outcome:
// server-returned errors propagate the server message (or status code),
// transport failures and malformed requests get their own reasons.
func (r *Remote) Transcribe(ctx context.Context, audio []byte) Outcome {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("audio", "capture.wav")
	if err != nil {
		return failure(fmt.Sprintf("build request: %v", err))
	}
	if _, err := part.Write(audio); err != nil {
		return failure(fmt.Sprintf("build request: %v", err))
	}
	w.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint+transcribePath, &buf)
	if err != nil {
		return failure(fmt.Sprintf("build request: %v", err))
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	r.authorize(req)

	resp, err := r.client.Do(req)
	if err != nil {
		r.log.Warn().Err(err).Msg("transcription request got no response")
		return failure("no response from transcription service: " + err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return failure("read response: " + err.Error())
	}

	var parsed remoteResponse
	// Tolerate non-JSON bodies on error statuses.
	_ = json.Unmarshal(body, &parsed)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		reason := serverMessage(parsed)
		if reason == "" {
			reason = fmt.Sprintf("transcription failed: status %d", resp.StatusCode)
		}
		r.log.Warn().Int("status", resp.StatusCode).Str("reason", reason).Msg("transcription rejected")
		return failure(reason)
	}

	if parsed.Success != nil && !*parsed.Success {
		reason := serverMessage(parsed)
		if reason == "" {
			reason = "transcription rejected by server"
		}
		return failure(reason)
	}

	text := parsed.Transcription
	if text == "" {
		text = parsed.Text
	}
	return Outcome{Text: text, Succeeded: true}
}

// Probe performs a lightweight reachability check against the service
// health endpoint. Any HTTP response counts as reachable, 404 included
// (the endpoint may simply not implement health); only a transport-level
// failure with no response at all counts as unreachable.
func (r *Remote) Probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.endpoint+healthPath, nil)
	if err != nil {
		return false
	}
	r.authorize(req)

	resp, err := r.probing.Do(req)
	if err != nil {
		r.log.Debug().Err(err).Str("endpoint", r.endpoint).Msg("probe got no response")
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	r.log.Debug().Int("status", resp.StatusCode).Str("endpoint", r.endpoint).Msg("probe reachable")
	return true
}

// authorize attaches the bearer header only when a credential is present.
// An absent credential is an unauthenticated request, not an error.
func (r *Remote) authorize(req *http.Request) {
	if r.credential != "" {
		req.Header.Set("Authorization", "Bearer "+r.credential)
	}
}

func serverMessage(resp remoteResponse) string {
	if resp.Error != "" {
		return resp.Error
	}
	return resp.Message
}

func failure(reason string) Outcome {
	return Outcome{Succeeded: false, FailureReason: reason}
}
