package avatar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
)

const DefaultSessionURL = "https://api.anam.ai/v1/auth/session-token"

var ErrMissingAPIKey = errors.New("avatar api key is required")

// Credential is a short-lived token that authorizes one render session.
type Credential struct {
	SessionToken string `json:"sessionToken"`
}

type personaConfig struct {
	AvatarID               string `json:"avatarId"`
	EnableAudioPassthrough bool   `json:"enableAudioPassthrough"`
}

type sessionRequest struct {
	PersonaConfig personaConfig `json:"personaConfig"`
}

// SessionIssuer exchanges an API key for render session credentials.
type SessionIssuer struct {
	apiKey     string
	url        string
	httpClient *http.Client
}

type SessionIssuerOption func(*SessionIssuer)

func WithSessionURL(url string) SessionIssuerOption {
	return func(s *SessionIssuer) {
		s.url = url
	}
}

func WithHTTPClient(client *http.Client) SessionIssuerOption {
	return func(s *SessionIssuer) {
		s.httpClient = client
	}
}

func NewSessionIssuer(apiKey string, opts ...SessionIssuerOption) *SessionIssuer {
	s := &SessionIssuer{
		apiKey:     apiKey,
		url:        DefaultSessionURL,
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue requests a credential for the given avatar with audio passthrough
// enabled, so the avatar lip-syncs to audio it is sent instead of speaking
// on its own.
func (s *SessionIssuer) Issue(ctx context.Context, avatarID string) (Credential, error) {
	ctx, span := tracer.Start(ctx, "issue avatar session")
	defer span.End()
	span.SetAttributes(attribute.String("avatar.id", avatarID))

	if s.apiKey == "" {
		span.RecordError(ErrMissingAPIKey)
		return Credential{}, ErrMissingAPIKey
	}

	body, err := json.Marshal(sessionRequest{PersonaConfig: personaConfig{
		AvatarID:               avatarID,
		EnableAudioPassthrough: true,
	}})
	if err != nil {
		err = fmt.Errorf("error marshalling JSON: %w", err)
		span.RecordError(err)
		return Credential{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		err = fmt.Errorf("error creating HTTP request: %w", err)
		span.RecordError(err)
		return Credential{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		err = fmt.Errorf("error sending request: %w", err)
		span.RecordError(err)
		return Credential{}, err
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		if errorBody, err := io.ReadAll(resp.Body); err == nil {
			span.SetAttributes(attribute.String("response.error", string(errorBody)))
		}
		err := fmt.Errorf("non-OK HTTP status: %s", resp.Status)
		span.RecordError(err)
		return Credential{}, err
	}

	var credential Credential
	if err := json.NewDecoder(resp.Body).Decode(&credential); err != nil {
		err = fmt.Errorf("error decoding response: %w", err)
		span.RecordError(err)
		return Credential{}, err
	}
	if credential.SessionToken == "" {
		err := fmt.Errorf("empty session token")
		span.RecordError(err)
		return Credential{}, err
	}
	return credential, nil
}
