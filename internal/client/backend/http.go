package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/arodchenko/inkwell/internal/client/models"
	"github.com/arodchenko/inkwell/internal/common"
	"github.com/arodchenko/inkwell/internal/logging"
	"github.com/google/uuid"
)

// HTTPClient implements Client against the Inkwell REST API.
//
// The bearer token is held internally and applied to every request once
// installed, the way a browser client keeps it in its request layer.
// Login and Register install the token they receive themselves, so the
// caller only has to persist it.
type HTTPClient struct {
	baseURL string
	http    *http.Client
	log     logging.Logger

	mu    sync.RWMutex
	token string
}

func NewHTTPClient(baseURL string, timeout time.Duration, log logging.Logger) *HTTPClient {
	if log == nil {
		log = logging.NewNop()
	}
	return &HTTPClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		log:     log.With("component", "backend"),
	}
}

// Wire format of the identity endpoints. Users travel inside a "user"
// envelope; the issued token rides along on login/register responses.
type userPayload struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Image    string `json:"image,omitempty"`
	Token    string `json:"token,omitempty"`
}

type userEnvelope struct {
	User *userPayload `json:"user"`
}

type errorEnvelope struct {
	Errors map[string][]string `json:"errors"`
}

func (p *userPayload) toModel() *models.User {
	return &models.User{
		ID:       p.ID,
		Username: p.Username,
		Email:    p.Email,
		Image:    p.Image,
	}
}

func (s *HTTPClient) SetCredential(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

func (s *HTTPClient) credential() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Login exchanges an email/password pair for an identity and its token.
func (s *HTTPClient) Login(ctx context.Context, email string, password []byte) (*models.User, string, error) {
	body := map[string]any{
		"user": map[string]string{"email": email, "password": string(password)},
	}

	var env userEnvelope
	if err := s.do(ctx, http.MethodPost, "/api/users/login", body, &env); err != nil {
		if errors.Is(err, ErrUnauthorized) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", err
	}

	if env.User == nil || env.User.Token == "" {
		return nil, "", fmt.Errorf("%w: malformed login response", ErrUnavailable)
	}

	s.SetCredential(env.User.Token)
	return env.User.toModel(), env.User.Token, nil
}

// Register creates a new account and signs it in.
func (s *HTTPClient) Register(ctx context.Context, fields models.RegistrationFields) (*models.User, string, error) {
	body := map[string]any{
		"user": map[string]string{
			"username": fields.Username,
			"email":    fields.Email,
			"password": string(fields.Password),
		},
	}

	var env userEnvelope
	if err := s.do(ctx, http.MethodPost, "/api/users", body, &env); err != nil {
		return nil, "", err
	}

	if env.User == nil || env.User.Token == "" {
		return nil, "", fmt.Errorf("%w: malformed register response", ErrUnavailable)
	}

	s.SetCredential(env.User.Token)
	return env.User.toModel(), env.User.Token, nil
}

// CurrentUser resolves the installed credential to an identity.
// A 200 response with a null user is a valid "no user" answer.
func (s *HTTPClient) CurrentUser(ctx context.Context) (*models.User, error) {
	var env userEnvelope
	if err := s.do(ctx, http.MethodGet, "/api/user", nil, &env); err != nil {
		return nil, err
	}
	if env.User == nil {
		return nil, nil
	}
	return env.User.toModel(), nil
}

// Logout revokes the credential on the server. The token stays installed;
// the session manager decides when to drop it locally.
func (s *HTTPClient) Logout(ctx context.Context) error {
	return s.do(ctx, http.MethodPost, "/api/users/logout", nil, nil)
}

func (s *HTTPClient) Close() error {
	s.http.CloseIdleConnections()
	return nil
}

// do performs one API request and maps the response onto the sentinel
// error taxonomy. out, when non-nil, receives the decoded JSON body.
func (s *HTTPClient) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(common.RequestIDHeaderName, uuid.NewString())
	if tok := s.credential(); tok != "" {
		req.Header.Set(common.AuthorizationHeaderName, common.AuthorizationScheme+" "+tok)
	}

	s.log.Debug(ctx, "api request", "method", method, "path", path)

	resp, err := s.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if err := s.mapStatus(resp); err != nil {
		return err
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding response: %v", ErrUnavailable, err)
	}
	return nil
}

// mapStatus translates a non-2xx response into the error taxonomy.
func (s *HTTPClient) mapStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	case resp.StatusCode == http.StatusUnprocessableEntity:
		var env errorEnvelope
		if err := json.NewDecoder(resp.Body).Decode(&env); err != nil || len(env.Errors) == 0 {
			return &ValidationError{Fields: map[string][]string{"request": {"is invalid"}}}
		}
		return &ValidationError{Fields: env.Errors}
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: %s", ErrUnavailable, resp.Status)
	default:
		return fmt.Errorf("api error: %s", resp.Status)
	}
}
