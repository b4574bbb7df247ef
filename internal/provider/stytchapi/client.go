// Package stytchapi implementa provider.Client contra la API REST del
// proveedor de identidad hosteado (backend API, basic auth project/secret).
package stytchapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dropDatabas3/identsync/internal/provider"
)

const sessionMinutes = 60

type Client struct {
	BaseURL   string
	ProjectID string
	Secret    string

	http *http.Client
}

func New(baseURL, projectID, secret string) *Client {
	return &Client{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		ProjectID: projectID,
		Secret:    secret,
		http:      &http.Client{Timeout: 10 * time.Second},
	}
}

// apiError es el shape de error del proveedor.
type apiError struct {
	StatusCode   int    `json:"status_code"`
	ErrorType    string `json:"error_type"`
	ErrorMessage string `json:"error_message"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("provider api: %s (%d): %s", e.ErrorType, e.StatusCode, e.ErrorMessage)
}

// mapError traduce error_type del proveedor a los errores semánticos del core.
func mapError(e *apiError) error {
	switch e.ErrorType {
	case "reset_password", "breached_password":
		return provider.ErrResetRequired
	case "otp_code_not_found", "unable_to_auth_otp_code":
		return provider.ErrInvalidCode
	case "unauthorized_credentials", "invalid_credentials", "email_not_found":
		return provider.ErrInvalidCredentials
	case "weak_password":
		return provider.ErrWeakPassword
	case "webauthn_credential_not_found", "unable_to_auth_webauthn":
		return provider.ErrPasskeyFailed
	}
	return e
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.ProjectID, c.Secret)

	resp, err := c.http.Do(req)
	if err != nil {
		return &provider.ConnError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &provider.ConnError{Err: err}
	}
	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.ErrorType != "" {
			return mapError(&apiErr)
		}
		return &provider.ConnError{Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return &provider.ConnError{Err: err}
		}
	}
	return nil
}

// userEnvelope extrae el email primario del objeto user del proveedor.
type userEnvelope struct {
	UserID string `json:"user_id"`
	Emails []struct {
		Email string `json:"email"`
	} `json:"emails"`
}

func (u userEnvelope) primaryEmail() string {
	if len(u.Emails) > 0 {
		return u.Emails[0].Email
	}
	return ""
}

type authResponse struct {
	UserID       string       `json:"user_id"`
	SessionToken string       `json:"session_token"`
	User         userEnvelope `json:"user"`
}

func (r authResponse) result() provider.AuthResult {
	uid := r.UserID
	if uid == "" {
		uid = r.User.UserID
	}
	return provider.AuthResult{
		UserID:       uid,
		Email:        r.User.primaryEmail(),
		SessionToken: r.SessionToken,
	}
}

func (c *Client) SendOTP(ctx context.Context, channel provider.OTPChannel, destination string) (provider.OTPStart, error) {
	var path string
	in := map[string]any{"expiration_minutes": 5}
	switch channel {
	case provider.ChannelEmail:
		path = "/v1/otps/email/login_or_create"
		in["email"] = destination
	case provider.ChannelWhatsApp:
		path = "/v1/otps/whatsapp/login_or_create"
		in["phone_number"] = destination
	default:
		return provider.OTPStart{}, fmt.Errorf("unknown otp channel %q", channel)
	}

	var out struct {
		UserID  string `json:"user_id"`
		EmailID string `json:"email_id"`
		PhoneID string `json:"phone_id"`
	}
	if err := c.post(ctx, path, in, &out); err != nil {
		return provider.OTPStart{}, err
	}
	methodID := out.EmailID
	if methodID == "" {
		methodID = out.PhoneID
	}
	return provider.OTPStart{MethodID: methodID, UserID: out.UserID}, nil
}

func (c *Client) AuthenticateOTP(ctx context.Context, methodID, code string) (provider.AuthResult, error) {
	in := map[string]any{
		"method_id":                methodID,
		"code":                     code,
		"session_duration_minutes": sessionMinutes,
	}
	var out authResponse
	if err := c.post(ctx, "/v1/otps/authenticate", in, &out); err != nil {
		return provider.AuthResult{}, err
	}
	return out.result(), nil
}

func (c *Client) AuthenticatePassword(ctx context.Context, email, password string) (provider.AuthResult, error) {
	in := map[string]any{
		"email":                    email,
		"password":                 password,
		"session_duration_minutes": sessionMinutes,
	}
	var out authResponse
	if err := c.post(ctx, "/v1/passwords/authenticate", in, &out); err != nil {
		return provider.AuthResult{}, err
	}
	return out.result(), nil
}

func (c *Client) StrengthCheck(ctx context.Context, email, password string) (provider.StrengthResult, error) {
	in := map[string]any{"email": email, "password": password}
	var out struct {
		ValidPassword bool `json:"valid_password"`
		Feedback      struct {
			Warning     string   `json:"warning"`
			Suggestions []string `json:"suggestions"`
		} `json:"feedback"`
	}
	if err := c.post(ctx, "/v1/passwords/strength_check", in, &out); err != nil {
		return provider.StrengthResult{}, err
	}
	fb := out.Feedback.Warning
	if fb == "" && len(out.Feedback.Suggestions) > 0 {
		fb = out.Feedback.Suggestions[0]
	}
	return provider.StrengthResult{Valid: out.ValidPassword, Feedback: fb}, nil
}

func (c *Client) SetPasswordBySession(ctx context.Context, sessionToken, password string) (provider.AuthResult, error) {
	in := map[string]any{
		"session_token":            sessionToken,
		"password":                 password,
		"session_duration_minutes": sessionMinutes,
	}
	var out authResponse
	if err := c.post(ctx, "/v1/passwords/session/reset", in, &out); err != nil {
		return provider.AuthResult{}, err
	}
	return out.result(), nil
}

func (c *Client) ResetPasswordByToken(ctx context.Context, resetToken, password string) (provider.AuthResult, error) {
	in := map[string]any{
		"token":                    resetToken,
		"password":                 password,
		"session_duration_minutes": sessionMinutes,
	}
	var out authResponse
	if err := c.post(ctx, "/v1/passwords/email/reset", in, &out); err != nil {
		return provider.AuthResult{}, err
	}
	return out.result(), nil
}

func (c *Client) StartPasswordReset(ctx context.Context, email, loginURL, resetURL string) error {
	in := map[string]any{
		"email":                       email,
		"login_redirect_url":          loginURL,
		"reset_password_redirect_url": resetURL,
	}
	return c.post(ctx, "/v1/passwords/email/reset/start", in, nil)
}

func (c *Client) AuthenticateOAuth(ctx context.Context, token string) (provider.AuthResult, error) {
	in := map[string]any{
		"token":                    token,
		"session_duration_minutes": sessionMinutes,
	}
	var out authResponse
	if err := c.post(ctx, "/v1/oauth/authenticate", in, &out); err != nil {
		return provider.AuthResult{}, err
	}
	return out.result(), nil
}

func (c *Client) AuthenticatePasskey(ctx context.Context, assertion string) (provider.AuthResult, error) {
	in := map[string]any{
		"public_key_credential":    assertion,
		"session_duration_minutes": sessionMinutes,
	}
	var out authResponse
	if err := c.post(ctx, "/v1/webauthn/authenticate", in, &out); err != nil {
		return provider.AuthResult{}, err
	}
	return out.result(), nil
}

var _ provider.Client = (*Client)(nil)
