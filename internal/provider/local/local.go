// Package local es un proveedor de identidad in-process para dev y tests:
// OTPs en cache con TTL, passwords argon2id, sesiones JWT HS256 y entrega de
// códigos por SMTP. Implementa la misma superficie que el proveedor hosteado.
package local

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"sync"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/dropDatabas3/identsync/internal/observability/logger"
	"github.com/dropDatabas3/identsync/internal/provider"
	"github.com/dropDatabas3/identsync/internal/security/password"
)

type user struct {
	ID            string
	Email         string
	PasswordHash  string
	ResetRequired bool
	HasPasskey    bool
}

type otpEntry struct {
	Channel     provider.OTPChannel
	Destination string
	Code        string
}

type Options struct {
	JWTSecret  string
	SessionTTL time.Duration
	OTPTTL     time.Duration
	Policy     password.Policy
	Sender     Sender // opcional; si es nil los códigos solo se loguean en debug
}

type Provider struct {
	mu     sync.Mutex
	users  map[string]*user // por email
	byID   map[string]*user
	otps   *gocache.Cache // method_id -> otpEntry
	resets *gocache.Cache // reset token -> email

	secret     []byte
	sessionTTL time.Duration
	otpTTL     time.Duration
	policy     password.Policy
	sender     Sender
}

func New(opts Options) *Provider {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = time.Hour
	}
	if opts.OTPTTL <= 0 {
		opts.OTPTTL = 5 * time.Minute
	}
	if opts.Policy.MinLength == 0 {
		opts.Policy = password.Policy{MinLength: 8, RequireLower: true, RequireDigit: true}
	}
	return &Provider{
		users:      make(map[string]*user),
		byID:       make(map[string]*user),
		otps:       gocache.New(opts.OTPTTL, time.Minute),
		resets:     gocache.New(30*time.Minute, time.Minute),
		secret:     []byte(opts.JWTSecret),
		sessionTTL: opts.SessionTTL,
		otpTTL:     opts.OTPTTL,
		policy:     opts.Policy,
		sender:     opts.Sender,
	}
}

func randomCode() string {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		// rand.Reader no falla en la práctica; dejamos un código fijo inválido
		return "000000"
	}
	return fmt.Sprintf("%06d", n.Int64())
}

// findOrCreate retorna el usuario para el email, creándolo si no existe.
// Debe llamarse con el lock tomado.
func (p *Provider) findOrCreate(email string) *user {
	if u, ok := p.users[email]; ok {
		return u
	}
	u := &user{ID: "user-local-" + uuid.NewString(), Email: email}
	p.users[email] = u
	p.byID[u.ID] = u
	return u
}

func (p *Provider) session(u *user) (provider.AuthResult, error) {
	now := time.Now()
	tok := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, jwtv5.MapClaims{
		"sub":   u.ID,
		"email": u.Email,
		"iat":   now.Unix(),
		"exp":   now.Add(p.sessionTTL).Unix(),
	})
	signed, err := tok.SignedString(p.secret)
	if err != nil {
		return provider.AuthResult{}, err
	}
	return provider.AuthResult{UserID: u.ID, Email: u.Email, SessionToken: signed}, nil
}

func (p *Provider) parseSession(sessionToken string) (*user, error) {
	tok, err := jwtv5.Parse(sessionToken, func(t *jwtv5.Token) (any, error) {
		if _, ok := t.Method.(*jwtv5.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return p.secret, nil
	})
	if err != nil || !tok.Valid {
		return nil, provider.ErrInvalidCredentials
	}
	claims, ok := tok.Claims.(jwtv5.MapClaims)
	if !ok {
		return nil, provider.ErrInvalidCredentials
	}
	sub, _ := claims["sub"].(string)
	u, ok := p.byID[sub]
	if !ok {
		return nil, provider.ErrInvalidCredentials
	}
	return u, nil
}

func (p *Provider) SendOTP(ctx context.Context, channel provider.OTPChannel, destination string) (provider.OTPStart, error) {
	if destination == "" {
		return provider.OTPStart{}, provider.ErrInvalidCredentials
	}
	code := randomCode()
	methodID := string(channel) + "-otp-" + uuid.NewString()
	p.otps.Set(methodID, otpEntry{Channel: channel, Destination: destination, Code: code}, p.otpTTL)

	switch channel {
	case provider.ChannelEmail:
		if p.sender != nil {
			body := fmt.Sprintf("Your verification code is %s. It expires in %d minutes.",
				code, int(p.otpTTL.Minutes()))
			if err := p.sender.Send(destination, "Your verification code", "", body); err != nil {
				p.otps.Delete(methodID)
				return provider.OTPStart{}, &provider.ConnError{Err: err}
			}
		} else {
			logger.L().Debug("otp issued without sender", logger.String("dest", destination), logger.String("code", code))
		}
	case provider.ChannelWhatsApp:
		// sin gateway de mensajería en dev: el código queda en el log
		logger.L().Debug("whatsapp otp issued", logger.String("dest", destination), logger.String("code", code))
	default:
		return provider.OTPStart{}, fmt.Errorf("unknown otp channel %q", channel)
	}

	p.mu.Lock()
	var userID string
	if u, ok := p.users[destination]; ok {
		userID = u.ID
	}
	p.mu.Unlock()

	return provider.OTPStart{MethodID: methodID, UserID: userID}, nil
}

func (p *Provider) AuthenticateOTP(ctx context.Context, methodID, code string) (provider.AuthResult, error) {
	v, ok := p.otps.Get(methodID)
	if !ok {
		return provider.AuthResult{}, provider.ErrInvalidCode
	}
	entry := v.(otpEntry)
	if subtle.ConstantTimeCompare([]byte(entry.Code), []byte(code)) != 1 {
		return provider.AuthResult{}, provider.ErrInvalidCode
	}
	p.otps.Delete(methodID) // consumo único

	p.mu.Lock()
	defer p.mu.Unlock()
	u := p.findOrCreate(entry.Destination)
	return p.session(u)
}

func (p *Provider) AuthenticatePassword(ctx context.Context, email, pw string) (provider.AuthResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.users[email]
	if !ok || u.PasswordHash == "" {
		return provider.AuthResult{}, provider.ErrInvalidCredentials
	}
	if u.ResetRequired {
		return provider.AuthResult{}, provider.ErrResetRequired
	}
	if !password.Verify(pw, u.PasswordHash) {
		return provider.AuthResult{}, provider.ErrInvalidCredentials
	}
	return p.session(u)
}

func (p *Provider) StrengthCheck(ctx context.Context, email, pw string) (provider.StrengthResult, error) {
	ok, reasons := p.policy.Validate(pw)
	return provider.StrengthResult{Valid: ok, Feedback: password.Feedback(reasons)}, nil
}

func (p *Provider) SetPasswordBySession(ctx context.Context, sessionToken, pw string) (provider.AuthResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, err := p.parseSession(sessionToken)
	if err != nil {
		return provider.AuthResult{}, err
	}
	phc, err := password.Hash(password.Default, pw)
	if err != nil {
		return provider.AuthResult{}, err
	}
	u.PasswordHash = phc
	u.ResetRequired = false
	return p.session(u)
}

func (p *Provider) ResetPasswordByToken(ctx context.Context, resetToken, pw string) (provider.AuthResult, error) {
	v, ok := p.resets.Get(resetToken)
	if !ok {
		return provider.AuthResult{}, provider.ErrInvalidCode
	}
	p.resets.Delete(resetToken)
	email := v.(string)

	p.mu.Lock()
	defer p.mu.Unlock()
	u := p.findOrCreate(email)
	phc, err := password.Hash(password.Default, pw)
	if err != nil {
		return provider.AuthResult{}, err
	}
	u.PasswordHash = phc
	u.ResetRequired = false
	return p.session(u)
}

func (p *Provider) StartPasswordReset(ctx context.Context, email, loginURL, resetURL string) error {
	token := uuid.NewString()
	p.resets.Set(token, email, 30*time.Minute)

	link := resetURL + "?token=" + token
	if p.sender != nil {
		body := fmt.Sprintf("Reset your password: %s\nIf you did not request this, ignore this email.", link)
		if err := p.sender.Send(email, "Reset your password", "", body); err != nil {
			return &provider.ConnError{Err: err}
		}
		return nil
	}
	logger.L().Debug("reset link issued without sender", logger.Email(email), logger.String("link", link))
	return nil
}

func (p *Provider) AuthenticateOAuth(ctx context.Context, token string) (provider.AuthResult, error) {
	tok, err := jwtv5.Parse(token, func(t *jwtv5.Token) (any, error) {
		if _, ok := t.Method.(*jwtv5.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return p.secret, nil
	})
	if err != nil || !tok.Valid {
		return provider.AuthResult{}, provider.ErrInvalidCredentials
	}
	claims, _ := tok.Claims.(jwtv5.MapClaims)
	email, _ := claims["email"].(string)
	if email == "" {
		return provider.AuthResult{}, provider.ErrInvalidCredentials
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	u := p.findOrCreate(email)
	return p.session(u)
}

func (p *Provider) AuthenticatePasskey(ctx context.Context, assertion string) (provider.AuthResult, error) {
	// En dev la assertion es "passkey:<email>"; solo pasa si el usuario
	// existe y registró un passkey post-login.
	const prefix = "passkey:"
	if len(assertion) <= len(prefix) || assertion[:len(prefix)] != prefix {
		return provider.AuthResult{}, provider.ErrPasskeyFailed
	}
	email := assertion[len(prefix):]

	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.users[email]
	if !ok || !u.HasPasskey {
		return provider.AuthResult{}, provider.ErrPasskeyFailed
	}
	return p.session(u)
}

// ─── Helpers de dev/tests ───

// MintOAuthToken emite el token que AuthenticateOAuth acepta.
func (p *Provider) MintOAuthToken(email string) (string, error) {
	now := time.Now()
	tok := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, jwtv5.MapClaims{
		"email": email,
		"iat":   now.Unix(),
		"exp":   now.Add(10 * time.Minute).Unix(),
	})
	return tok.SignedString(p.secret)
}

// RegisterPasskey marca al usuario como poseedor de passkey (post-login).
func (p *Provider) RegisterPasskey(email string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.findOrCreate(email).HasPasskey = true
}

// RequireReset fuerza el flag reset_required del usuario.
func (p *Provider) RequireReset(email string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if u, ok := p.users[email]; ok {
		u.ResetRequired = true
	}
}

// PeekOTP devuelve el código vigente para el method id. Solo para tests.
func (p *Provider) PeekOTP(methodID string) (string, bool) {
	v, ok := p.otps.Get(methodID)
	if !ok {
		return "", false
	}
	return v.(otpEntry).Code, true
}

// LastResetToken devuelve un token de reset vigente para el email dado.
// Solo para tests (simula abrir el deep link del correo).
func (p *Provider) LastResetToken(email string) (string, bool) {
	for k, item := range p.resets.Items() {
		if e, ok := item.Object.(string); ok && e == email {
			return k, true
		}
	}
	return "", false
}

var _ provider.Client = (*Provider)(nil)
