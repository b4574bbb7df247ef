package flow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dropDatabas3/identsync/internal/directory"
	"github.com/dropDatabas3/identsync/internal/directory/memory"
	"github.com/dropDatabas3/identsync/internal/provider"
)

// fakeClient es un proveedor scriptable para los tests de la máquina.
// Cada campo nil usa un default que siempre tiene éxito.
type fakeClient struct {
	mu    sync.Mutex
	calls []string

	sendOTP      func(channel provider.OTPChannel, dest string) (provider.OTPStart, error)
	authOTP      func(methodID, code string) (provider.AuthResult, error)
	authPassword func(email, pw string) (provider.AuthResult, error)
	strength     func(email, pw string) (provider.StrengthResult, error)
	setBySession func(session, pw string) (provider.AuthResult, error)
	resetByToken func(token, pw string) (provider.AuthResult, error)
	startReset   func(email, loginURL, resetURL string) error
	authOAuth    func(token string) (provider.AuthResult, error)
	authPasskey  func(assertion string) (provider.AuthResult, error)
}

func (f *fakeClient) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeClient) callCount(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == call {
			n++
		}
	}
	return n
}

func okAuth(email string) provider.AuthResult {
	return provider.AuthResult{UserID: "user-test-1", Email: email, SessionToken: "session-abc"}
}

func (f *fakeClient) SendOTP(_ context.Context, ch provider.OTPChannel, dest string) (provider.OTPStart, error) {
	f.record("send_otp")
	if f.sendOTP != nil {
		return f.sendOTP(ch, dest)
	}
	return provider.OTPStart{MethodID: "method-1"}, nil
}

func (f *fakeClient) AuthenticateOTP(_ context.Context, methodID, code string) (provider.AuthResult, error) {
	f.record("auth_otp")
	if f.authOTP != nil {
		return f.authOTP(methodID, code)
	}
	return okAuth("new@x.com"), nil
}

func (f *fakeClient) AuthenticatePassword(_ context.Context, email, pw string) (provider.AuthResult, error) {
	f.record("auth_password")
	if f.authPassword != nil {
		return f.authPassword(email, pw)
	}
	return okAuth(email), nil
}

func (f *fakeClient) StrengthCheck(_ context.Context, email, pw string) (provider.StrengthResult, error) {
	f.record("strength_check")
	if f.strength != nil {
		return f.strength(email, pw)
	}
	return provider.StrengthResult{Valid: true}, nil
}

func (f *fakeClient) SetPasswordBySession(_ context.Context, session, pw string) (provider.AuthResult, error) {
	f.record("set_by_session")
	if f.setBySession != nil {
		return f.setBySession(session, pw)
	}
	return okAuth("new@x.com"), nil
}

func (f *fakeClient) ResetPasswordByToken(_ context.Context, token, pw string) (provider.AuthResult, error) {
	f.record("reset_by_token")
	if f.resetByToken != nil {
		return f.resetByToken(token, pw)
	}
	return okAuth("existing@x.com"), nil
}

func (f *fakeClient) StartPasswordReset(_ context.Context, email, loginURL, resetURL string) error {
	f.record("start_reset")
	if f.startReset != nil {
		return f.startReset(email, loginURL, resetURL)
	}
	return nil
}

func (f *fakeClient) AuthenticateOAuth(_ context.Context, token string) (provider.AuthResult, error) {
	f.record("auth_oauth")
	if f.authOAuth != nil {
		return f.authOAuth(token)
	}
	return okAuth("oauth@x.com"), nil
}

func (f *fakeClient) AuthenticatePasskey(_ context.Context, assertion string) (provider.AuthResult, error) {
	f.record("auth_passkey")
	if f.authPasskey != nil {
		return f.authPasskey(assertion)
	}
	return okAuth("existing@x.com"), nil
}

var _ provider.Client = (*fakeClient)(nil)

func seeded(t *testing.T, recs ...directory.Record) *memory.Store {
	t.Helper()
	st := memory.New()
	for _, r := range recs {
		if _, err := st.Upsert(context.Background(), r); err != nil {
			t.Fatalf("seed upsert: %v", err)
		}
	}
	return st
}

func TestSignupEmailOTPHappyPath(t *testing.T) {
	ctx := context.Background()
	fc := &fakeClient{}
	dir := seeded(t)
	m := New(fc, dir)

	if err := m.SubmitEmail(ctx, "new@x.com"); err != nil {
		t.Fatalf("SubmitEmail: %v", err)
	}
	if got := m.Step(); got != StepNameCapture {
		t.Fatalf("step = %s, want %s", got, StepNameCapture)
	}

	if err := m.SubmitName(ctx, "Ada Lovelace"); err != nil {
		t.Fatalf("SubmitName: %v", err)
	}
	if got := m.Step(); got != StepChannelSelect {
		t.Fatalf("step = %s, want %s", got, StepChannelSelect)
	}

	if err := m.ChooseEmailChannel(ctx); err != nil {
		t.Fatalf("ChooseEmailChannel: %v", err)
	}
	if got := m.Step(); got != StepOTP {
		t.Fatalf("step = %s, want %s", got, StepOTP)
	}

	if err := m.SubmitOTP(ctx, "123456"); err != nil {
		t.Fatalf("SubmitOTP: %v", err)
	}
	if got := m.Step(); got != StepCreatePassword {
		t.Fatalf("step = %s, want %s", got, StepCreatePassword)
	}

	if err := m.SubmitPassword(ctx, "Str0ng!Pass"); err != nil {
		t.Fatalf("SubmitPassword: %v", err)
	}
	if got := m.Step(); got != StepDone {
		t.Fatalf("step = %s, want %s", got, StepDone)
	}
	if m.SessionToken() == "" {
		t.Fatal("expected a session token after signup")
	}

	rec, ok := dir.Get("new@x.com")
	if !ok {
		t.Fatal("directory row missing after signup")
	}
	if rec.FullName != "Ada Lovelace" {
		t.Fatalf("full_name = %q, want %q", rec.FullName, "Ada Lovelace")
	}
	if rec.UserID != "user-test-1" {
		t.Fatalf("user_id = %q", rec.UserID)
	}
}

func TestLoginExistingUserGreeting(t *testing.T) {
	ctx := context.Background()
	fc := &fakeClient{}
	dir := seeded(t, directory.Record{UserID: "u-9", Email: "existing@x.com", FullName: "Bob Smith"})
	m := New(fc, dir)

	if err := m.SubmitEmail(ctx, "existing@x.com"); err != nil {
		t.Fatalf("SubmitEmail: %v", err)
	}
	if got := m.Step(); got != StepLogin {
		t.Fatalf("step = %s, want %s", got, StepLogin)
	}
	if got := m.Greeting(); got != "Welcome back, Bob!" {
		t.Fatalf("greeting = %q", got)
	}

	if err := m.SubmitLogin(ctx, "hunter22!"); err != nil {
		t.Fatalf("SubmitLogin: %v", err)
	}
	if got := m.Step(); got != StepDone {
		t.Fatalf("step = %s, want %s", got, StepDone)
	}
	// login de usuario existente: ninguna escritura al directorio
	if n := dir.Len(); n != 1 {
		t.Fatalf("directory rows = %d, want 1", n)
	}
}

func TestInvalidEmailNoNetwork(t *testing.T) {
	ctx := context.Background()
	fc := &fakeClient{}
	dir := seeded(t)
	dir.FailAll = true // cualquier llamada al directorio reventaría el test
	m := New(fc, dir)

	for _, bad := range []string{"", "nope", "a@b", "spaces in@mail.com "} {
		if err := m.SubmitEmail(ctx, bad); err != nil {
			t.Fatalf("SubmitEmail(%q): %v", bad, err)
		}
		if got := m.Step(); got != StepIdentify {
			t.Fatalf("SubmitEmail(%q): step = %s, want identify", bad, got)
		}
		if m.FieldError("email") == "" {
			t.Fatalf("SubmitEmail(%q): expected field error", bad)
		}
		m.ClearField("email")
	}
	if len(fc.calls) != 0 {
		t.Fatalf("provider calls = %v, want none", fc.calls)
	}
}

func TestExistsFailureKeepsIdentify(t *testing.T) {
	ctx := context.Background()
	fc := &fakeClient{}
	dir := seeded(t)
	dir.FailAll = true
	m := New(fc, dir)

	if err := m.SubmitEmail(ctx, "new@x.com"); err != nil {
		t.Fatalf("SubmitEmail: %v", err)
	}
	if got := m.Step(); got != StepIdentify {
		t.Fatalf("step = %s, want identify", got)
	}
	n := m.Notification()
	if n == nil || n.Kind != KindError || n.Title != "Connection Error" {
		t.Fatalf("notification = %+v, want connection error", n)
	}

	// reintento manual tras restaurar conectividad
	dir.FailAll = false
	if err := m.SubmitEmail(ctx, "new@x.com"); err != nil {
		t.Fatalf("retry SubmitEmail: %v", err)
	}
	if got := m.Step(); got != StepNameCapture {
		t.Fatalf("step = %s, want name_capture", got)
	}
	if m.Notification() != nil {
		t.Fatal("notification should clear on new submit")
	}
}

func TestInvalidOTPStaysOnStep(t *testing.T) {
	ctx := context.Background()
	attempts := 0
	fc := &fakeClient{
		authOTP: func(methodID, code string) (provider.AuthResult, error) {
			attempts++
			if code != "654321" {
				return provider.AuthResult{}, provider.ErrInvalidCode
			}
			return okAuth("new@x.com"), nil
		},
	}
	m := New(fc, seeded(t))

	mustStep(t, m, ctx, "new@x.com", "Ada Lovelace")
	if err := m.ChooseEmailChannel(ctx); err != nil {
		t.Fatalf("ChooseEmailChannel: %v", err)
	}

	if err := m.SubmitOTP(ctx, "000000"); err != nil {
		t.Fatalf("SubmitOTP: %v", err)
	}
	if got := m.Step(); got != StepOTP {
		t.Fatalf("step = %s, want otp after bad code", got)
	}
	if n := m.Notification(); n == nil || n.Title != "Invalid Code" {
		t.Fatalf("notification = %+v", n)
	}

	if err := m.SubmitOTP(ctx, "654321"); err != nil {
		t.Fatalf("SubmitOTP retry: %v", err)
	}
	if got := m.Step(); got != StepCreatePassword {
		t.Fatalf("step = %s, want create_password", got)
	}
	if attempts != 2 {
		t.Fatalf("attempts = %d, want 2", attempts)
	}
}

func TestWeakPasswordRejectedLocally(t *testing.T) {
	ctx := context.Background()
	fc := &fakeClient{
		strength: func(email, pw string) (provider.StrengthResult, error) {
			if pw == "weak" {
				return provider.StrengthResult{Valid: false, Feedback: "too short"}, nil
			}
			return provider.StrengthResult{Valid: true}, nil
		},
	}
	dir := seeded(t)
	m := New(fc, dir)

	mustStep(t, m, ctx, "new@x.com", "Ada Lovelace")
	if err := m.ChooseEmailChannel(ctx); err != nil {
		t.Fatalf("ChooseEmailChannel: %v", err)
	}
	if err := m.SubmitOTP(ctx, "123456"); err != nil {
		t.Fatalf("SubmitOTP: %v", err)
	}

	if err := m.SubmitPassword(ctx, "weak"); err != nil {
		t.Fatalf("SubmitPassword: %v", err)
	}
	if got := m.Step(); got != StepCreatePassword {
		t.Fatalf("step = %s, want create_password", got)
	}
	if fe := m.FieldError("password"); !strings.Contains(fe, "too short") {
		t.Fatalf("field error = %q", fe)
	}
	// rechazo local: ni set de password ni escritura de directorio
	if fc.callCount("set_by_session") != 0 {
		t.Fatal("password must not be finalized on weak rejection")
	}
	if dir.Len() != 0 {
		t.Fatal("directory must stay empty on weak rejection")
	}
}

func TestDirectoryFailureAfterCredentialRetriesWriteOnly(t *testing.T) {
	ctx := context.Background()
	fc := &fakeClient{}
	dir := seeded(t)
	m := New(fc, dir)

	mustStep(t, m, ctx, "new@x.com", "Ada Lovelace")
	if err := m.ChooseEmailChannel(ctx); err != nil {
		t.Fatalf("ChooseEmailChannel: %v", err)
	}
	if err := m.SubmitOTP(ctx, "123456"); err != nil {
		t.Fatalf("SubmitOTP: %v", err)
	}

	dir.FailAll = true
	if err := m.SubmitPassword(ctx, "Str0ng!Pass"); err != nil {
		t.Fatalf("SubmitPassword: %v", err)
	}
	if got := m.Step(); got != StepCreatePassword {
		t.Fatalf("step = %s, want create_password after dir failure", got)
	}
	if n := m.Notification(); n == nil || n.Kind != KindWarning {
		t.Fatalf("notification = %+v, want retryable warning", n)
	}
	if m.SessionToken() == "" {
		t.Fatal("provider session must survive a directory failure")
	}

	dir.FailAll = false
	if err := m.SubmitPassword(ctx, "Str0ng!Pass"); err != nil {
		t.Fatalf("retry SubmitPassword: %v", err)
	}
	if got := m.Step(); got != StepDone {
		t.Fatalf("step = %s, want done after retry", got)
	}
	// el reintento no repite la finalización de credencial
	if n := fc.callCount("set_by_session"); n != 1 {
		t.Fatalf("set_by_session calls = %d, want 1", n)
	}
	if n := fc.callCount("strength_check"); n != 1 {
		t.Fatalf("strength_check calls = %d, want 1", n)
	}
	if dir.Len() != 1 {
		t.Fatalf("directory rows = %d, want 1", dir.Len())
	}
}

func TestLoginResetRequiredGoesToForgot(t *testing.T) {
	ctx := context.Background()
	fc := &fakeClient{
		authPassword: func(email, pw string) (provider.AuthResult, error) {
			return provider.AuthResult{}, provider.ErrResetRequired
		},
	}
	dir := seeded(t, directory.Record{UserID: "u-9", Email: "existing@x.com", FullName: "Bob Smith"})
	m := New(fc, dir)

	if err := m.SubmitEmail(ctx, "existing@x.com"); err != nil {
		t.Fatalf("SubmitEmail: %v", err)
	}
	if err := m.SubmitLogin(ctx, "old-password"); err != nil {
		t.Fatalf("SubmitLogin: %v", err)
	}
	if got := m.Step(); got != StepForgotPassword {
		t.Fatalf("step = %s, want forgot_password", got)
	}
	if n := m.Notification(); n == nil || n.Title != "Password Reset Required" {
		t.Fatalf("notification = %+v", n)
	}
}

func TestLoginGenericFailureStays(t *testing.T) {
	ctx := context.Background()
	fc := &fakeClient{
		authPassword: func(email, pw string) (provider.AuthResult, error) {
			return provider.AuthResult{}, provider.ErrInvalidCredentials
		},
	}
	dir := seeded(t, directory.Record{UserID: "u-9", Email: "existing@x.com"})
	m := New(fc, dir)

	if err := m.SubmitEmail(ctx, "existing@x.com"); err != nil {
		t.Fatalf("SubmitEmail: %v", err)
	}
	if err := m.SubmitLogin(ctx, "wrong"); err != nil {
		t.Fatalf("SubmitLogin: %v", err)
	}
	if got := m.Step(); got != StepLogin {
		t.Fatalf("step = %s, want login", got)
	}
	n := m.Notification()
	if n == nil || n.Title != "Login Failed" {
		t.Fatalf("notification = %+v", n)
	}
	// mensaje genérico: no revela si el email existe
	if strings.Contains(n.Subtitle, "reset") {
		t.Fatalf("generic failure must not hint at reset: %q", n.Subtitle)
	}
}

func TestForgotPasswordReturnsToIdentify(t *testing.T) {
	ctx := context.Background()
	var gotLogin, gotReset string
	fc := &fakeClient{
		startReset: func(email, loginURL, resetURL string) error {
			gotLogin, gotReset = loginURL, resetURL
			return nil
		},
	}
	dir := seeded(t, directory.Record{UserID: "u-9", Email: "existing@x.com"})
	m := New(fc, dir)

	if err := m.SubmitEmail(ctx, "existing@x.com"); err != nil {
		t.Fatalf("SubmitEmail: %v", err)
	}
	m.GoToForgotPassword()
	if err := m.SubmitForgotPassword(ctx, "https://app/login", "https://app/reset"); err != nil {
		t.Fatalf("SubmitForgotPassword: %v", err)
	}
	if got := m.Step(); got != StepIdentify {
		t.Fatalf("step = %s, want identify", got)
	}
	if n := m.Notification(); n == nil || n.Kind != KindSuccess {
		t.Fatalf("notification = %+v, want success", n)
	}
	if gotLogin != "https://app/login" || gotReset != "https://app/reset" {
		t.Fatalf("redirect urls = %q, %q", gotLogin, gotReset)
	}
}

func TestResumeResetDeepLink(t *testing.T) {
	ctx := context.Background()
	fc := &fakeClient{}
	dir := seeded(t, directory.Record{UserID: "user-test-1", Email: "existing@x.com", FullName: "Bob Smith"})
	m := ResumeReset(fc, dir, "reset-token-1", "existing@x.com")

	if got := m.Step(); got != StepCreatePassword {
		t.Fatalf("step = %s, want create_password", got)
	}
	if err := m.SubmitPassword(ctx, "N3w!Passw0rd"); err != nil {
		t.Fatalf("SubmitPassword: %v", err)
	}
	if got := m.Step(); got != StepDone {
		t.Fatalf("step = %s, want done", got)
	}
	if fc.callCount("reset_by_token") != 1 || fc.callCount("set_by_session") != 0 {
		t.Fatalf("calls = %v, want reset_by_token", fc.calls)
	}
	// el upsert de un usuario existente no duplica filas
	if dir.Len() != 1 {
		t.Fatalf("directory rows = %d, want 1", dir.Len())
	}
}

func TestOAuthNewUserCapturesNameThenWrites(t *testing.T) {
	ctx := context.Background()
	fc := &fakeClient{}
	dir := seeded(t)
	m := New(fc, dir)

	if err := m.OAuthCallback(ctx, "oauth-token"); err != nil {
		t.Fatalf("OAuthCallback: %v", err)
	}
	if got := m.Step(); got != StepNameCapture {
		t.Fatalf("step = %s, want name_capture for new oauth user", got)
	}

	if err := m.SubmitName(ctx, "Grace Hopper"); err != nil {
		t.Fatalf("SubmitName: %v", err)
	}
	if got := m.Step(); got != StepDone {
		t.Fatalf("step = %s, want done", got)
	}
	rec, ok := dir.Get("oauth@x.com")
	if !ok || rec.FullName != "Grace Hopper" {
		t.Fatalf("directory rec = %+v ok=%v", rec, ok)
	}
	// sin OTP ni password en el atajo OAuth
	if fc.callCount("send_otp") != 0 || fc.callCount("set_by_session") != 0 {
		t.Fatalf("calls = %v", fc.calls)
	}
}

func TestOAuthExistingUserSkipsEverything(t *testing.T) {
	ctx := context.Background()
	fc := &fakeClient{}
	dir := seeded(t, directory.Record{UserID: "user-test-1", Email: "oauth@x.com", FullName: "Grace Hopper"})
	m := New(fc, dir)

	if err := m.OAuthCallback(ctx, "oauth-token"); err != nil {
		t.Fatalf("OAuthCallback: %v", err)
	}
	if got := m.Step(); got != StepDone {
		t.Fatalf("step = %s, want done", got)
	}
	if dir.Len() != 1 {
		t.Fatalf("directory rows = %d, want 1 (no rewrite)", dir.Len())
	}
}

func TestPasskeyShortcut(t *testing.T) {
	ctx := context.Background()
	fc := &fakeClient{}
	dir := seeded(t, directory.Record{UserID: "user-test-1", Email: "existing@x.com"})
	m := New(fc, dir)

	if err := m.PasskeySignIn(ctx, "assertion-blob"); err != nil {
		t.Fatalf("PasskeySignIn: %v", err)
	}
	if got := m.Step(); got != StepDone {
		t.Fatalf("step = %s, want done", got)
	}
	if dir.Len() != 1 {
		t.Fatal("passkey login must not write the directory")
	}
}

func TestPasskeyFailureShowsFallbackMessage(t *testing.T) {
	ctx := context.Background()
	fc := &fakeClient{
		authPasskey: func(assertion string) (provider.AuthResult, error) {
			return provider.AuthResult{}, provider.ErrPasskeyFailed
		},
	}
	m := New(fc, seeded(t))

	if err := m.PasskeySignIn(ctx, "bad"); err != nil {
		t.Fatalf("PasskeySignIn: %v", err)
	}
	if got := m.Step(); got != StepIdentify {
		t.Fatalf("step = %s, want identify", got)
	}
	if n := m.Notification(); n == nil || n.Title != "Biometric Login Failed" {
		t.Fatalf("notification = %+v", n)
	}
}

func TestWhatsAppChannelFlow(t *testing.T) {
	ctx := context.Background()
	var sentDest string
	fc := &fakeClient{
		sendOTP: func(ch provider.OTPChannel, dest string) (provider.OTPStart, error) {
			if ch != provider.ChannelWhatsApp {
				return provider.OTPStart{}, errors.New("wrong channel")
			}
			sentDest = dest
			return provider.OTPStart{MethodID: "wa-method-1"}, nil
		},
	}
	m := New(fc, seeded(t))

	mustStep(t, m, ctx, "new@x.com", "Ada Lovelace")
	m.ChooseWhatsAppChannel()
	if got := m.Step(); got != StepWhatsAppCapture {
		t.Fatalf("step = %s, want whatsapp_capture", got)
	}
	if err := m.SubmitPhone(ctx, "+12345678900"); err != nil {
		t.Fatalf("SubmitPhone: %v", err)
	}
	if got := m.Step(); got != StepOTP {
		t.Fatalf("step = %s, want otp", got)
	}
	if sentDest != "+12345678900" {
		t.Fatalf("dest = %q", sentDest)
	}
}

func TestInFlightGuardRejectsConcurrentSubmit(t *testing.T) {
	ctx := context.Background()
	release := make(chan struct{})
	fc := &fakeClient{
		sendOTP: func(ch provider.OTPChannel, dest string) (provider.OTPStart, error) {
			<-release
			return provider.OTPStart{MethodID: "method-1"}, nil
		},
	}
	m := New(fc, seeded(t))
	mustStep(t, m, ctx, "new@x.com", "Ada Lovelace")

	done := make(chan error, 1)
	go func() { done <- m.ChooseEmailChannel(ctx) }()
	waitLoading(t, m)

	if err := m.ChooseEmailChannel(ctx); !errors.Is(err, ErrInFlight) {
		t.Fatalf("second submit err = %v, want ErrInFlight", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if got := m.Step(); got != StepOTP {
		t.Fatalf("step = %s, want otp", got)
	}
}

func TestResetDiscardsStaleCompletion(t *testing.T) {
	ctx := context.Background()
	release := make(chan struct{})
	fc := &fakeClient{
		sendOTP: func(ch provider.OTPChannel, dest string) (provider.OTPStart, error) {
			<-release
			return provider.OTPStart{MethodID: "method-late"}, nil
		},
	}
	m := New(fc, seeded(t))
	mustStep(t, m, ctx, "new@x.com", "Ada Lovelace")

	done := make(chan error, 1)
	go func() { done <- m.ChooseEmailChannel(ctx) }()
	waitLoading(t, m)

	m.Reset() // el visitante navegó afuera
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("in-flight submit: %v", err)
	}
	if got := m.Step(); got != StepIdentify {
		t.Fatalf("step = %s, want identify (stale completion discarded)", got)
	}
	if m.Loading() {
		t.Fatal("loading must stay false after reset")
	}
}

func TestEmptyNameFieldError(t *testing.T) {
	ctx := context.Background()
	m := New(&fakeClient{}, seeded(t))
	if err := m.SubmitEmail(ctx, "new@x.com"); err != nil {
		t.Fatalf("SubmitEmail: %v", err)
	}
	if err := m.SubmitName(ctx, "   "); err != nil {
		t.Fatalf("SubmitName: %v", err)
	}
	if got := m.Step(); got != StepNameCapture {
		t.Fatalf("step = %s, want name_capture", got)
	}
	if m.FieldError("full_name") == "" {
		t.Fatal("expected field error for empty name")
	}
}

func waitLoading(t *testing.T, m *Machine) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !m.Loading() {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for in-flight operation")
		}
		time.Sleep(time.Millisecond)
	}
}

// mustStep lleva la máquina hasta ChannelSelect para un signup nuevo.
func mustStep(t *testing.T, m *Machine, ctx context.Context, email, name string) {
	t.Helper()
	if err := m.SubmitEmail(ctx, email); err != nil {
		t.Fatalf("SubmitEmail: %v", err)
	}
	if err := m.SubmitName(ctx, name); err != nil {
		t.Fatalf("SubmitName: %v", err)
	}
	if got := m.Step(); got != StepChannelSelect {
		t.Fatalf("step = %s, want channel_select", got)
	}
}
