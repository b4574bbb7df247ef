// Package flow implementa el orquestador de onboarding: la máquina de estados
// que decide, a partir de un email, si el visitante va a login, signup, reset
// de password o atajos OAuth/passkey, coordinando llamadas al proveedor de
// identidad y al directorio.
//
// La máquina vive en la página del visitante (una por sesión de onboarding) y
// nunca se persiste. Todas las fallas de proveedor/directorio son no fatales:
// quedan como notificación descartable y el estado actual se preserva para
// reintentar a mano. Los errores de validación son por campo y se limpian al
// editar el campo.
package flow

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/dropDatabas3/identsync/internal/directory"
	"github.com/dropDatabas3/identsync/internal/observability/logger"
	"github.com/dropDatabas3/identsync/internal/provider"
)

// Step es el paso actual del flujo.
type Step string

const (
	StepIdentify        Step = "identify"
	StepLogin           Step = "login"
	StepNameCapture     Step = "name_capture"
	StepChannelSelect   Step = "channel_select"
	StepWhatsAppCapture Step = "whatsapp_capture"
	StepOTP             Step = "otp"
	StepCreatePassword  Step = "create_password"
	StepForgotPassword  Step = "forgot_password"
	StepDone            Step = "done"
)

// NotificationKind clasifica la notificación visible.
type NotificationKind string

const (
	KindError   NotificationKind = "error"
	KindWarning NotificationKind = "warning"
	KindSuccess NotificationKind = "success"
	KindInfo    NotificationKind = "info"
)

// Notification es el aviso descartable que ve el visitante.
type Notification struct {
	Kind     NotificationKind
	Title    string
	Subtitle string
}

// ErrInFlight se retorna cuando ya hay una operación en vuelo; el caller debe
// ignorar el submit (equivale al botón deshabilitado durante loading).
var ErrInFlight = errors.New("operation already in flight")

// chequeo estructural simple, igual que el del form original
var emailRe = regexp.MustCompile(`^\S+@\S+\.\S+$`)

func validEmail(s string) bool { return emailRe.MatchString(s) }

// Machine es la máquina de estados de onboarding. Una instancia por visitante.
// Los métodos Submit* son seguros para llamar desde una sola goroutine de UI;
// el mutex protege contra completions tardías de operaciones ya descartadas.
type Machine struct {
	provider  provider.Client
	directory directory.Service
	log       *zap.Logger

	mu   sync.Mutex
	step Step

	email     string
	phone     string
	fullName  string
	greetName string
	methodID  string
	channel   provider.OTPChannel

	userID       string
	sessionToken string
	resetToken   string

	// credentialed marca que el password/OAuth ya quedó finalizado en el
	// proveedor: un reintento tras fallo de directorio no debe repetirlo.
	credentialed bool
	// oauthed marca que el visitante llegó autenticado por OAuth y no
	// necesita OTP ni password antes de escribir el directorio.
	oauthed bool
	// dirSynced: la fila del directorio se escribe exactamente una vez.
	dirSynced bool

	fieldErrs map[string]string
	notif     *Notification

	// guard explícito de "una operación en vuelo": loading bloquea submits
	// y gen invalida completions que llegan después de un Reset.
	loading bool
	gen     uint64
}

// New crea una máquina en StepIdentify.
func New(p provider.Client, d directory.Service) *Machine {
	return &Machine{
		provider:  p,
		directory: d,
		log:       logger.Named("flow"),
		step:      StepIdentify,
		fieldErrs: make(map[string]string),
	}
}

// ResumeReset crea una máquina que llegó por deep link de reset: entra
// directo a CreatePassword con el token pendiente.
func ResumeReset(p provider.Client, d directory.Service, token, email string) *Machine {
	m := New(p, d)
	m.step = StepCreatePassword
	m.resetToken = token
	m.email = directory.NormalizeEmail(email)
	return m
}

// ─── Estado observable ───

func (m *Machine) Step() Step {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.step
}

func (m *Machine) Loading() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loading
}

// Notification devuelve la notificación visible, o nil.
func (m *Machine) Notification() *Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.notif
}

// DismissNotification descarta el aviso visible.
func (m *Machine) DismissNotification() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notif = nil
}

// FieldError devuelve el error de validación del campo, o "".
func (m *Machine) FieldError(field string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fieldErrs[field]
}

// ClearField limpia el error del campo (el usuario editó el input).
func (m *Machine) ClearField(field string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.fieldErrs, field)
	m.notif = nil
}

// Greeting arma el título del paso Login: "Welcome back, <primer nombre>!".
func (m *Machine) Greeting() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.step != StepLogin || m.greetName == "" {
		if m.step == StepLogin {
			return "Welcome back!"
		}
		return "Log in"
	}
	first := strings.Fields(m.greetName)[0]
	return "Welcome back, " + first + "!"
}

// Email devuelve el email bajo verificación.
func (m *Machine) Email() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.email
}

// UserID devuelve el user_id del proveedor una vez autenticado.
func (m *Machine) UserID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.userID
}

// SessionToken devuelve el token de sesión del proveedor (opaco).
func (m *Machine) SessionToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionToken
}

// Reset vuelve la máquina a Identify descartando todo estado transitorio.
// Incrementa gen: cualquier completion en vuelo se descarta (guard contra
// mutaciones stale tras navegar).
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gen++
	m.loading = false
	m.step = StepIdentify
	m.email, m.phone, m.fullName, m.greetName = "", "", "", ""
	m.methodID, m.resetToken = "", ""
	m.userID, m.sessionToken = "", ""
	m.credentialed, m.oauthed, m.dirSynced = false, false, false
	m.fieldErrs = make(map[string]string)
	m.notif = nil
}

// ─── Guard de operación en vuelo ───

// begin marca loading y captura la generación actual. Retorna ErrInFlight si
// ya hay una operación en curso. Debe llamarse con el lock tomado.
func (m *Machine) begin() (uint64, error) {
	if m.loading {
		return 0, ErrInFlight
	}
	m.loading = true
	m.notif = nil
	return m.gen, nil
}

// finish limpia loading si la generación sigue vigente. Retorna false si la
// completion es stale y debe descartarse sin tocar estado.
func (m *Machine) finish(gen uint64) bool {
	if m.gen != gen {
		return false
	}
	m.loading = false
	return true
}

func (m *Machine) setFieldErr(field, msg string) {
	m.fieldErrs[field] = msg
}

func (m *Machine) notify(kind NotificationKind, title, subtitle string) {
	m.notif = &Notification{Kind: kind, Title: title, Subtitle: subtitle}
}

func (m *Machine) connectionError() {
	m.notify(KindError, "Connection Error",
		"Unable to reach the server. Please check your internet connection.")
}

// ─── Transiciones ───

// SubmitEmail procesa el paso Identify: valida formato localmente y consulta
// existencia en el directorio. Existe → Login (con saludo personalizado);
// no existe → NameCapture.
func (m *Machine) SubmitEmail(ctx context.Context, email string) error {
	m.mu.Lock()
	email = strings.TrimSpace(email)
	if email == "" {
		m.setFieldErr("email", "Email is required")
		m.mu.Unlock()
		return nil
	}
	if !validEmail(email) {
		m.setFieldErr("email", "Please enter a valid email address")
		m.mu.Unlock()
		return nil
	}
	gen, err := m.begin()
	if err != nil {
		m.mu.Unlock()
		return err
	}
	m.mu.Unlock()

	res, derr := m.directory.Exists(ctx, email)

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.finish(gen) {
		return nil
	}
	if derr != nil {
		m.log.Warn("exists check failed", logger.Email(email), logger.Err(derr))
		m.connectionError()
		return nil
	}
	m.email = directory.NormalizeEmail(email)
	if res.Exists {
		m.greetName = res.FullName
		m.step = StepLogin
	} else {
		m.step = StepNameCapture
	}
	return nil
}

// SubmitName captura el nombre en signup. Sin red, salvo que el visitante
// venga autenticado por OAuth: en ese caso el OTP se saltea y acá se escribe
// el directorio directamente.
func (m *Machine) SubmitName(ctx context.Context, name string) error {
	m.mu.Lock()
	name = strings.TrimSpace(name)
	if name == "" {
		m.setFieldErr("full_name", "Name is required")
		m.mu.Unlock()
		return nil
	}
	m.fullName = name
	if !m.oauthed {
		m.step = StepChannelSelect
		m.mu.Unlock()
		return nil
	}

	// Atajo OAuth: credencial ya establecida por el proveedor; falta solo
	// la fila del directorio.
	gen, err := m.begin()
	if err != nil {
		m.mu.Unlock()
		return err
	}
	userID, email, fullName := m.userID, m.email, m.fullName
	m.mu.Unlock()

	created, derr := m.directory.Upsert(ctx, directory.Record{
		UserID: userID, Email: email, FullName: fullName,
	})

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.finish(gen) {
		return nil
	}
	if derr != nil {
		m.log.Warn("directory write failed after oauth", logger.UserID(userID), logger.Err(derr))
		m.notify(KindWarning, "Profile Sync Failed",
			"You are signed in, but we could not save your profile. Please try again.")
		return nil
	}
	m.log.Info("directory synced", logger.UserID(userID), logger.Bool("created", created))
	m.dirSynced = true
	m.step = StepDone
	return nil
}

// ChooseEmailChannel emite el OTP por email y avanza a Otp.
func (m *Machine) ChooseEmailChannel(ctx context.Context) error {
	m.mu.Lock()
	gen, err := m.begin()
	if err != nil {
		m.mu.Unlock()
		return err
	}
	email := m.email
	m.mu.Unlock()

	start, perr := m.provider.SendOTP(ctx, provider.ChannelEmail, email)

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.finish(gen) {
		return nil
	}
	if perr != nil {
		m.log.Warn("email otp send failed", logger.Email(email), logger.Err(perr))
		m.notify(KindError, "Email Delivery Failed",
			"We could not send the code. Please verify your email address.")
		return nil
	}
	m.methodID = start.MethodID
	m.channel = provider.ChannelEmail
	m.step = StepOTP
	return nil
}

// ChooseWhatsAppChannel pide el número antes de emitir el OTP. Sin red.
func (m *Machine) ChooseWhatsAppChannel() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.step = StepWhatsAppCapture
}

// SubmitPhone emite el OTP por WhatsApp y avanza a Otp.
func (m *Machine) SubmitPhone(ctx context.Context, phone string) error {
	m.mu.Lock()
	phone = strings.TrimSpace(phone)
	if phone == "" {
		m.setFieldErr("phone", "Phone number is required")
		m.mu.Unlock()
		return nil
	}
	gen, err := m.begin()
	if err != nil {
		m.mu.Unlock()
		return err
	}
	m.mu.Unlock()

	start, perr := m.provider.SendOTP(ctx, provider.ChannelWhatsApp, phone)

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.finish(gen) {
		return nil
	}
	if perr != nil {
		m.log.Warn("whatsapp otp send failed", logger.Err(perr))
		m.notify(KindError, "WhatsApp Delivery Failed",
			"Check the number format (e.g., +1234567890) and try again.")
		return nil
	}
	m.phone = phone
	m.methodID = start.MethodID
	m.channel = provider.ChannelWhatsApp
	m.step = StepOTP
	return nil
}

// SubmitOTP verifica el código contra el method id capturado. Éxito →
// CreatePassword; código inválido re-muestra Otp con el aviso.
func (m *Machine) SubmitOTP(ctx context.Context, code string) error {
	m.mu.Lock()
	code = strings.TrimSpace(code)
	if code == "" {
		m.setFieldErr("otp", "Verification code is required")
		m.mu.Unlock()
		return nil
	}
	gen, err := m.begin()
	if err != nil {
		m.mu.Unlock()
		return err
	}
	methodID := m.methodID
	m.mu.Unlock()

	res, perr := m.provider.AuthenticateOTP(ctx, methodID, code)

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.finish(gen) {
		return nil
	}
	if perr != nil {
		if errors.Is(perr, provider.ErrInvalidCode) {
			m.notify(KindError, "Invalid Code",
				"The code you entered is incorrect or expired. Please try again.")
		} else {
			m.log.Warn("otp verify failed", logger.Err(perr))
			m.connectionError()
		}
		return nil
	}
	m.userID = res.UserID
	m.sessionToken = res.SessionToken
	if res.Email != "" {
		m.email = directory.NormalizeEmail(res.Email)
	}
	m.step = StepCreatePassword
	return nil
}

// SubmitPassword finaliza el signup: strength check del proveedor, luego
// fija la credencial (reset por token si vino por deep link, o adjunta a la
// sesión OTP) y recién entonces escribe el directorio, exactamente una vez.
// Done solo se alcanza con la fila escrita.
func (m *Machine) SubmitPassword(ctx context.Context, pw string) error {
	m.mu.Lock()
	if pw == "" {
		m.setFieldErr("password", "Password is required")
		m.mu.Unlock()
		return nil
	}
	gen, err := m.begin()
	if err != nil {
		m.mu.Unlock()
		return err
	}
	email := m.email
	credentialed := m.credentialed
	resetToken := m.resetToken
	sessionToken := m.sessionToken
	m.mu.Unlock()

	if !credentialed {
		strength, serr := m.provider.StrengthCheck(ctx, email, pw)
		if serr != nil {
			m.mu.Lock()
			defer m.mu.Unlock()
			if m.finish(gen) {
				m.log.Warn("strength check failed", logger.Err(serr))
				m.connectionError()
			}
			return nil
		}
		if !strength.Valid {
			m.mu.Lock()
			defer m.mu.Unlock()
			if m.finish(gen) {
				// rechazo local: no se toca ni sesión ni directorio
				m.setFieldErr("password", "Weak password: "+strength.Feedback)
			}
			return nil
		}

		var res provider.AuthResult
		var perr error
		if resetToken != "" {
			res, perr = m.provider.ResetPasswordByToken(ctx, resetToken, pw)
		} else {
			res, perr = m.provider.SetPasswordBySession(ctx, sessionToken, pw)
		}
		if perr != nil {
			m.mu.Lock()
			defer m.mu.Unlock()
			if m.finish(gen) {
				m.log.Warn("password finalize failed", logger.Err(perr))
				m.notify(KindError, "Error Setting Password",
					"Something went wrong. Please try a different password.")
			}
			return nil
		}
		m.mu.Lock()
		if m.gen != gen {
			m.mu.Unlock()
			return nil
		}
		m.credentialed = true
		m.userID = res.UserID
		m.sessionToken = res.SessionToken
		if res.Email != "" {
			m.email = directory.NormalizeEmail(res.Email)
		}
		m.mu.Unlock()
	}

	// Escritura del directorio: una sola vez, después de la credencial.
	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return nil
	}
	userID, remail, fullName := m.userID, m.email, m.fullName
	m.mu.Unlock()

	created, derr := m.directory.Upsert(ctx, directory.Record{
		UserID: userID, Email: remail, FullName: fullName,
	})

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.finish(gen) {
		return nil
	}
	if derr != nil {
		// la identidad ya existe en el proveedor; el directorio es metadata
		// best-effort. Se reporta y el usuario puede reintentar el submit,
		// que salta directo a esta escritura.
		m.log.Warn("directory write failed", logger.UserID(userID), logger.Err(derr))
		m.notify(KindWarning, "Profile Sync Failed",
			"Your account is ready but we could not save your profile. Please try again.")
		return nil
	}
	m.log.Info("directory synced", logger.UserID(userID), logger.Bool("created", created))
	m.dirSynced = true
	m.step = StepDone
	return nil
}

// SubmitLogin autentica email+password. "reset required" va a ForgotPassword
// con aviso específico; cualquier otro rechazo es genérico y se queda en Login.
func (m *Machine) SubmitLogin(ctx context.Context, pw string) error {
	m.mu.Lock()
	if pw == "" {
		m.setFieldErr("password", "Password is required")
		m.mu.Unlock()
		return nil
	}
	gen, err := m.begin()
	if err != nil {
		m.mu.Unlock()
		return err
	}
	email := m.email
	m.mu.Unlock()

	res, perr := m.provider.AuthenticatePassword(ctx, email, pw)

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.finish(gen) {
		return nil
	}
	if perr != nil {
		switch {
		case errors.Is(perr, provider.ErrResetRequired):
			m.notify(KindWarning, "Password Reset Required",
				"For your security, please reset your password.")
			m.step = StepForgotPassword
		case provider.IsConn(perr):
			m.log.Warn("login failed", logger.Email(email), logger.Err(perr))
			m.connectionError()
		default:
			m.notify(KindError, "Login Failed",
				"Incorrect email or password. Please check your credentials.")
		}
		return nil
	}
	m.userID = res.UserID
	m.sessionToken = res.SessionToken
	// login de usuario existente: sin escritura de directorio
	m.step = StepDone
	return nil
}

// GoToForgotPassword navega de Login a ForgotPassword (sin red).
func (m *Machine) GoToForgotPassword() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.step = StepForgotPassword
}

// SubmitForgotPassword pide el email de reset con redirects de vuelta al
// flujo y retorna a Identify: la próxima entrada es el deep link, no el form.
func (m *Machine) SubmitForgotPassword(ctx context.Context, loginURL, resetURL string) error {
	m.mu.Lock()
	if !validEmail(m.email) {
		m.setFieldErr("email", "Please enter a valid email address")
		m.mu.Unlock()
		return nil
	}
	gen, err := m.begin()
	if err != nil {
		m.mu.Unlock()
		return err
	}
	email := m.email
	m.mu.Unlock()

	perr := m.provider.StartPasswordReset(ctx, email, loginURL, resetURL)

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.finish(gen) {
		return nil
	}
	if perr != nil {
		m.log.Warn("reset start failed", logger.Email(email), logger.Err(perr))
		m.connectionError()
		return nil
	}
	m.notify(KindSuccess, "Check Your Email",
		"We sent you a link to reset your password.")
	m.step = StepIdentify
	return nil
}

// OAuthCallback canjea el token del callback. Usuario ya en el directorio →
// Done sin escritura; nuevo → NameCapture (sin OTP: el proveedor ya autenticó).
func (m *Machine) OAuthCallback(ctx context.Context, token string) error {
	m.mu.Lock()
	gen, err := m.begin()
	if err != nil {
		m.mu.Unlock()
		return err
	}
	m.mu.Unlock()

	res, perr := m.provider.AuthenticateOAuth(ctx, token)
	if perr != nil {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.finish(gen) {
			m.log.Warn("oauth authenticate failed", logger.Err(perr))
			m.notify(KindError, "Login Failed", "Please try again.")
		}
		return nil
	}

	// mismo existence check que Identify, con el email del proveedor
	exists, derr := m.directory.Exists(ctx, res.Email)

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.finish(gen) {
		return nil
	}
	m.userID = res.UserID
	m.sessionToken = res.SessionToken
	m.email = directory.NormalizeEmail(res.Email)
	m.credentialed = true
	if derr != nil {
		m.log.Warn("exists check failed after oauth", logger.Err(derr))
		m.connectionError()
		return nil
	}
	if exists.Exists {
		m.step = StepDone
		return nil
	}
	m.oauthed = true
	m.step = StepNameCapture
	return nil
}

// PasskeySignIn es el atajo biométrico desde Identify: éxito → Done sin
// escritura de directorio (solo usuarios existentes registran passkeys).
func (m *Machine) PasskeySignIn(ctx context.Context, assertion string) error {
	m.mu.Lock()
	gen, err := m.begin()
	if err != nil {
		m.mu.Unlock()
		return err
	}
	m.mu.Unlock()

	res, perr := m.provider.AuthenticatePasskey(ctx, assertion)

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.finish(gen) {
		return nil
	}
	if perr != nil {
		m.notify(KindError, "Biometric Login Failed",
			"We could not verify your identity. Please try another method.")
		return nil
	}
	m.userID = res.UserID
	m.sessionToken = res.SessionToken
	if res.Email != "" {
		m.email = directory.NormalizeEmail(res.Email)
	}
	m.step = StepDone
	return nil
}
