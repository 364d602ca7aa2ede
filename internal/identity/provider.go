// Package identity registers diner and eatery accounts, issues session tokens
// and resolves them back to an account reference.
package identity

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dinepoint/dinepoint/internal/apperr"
	"github.com/dinepoint/dinepoint/internal/config"
	"github.com/dinepoint/dinepoint/internal/mail"
	"github.com/dinepoint/dinepoint/internal/models"
	"github.com/dinepoint/dinepoint/internal/security"
	"github.com/dinepoint/dinepoint/internal/settings"
	"github.com/dinepoint/dinepoint/internal/util"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var emailPattern = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Z|a-z]{2,}$`)

// maxContactLength bounds an eatery's phone number.
const maxContactLength = 10

// Provider is the identity provider.
type Provider struct {
	db       *gorm.DB
	sessions SessionStore
	sender   mail.Sender
	secret   string
	expiry   time.Duration
	now      func() time.Time
}

// Option customises a Provider.
type Option func(*Provider)

// WithClock overrides the provider clock.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) {
		if now != nil {
			p.now = now
		}
	}
}

// WithSessionStore replaces the database session store.
func WithSessionStore(s SessionStore) Option {
	return func(p *Provider) {
		if s != nil {
			p.sessions = s
		}
	}
}

// WithSender sets how password reset codes are delivered.
func WithSender(s mail.Sender) Option {
	return func(p *Provider) {
		if s != nil {
			p.sender = s
		}
	}
}

// NewProvider constructs a Provider signing tokens with cfg.
func NewProvider(db *gorm.DB, cfg config.JWTConfig, opts ...Option) *Provider {
	p := &Provider{
		db:       db,
		sessions: NewDBSessionStore(db),
		sender:   mail.LogSender{},
		secret:   cfg.Secret,
		expiry:   cfg.Expiry,
		now:      time.Now,
	}
	if p.expiry <= 0 {
		p.expiry = 24 * time.Hour
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Grant is the result of a successful registration or login.
type Grant struct {
	Token     string `json:"token"`
	AccountID uint64 `json:"user_id"`
	IsDiner   bool   `json:"is_diner"`
}

// DinerRegistration is a new diner account.
type DinerRegistration struct {
	Email    string
	Name     string
	Password string
}

// EateryRegistration is a new eatery account. Latitude and Longitude are
// optional decimal strings.
type EateryRegistration struct {
	Email     string
	Password  string
	Name      string
	Contact   string
	Address   string
	Latitude  string
	Longitude string
}

// RegisterDiner creates a diner account and signs it in.
func (p *Provider) RegisterDiner(ctx context.Context, in DinerRegistration) (Grant, error) {
	email := strings.TrimSpace(in.Email)
	if errPassword := checkPassword(in.Password); errPassword != nil {
		return Grant{}, errPassword
	}
	hash, errHash := security.HashPassword(in.Password)
	if errHash != nil {
		return Grant{}, fmt.Errorf("identity: %w", errHash)
	}

	diner := models.Diner{Email: email, Name: strings.TrimSpace(in.Name), Password: hash}
	errTx := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errEmail := checkEmail(tx, email); errEmail != nil {
			return errEmail
		}
		return tx.Create(&diner).Error
	})
	if errTx != nil {
		return Grant{}, wrap("register diner", errTx)
	}
	log.WithField("diner_id", diner.ID).Info("identity: diner registered")
	return p.issue(ctx, models.AccountRef{ID: diner.ID, Kind: models.KindDiner})
}

// RegisterEatery creates an eatery account with a disabled loyalty program
// and signs it in.
func (p *Provider) RegisterEatery(ctx context.Context, in EateryRegistration) (Grant, error) {
	email := strings.TrimSpace(in.Email)
	if errPassword := checkPassword(in.Password); errPassword != nil {
		return Grant{}, errPassword
	}
	contact := strings.TrimSpace(in.Contact)
	if len(contact) > maxContactLength {
		return Grant{}, apperr.Input(apperr.ErrInvalidInput, "Phone number is too long")
	}
	lat, errLat := ParseCoordinate(in.Latitude)
	if errLat != nil {
		return Grant{}, errLat
	}
	lng, errLng := ParseCoordinate(in.Longitude)
	if errLng != nil {
		return Grant{}, errLng
	}
	hash, errHash := security.HashPassword(in.Password)
	if errHash != nil {
		return Grant{}, fmt.Errorf("identity: %w", errHash)
	}

	eatery := models.Eatery{
		Email:     email,
		Password:  hash,
		Name:      strings.TrimSpace(in.Name),
		Contact:   contact,
		Address:   strings.TrimSpace(in.Address),
		Latitude:  lat,
		Longitude: lng,
	}
	errTx := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errEmail := checkEmail(tx, email); errEmail != nil {
			return errEmail
		}
		if errCreate := tx.Create(&eatery).Error; errCreate != nil {
			return errCreate
		}
		return tx.Create(&models.LoyaltyConfig{EateryID: eatery.ID, PointGoal: 10}).Error
	})
	if errTx != nil {
		return Grant{}, wrap("register eatery", errTx)
	}
	log.WithField("eatery_id", eatery.ID).Info("identity: eatery registered")
	return p.issue(ctx, models.AccountRef{ID: eatery.ID, Kind: models.KindEatery})
}

// Login checks credentials against both account kinds and signs in.
func (p *Provider) Login(ctx context.Context, email, password string) (Grant, error) {
	acc, found, errFind := findByEmail(p.db.WithContext(ctx), strings.TrimSpace(email))
	if errFind != nil {
		return Grant{}, wrap("login", errFind)
	}
	if !found || !security.CheckPassword(acc.password, password) {
		return Grant{}, apperr.Input(apperr.ErrInvalidInput, "Email or password is incorrect")
	}
	return p.issue(ctx, acc.ref)
}

// Logout revokes the session behind token.
func (p *Provider) Logout(ctx context.Context, token string) error {
	claims, errClaims := p.claims(token)
	if errClaims != nil {
		return errClaims
	}
	errRevoke := p.sessions.Revoke(ctx, claims.SessionID())
	if errors.Is(errRevoke, ErrSessionNotFound) {
		return apperr.Access(apperr.ErrAccessDenied, "Invalid token")
	}
	return errRevoke
}

// Resolve returns the account a token was issued to. Expired, revoked or
// malformed tokens fail with an access error.
func (p *Provider) Resolve(ctx context.Context, token string) (models.AccountRef, error) {
	claims, errClaims := p.claims(token)
	if errClaims != nil {
		return models.AccountRef{}, errClaims
	}
	session, errLookup := p.sessions.Lookup(ctx, claims.SessionID())
	if errors.Is(errLookup, ErrSessionNotFound) {
		return models.AccountRef{}, apperr.Access(apperr.ErrAccessDenied, "Invalid token")
	}
	if errLookup != nil {
		return models.AccountRef{}, errLookup
	}
	ref := models.AccountRef{ID: claims.AccountID, Kind: models.AccountKind(claims.Kind)}
	if session.AccountID != ref.ID || session.Kind != ref.Kind || !p.now().Before(session.ExpiresAt) {
		return models.AccountRef{}, apperr.Access(apperr.ErrAccessDenied, "Invalid token")
	}
	return ref, nil
}

// AccountExists reports whether id names an account of kind.
func (p *Provider) AccountExists(ctx context.Context, id uint64, kind models.AccountKind) (bool, error) {
	if !kind.Valid() {
		return false, nil
	}
	exists, err := accountExists(p.db.WithContext(ctx), models.AccountRef{ID: id, Kind: kind})
	if err != nil {
		return false, wrap("account exists", err)
	}
	return exists, nil
}

// RequestPasswordReset signs the account out everywhere and emails a reset
// code. Unknown emails succeed silently.
func (p *Provider) RequestPasswordReset(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	acc, found, errFind := findByEmail(p.db.WithContext(ctx), email)
	if errFind != nil {
		return wrap("request reset", errFind)
	}
	if !found {
		return nil
	}
	if errRevoke := p.sessions.RevokeAll(ctx, acc.ref); errRevoke != nil {
		return errRevoke
	}

	ttl := time.Duration(settings.Int(settings.ResetCodeTTLMinutesKey, settings.DefaultResetCodeTTLMinutes)) * time.Minute
	reset := models.PasswordReset{
		Code:      uuid.NewString(),
		AccountID: acc.ref.ID,
		Kind:      acc.ref.Kind,
		ExpiresAt: p.now().Add(ttl),
	}
	errTx := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errDelete := tx.Where("account_id = ? AND kind = ?", acc.ref.ID, acc.ref.Kind).Delete(&models.PasswordReset{}).Error; errDelete != nil {
			return errDelete
		}
		return tx.Create(&reset).Error
	})
	if errTx != nil {
		return wrap("request reset", errTx)
	}
	if errSend := p.sender.Send(ctx, mail.PasswordReset(acc.email, acc.name, reset.Code)); errSend != nil {
		log.WithError(errSend).WithField("code", util.MaskCode(reset.Code)).Error("identity: reset email failed")
		return errSend
	}
	return nil
}

// ResetPassword sets a new password using an emailed reset code. The code is
// consumed.
func (p *Provider) ResetPassword(ctx context.Context, code, newPassword string) error {
	if errPassword := checkPassword(newPassword); errPassword != nil {
		return errPassword
	}
	hash, errHash := security.HashPassword(newPassword)
	if errHash != nil {
		return fmt.Errorf("identity: %w", errHash)
	}
	errTx := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var reset models.PasswordReset
		errFind := tx.Where("code = ?", strings.TrimSpace(code)).Take(&reset).Error
		if errors.Is(errFind, gorm.ErrRecordNotFound) || (errFind == nil && !p.now().Before(reset.ExpiresAt)) {
			return apperr.Input(apperr.ErrInvalidInput, "Invalid reset code entered")
		}
		if errFind != nil {
			return errFind
		}
		if errUpdate := setPassword(tx, models.AccountRef{ID: reset.AccountID, Kind: reset.Kind}, hash); errUpdate != nil {
			return errUpdate
		}
		return tx.Where("account_id = ? AND kind = ?", reset.AccountID, reset.Kind).Delete(&models.PasswordReset{}).Error
	})
	return wrap("reset password", errTx)
}

// ChangePassword replaces the password of a signed-in account.
func (p *Provider) ChangePassword(ctx context.Context, ref models.AccountRef, oldPassword, newPassword string) error {
	if errPassword := checkPassword(newPassword); errPassword != nil {
		return errPassword
	}
	errTx := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		acc, found, errFind := findAccount(tx, ref.Kind, "id = ?", ref.ID)
		if errFind != nil {
			return errFind
		}
		if !found {
			return apperr.Access(apperr.ErrAccessDenied, "Invalid token")
		}
		if !security.CheckPassword(acc.password, oldPassword) {
			return apperr.Input(apperr.ErrInvalidInput, "Current password is incorrect")
		}
		hash, errHash := security.HashPassword(newPassword)
		if errHash != nil {
			return errHash
		}
		return setPassword(tx, ref, hash)
	})
	return wrap("change password", errTx)
}

func (p *Provider) issue(ctx context.Context, ref models.AccountRef) (Grant, error) {
	if strings.TrimSpace(p.secret) == "" {
		return Grant{}, errors.New("identity: jwt secret is not configured")
	}
	now := p.now()
	session := models.Session{
		ID:        uuid.NewString(),
		AccountID: ref.ID,
		Kind:      ref.Kind,
		ExpiresAt: now.Add(p.expiry),
	}
	if errSave := p.sessions.Save(ctx, session); errSave != nil {
		return Grant{}, errSave
	}
	token, errToken := security.GenerateToken(p.secret, ref.ID, string(ref.Kind), session.ID, now, p.expiry)
	if errToken != nil {
		return Grant{}, fmt.Errorf("identity: sign token: %w", errToken)
	}
	return Grant{Token: token, AccountID: ref.ID, IsDiner: ref.IsDiner()}, nil
}

func (p *Provider) claims(token string) (*security.AccountClaims, error) {
	claims, err := security.ParseToken(p.secret, strings.TrimSpace(token))
	if err != nil {
		return nil, apperr.Access(apperr.ErrAccessDenied, "Invalid token")
	}
	if !models.AccountKind(claims.Kind).Valid() {
		return nil, apperr.Access(apperr.ErrAccessDenied, "Invalid token")
	}
	return claims, nil
}

func checkPassword(password string) error {
	if len(password) < security.MinPasswordLength {
		return apperr.Input(apperr.ErrInvalidInput, "New password must be at least %d characters", security.MinPasswordLength)
	}
	return nil
}

// checkEmail requires a well-formed email that no account of either kind uses.
func checkEmail(tx *gorm.DB, email string) error {
	if !ValidEmail(email) {
		return apperr.Input(apperr.ErrInvalidInput, "The provided email is not valid")
	}
	taken, errFind := EmailInUse(tx, email, models.AccountRef{})
	if errFind != nil {
		return errFind
	}
	if taken {
		return apperr.Input(apperr.ErrInvalidInput, "This email address is already associated with an existing account")
	}
	return nil
}

// ParseCoordinate parses an optional latitude or longitude and rounds it to
// six decimal places. An empty value is zero.
func ParseCoordinate(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, apperr.Input(apperr.ErrInvalidInput, "Invalid coordinate.")
	}
	return math.Round(v*1e6) / 1e6, nil
}

// wrap leaves classified errors untouched and annotates storage failures.
func wrap(op string, err error) error {
	if err == nil || apperr.KindOf(err) != 0 {
		return err
	}
	return fmt.Errorf("identity: %s: %w", op, err)
}
