// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package signin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/taibuivan/shopauth/internal/platform/ctxutil"
	"github.com/taibuivan/shopauth/internal/platform/dberr"
	"github.com/taibuivan/shopauth/internal/platform/sec"
	"github.com/taibuivan/shopauth/internal/users/account"
	"github.com/taibuivan/shopauth/internal/users/otp"
	"github.com/taibuivan/shopauth/internal/users/recovery"
	"github.com/taibuivan/shopauth/internal/users/session"
	"github.com/taibuivan/shopauth/internal/users/token"
	"github.com/taibuivan/shopauth/pkg/uuid"
)

// # Collaborators

// TokenIssuer mints the first pair of a new session.
type TokenIssuer interface {
	Issue(context context.Context, subject token.Subject, sessionID string) (token.Pair, error)
}

// SessionRecorder persists the device a sign-in completed on.
type SessionRecorder interface {
	Record(context context.Context, session session.Session) error
}

// TOTPVerifier checks authenticator codes.
type TOTPVerifier interface {
	Verify(context context.Context, user *account.User, code string) error
}

// CodeService issues and checks email codes.
type CodeService interface {
	Issue(context context.Context, userID string, codeType otp.Type) (otp.Issued, error)
	Verify(context context.Context, userID string, codeType otp.Type, code string) error
	Pending(context context.Context, userID string, codeType otp.Type) (time.Time, error)
}

// RecoveryVerifier redeems recovery codes.
type RecoveryVerifier interface {
	Verify(context context.Context, userID, code string, origin recovery.Origin) error
	Status(context context.Context, userID string) (recovery.Status, error)
}

// CodeMailer delivers an issued email code to the user.
type CodeMailer interface {
	SendCode(context context.Context, user *account.User, issued otp.Issued) error
}

// Dependencies groups everything the [Machine] talks to.
type Dependencies struct {
	Users    account.UserRepository
	Lockout  *Lockout
	States   StateStore
	Tokens   TokenIssuer
	Sessions SessionRecorder
	TOTP     TOTPVerifier
	Codes    CodeService
	Recovery RecoveryVerifier
	Mailer   CodeMailer
}

// Machine runs sign-in transitions. It holds no per-flow state of its own.
type Machine struct {
	Dependencies
	now func() time.Time
}

// Option customizes a [Machine].
type Option func(*Machine)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(machine *Machine) { machine.now = now }
}

// NewMachine creates a sign-in machine.
func NewMachine(dependencies Dependencies, options ...Option) *Machine {
	machine := &Machine{Dependencies: dependencies, now: time.Now}
	for _, option := range options {
		option(machine)
	}
	return machine
}

// dummyHash is compared against when the identifier is unknown so that both
// failure paths cost one bcrypt comparison.
var dummyHash = sync.OnceValue(func() string {
	hash, _ := sec.HashPassword("signin-timing-equalizer")
	return hash
})

// # First Factor

/*
SignIn checks the password and either authenticates or opens a pending flow.

Parameters:
  - context: context.Context
  - credentials: Credentials (identifier is a username or email)

Returns:
  - Outcome: Authenticated with tokens, or a waiting state with a state token
  - error: *LockedError, ErrInvalidCredentials or infrastructure failures
*/
func (machine *Machine) SignIn(context context.Context, credentials Credentials) (Outcome, error) {
	logger := ctxutil.GetLogger(context)
	identifier := strings.TrimSpace(credentials.Identifier)

	// ── 1. Lockout Gate ───────────────────────────────────────────────
	if err := machine.Lockout.Check(context, identifier); err != nil {
		var locked *LockedError
		if errors.As(err, &locked) {
			logger.WarnContext(context, "signin_rejected_locked",
				slog.Duration("retry_after", locked.RetryAfter),
			)
		}
		return Outcome{State: StateLocked}, err
	}

	// ── 2. Password Check ─────────────────────────────────────────────
	user, err := machine.lookup(context, identifier)
	if err != nil {
		return Outcome{}, err
	}

	if !machine.passwordMatches(user, credentials.Password) {
		return Outcome{State: StateAwaitingCredentials}, machine.recordFailure(context, identifier)
	}

	if err := machine.Lockout.Reset(context, identifier); err != nil {
		return Outcome{}, err
	}

	// ── 3. Second Factor Routing ──────────────────────────────────────
	methods, err := machine.methodsFor(context, user)
	if err != nil {
		return Outcome{}, err
	}

	if !user.MFAEnabled() {
		return machine.authenticate(context, user, credentials.Device, "password")
	}

	pending := Pending{
		UserID:    user.ID,
		Device:    credentials.Device,
		Methods:   methods,
		CreatedAt: machine.now().UTC(),
		Step:      SelectionStep{},
	}

	switch {
	case user.TOTPEnabled && user.EmailMFAEnabled:
		// Both factors: the user picks.
	case user.TOTPEnabled:
		pending.Step = TOTPStep{}
	default:
		step, err := machine.sendEmailCode(context, user)
		if err != nil {
			return Outcome{}, err
		}
		pending.Step = step
	}

	stateToken, err := machine.States.Create(context, pending)
	if err != nil {
		return Outcome{}, err
	}

	logger.InfoContext(context, "signin_second_factor_required",
		slog.String("user_id", user.ID),
		slog.String("state", string(pending.Step.State())),
	)

	return machine.pendingOutcome(user, pending, stateToken), nil
}

func (machine *Machine) lookup(context context.Context, identifier string) (*account.User, error) {
	if identifier == "" {
		return nil, nil
	}

	user, err := machine.Users.FindByIdentifier(context, identifier)
	if errors.Is(err, dberr.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("signin_lookup_failed: %w", err)
	}
	return user, nil
}

func (machine *Machine) passwordMatches(user *account.User, password string) bool {
	if user == nil || !user.HasPassword() {
		sec.CheckPasswordHash(password, dummyHash())
		return false
	}
	return sec.CheckPasswordHash(password, user.PasswordHash)
}

func (machine *Machine) recordFailure(context context.Context, identifier string) error {
	count, locked, err := machine.Lockout.RecordFailure(context, identifier)
	if err != nil {
		return err
	}

	logger := ctxutil.GetLogger(context)
	if locked {
		logger.WarnContext(context, "signin_locked", slog.Int("failures", count))
	} else {
		logger.InfoContext(context, "signin_failed", slog.Int("failures", count))
	}
	return ErrInvalidCredentials
}

// methodsFor lists the user's second factors. Recovery codes are offered only
// as a fallback for accounts that have another factor.
func (machine *Machine) methodsFor(context context.Context, user *account.User) ([]Method, error) {
	var methods []Method
	if user.TOTPEnabled {
		methods = append(methods, MethodTOTP)
	}
	if user.EmailMFAEnabled {
		methods = append(methods, MethodEmail)
	}
	if len(methods) == 0 {
		return nil, nil
	}

	status, err := machine.Recovery.Status(context, user.ID)
	if err != nil {
		return nil, err
	}
	if status.HasValidCodes {
		methods = append(methods, MethodRecovery)
	}
	return methods, nil
}

// # Second Factor Selection

// SelectMethod moves a pending sign-in to the state waiting for method.
// Picking email sends a fresh code unless one went out within the cooldown.
func (machine *Machine) SelectMethod(context context.Context, stateToken string, method Method) (Outcome, error) {
	pending, err := machine.States.Load(context, stateToken)
	if err != nil {
		return Outcome{}, err
	}

	if _, ok := method.waitingState(); !ok || !pending.Allows(method) {
		return Outcome{}, ErrMethodNotAvailable
	}

	user, err := machine.pendingUser(context, pending)
	if err != nil {
		return Outcome{}, err
	}

	switch method {
	case MethodTOTP:
		pending.Step = TOTPStep{}
	case MethodRecovery:
		pending.Step = RecoveryStep{}
	case MethodEmail:
		step, err := machine.sendEmailCode(context, user)
		if err != nil {
			return Outcome{}, err
		}
		pending.Step = step
	}

	if err := machine.States.Update(context, stateToken, *pending); err != nil {
		return Outcome{}, err
	}

	ctxutil.GetLogger(context).InfoContext(context, "signin_method_selected",
		slog.String("user_id", user.ID),
		slog.String("method", string(method)),
	)

	return machine.pendingOutcome(user, *pending, stateToken), nil
}

// ResendEmailCode sends a new code for a sign-in waiting on email. The
// per-user cooldown applies.
func (machine *Machine) ResendEmailCode(context context.Context, stateToken string) (Outcome, error) {
	pending, err := machine.States.Load(context, stateToken)
	if err != nil {
		return Outcome{}, err
	}
	if _, ok := pending.Step.(EmailStep); !ok {
		return Outcome{}, ErrWrongStep
	}

	user, err := machine.pendingUser(context, pending)
	if err != nil {
		return Outcome{}, err
	}

	issued, err := machine.Codes.Issue(context, user.ID, otp.TypeMFA)
	if err != nil {
		return Outcome{}, err
	}
	if err := machine.Mailer.SendCode(context, user, issued); err != nil {
		return Outcome{}, fmt.Errorf("signin_send_code_failed: %w", err)
	}

	pending.Step = EmailStep{SentAt: machine.now().UTC(), CodeExpiresAt: issued.ExpiresAt}
	if err := machine.States.Update(context, stateToken, *pending); err != nil {
		return Outcome{}, err
	}
	return machine.pendingOutcome(user, *pending, stateToken), nil
}

// sendEmailCode issues and mails an MFA code. During the cooldown the code
// already in the user's inbox is reused, as long as it can still be redeemed.
func (machine *Machine) sendEmailCode(context context.Context, user *account.User) (EmailStep, error) {
	now := machine.now().UTC()

	issued, err := machine.Codes.Issue(context, user.ID, otp.TypeMFA)
	if err != nil {
		var cooldown *otp.CooldownError
		if !errors.As(err, &cooldown) {
			return EmailStep{}, err
		}

		expiresAt, pendingErr := machine.Codes.Pending(context, user.ID, otp.TypeMFA)
		if pendingErr != nil {
			return EmailStep{}, pendingErr
		}
		if expiresAt.IsZero() {
			return EmailStep{}, err
		}

		ctxutil.GetLogger(context).InfoContext(context, "signin_email_code_reused",
			slog.String("user_id", user.ID),
		)
		return EmailStep{SentAt: now, CodeExpiresAt: expiresAt}, nil
	}

	if err := machine.Mailer.SendCode(context, user, issued); err != nil {
		return EmailStep{}, fmt.Errorf("signin_send_code_failed: %w", err)
	}
	return EmailStep{SentAt: now, CodeExpiresAt: issued.ExpiresAt}, nil
}

// # Second Factor Completion

// CompleteTOTP finishes a sign-in waiting for an authenticator code.
// A wrong code leaves the state token usable.
func (machine *Machine) CompleteTOTP(context context.Context, stateToken, code string) (Outcome, error) {
	pending, user, err := machine.loadStep(context, stateToken, StateAwaitingTOTP)
	if err != nil {
		return Outcome{}, err
	}
	if !user.TOTPEnabled {
		return Outcome{}, ErrMethodNotAvailable
	}

	if err := machine.TOTP.Verify(context, user, code); err != nil {
		return Outcome{}, err
	}
	return machine.finish(context, stateToken, user, pending, MethodTOTP)
}

// CompleteEmailCode finishes a sign-in waiting for an emailed code.
func (machine *Machine) CompleteEmailCode(context context.Context, stateToken, code string) (Outcome, error) {
	pending, user, err := machine.loadStep(context, stateToken, StateAwaitingEmailCode)
	if err != nil {
		return Outcome{}, err
	}
	if !user.EmailMFAEnabled {
		return Outcome{}, ErrMethodNotAvailable
	}

	if err := machine.Codes.Verify(context, user.ID, otp.TypeMFA, code); err != nil {
		return Outcome{}, err
	}
	return machine.finish(context, stateToken, user, pending, MethodEmail)
}

// CompleteRecoveryCode finishes any pending sign-in with a recovery code,
// provided the account had valid codes when the flow started.
func (machine *Machine) CompleteRecoveryCode(context context.Context, stateToken, code string, origin recovery.Origin) (Outcome, error) {
	pending, err := machine.States.Load(context, stateToken)
	if err != nil {
		return Outcome{}, err
	}
	if !pending.Allows(MethodRecovery) {
		return Outcome{}, ErrMethodNotAvailable
	}

	user, err := machine.pendingUser(context, pending)
	if err != nil {
		return Outcome{}, err
	}

	if err := machine.Recovery.Verify(context, user.ID, code, origin); err != nil {
		return Outcome{}, err
	}
	return machine.finish(context, stateToken, user, pending, MethodRecovery)
}

// Cancel abandons a pending sign-in.
func (machine *Machine) Cancel(context context.Context, stateToken string) error {
	pending, err := machine.States.Consume(context, stateToken)
	if err != nil {
		return err
	}

	ctxutil.GetLogger(context).InfoContext(context, "signin_cancelled",
		slog.String("user_id", pending.UserID),
	)
	return nil
}

func (machine *Machine) loadStep(context context.Context, stateToken string, want State) (*Pending, *account.User, error) {
	pending, err := machine.States.Load(context, stateToken)
	if err != nil {
		return nil, nil, err
	}
	if pending.Step.State() != want {
		return nil, nil, ErrWrongStep
	}

	user, err := machine.pendingUser(context, pending)
	if err != nil {
		return nil, nil, err
	}
	return pending, user, nil
}

func (machine *Machine) pendingUser(context context.Context, pending *Pending) (*account.User, error) {
	user, err := machine.Users.FindByID(context, pending.UserID)
	if errors.Is(err, dberr.ErrNotFound) {
		return nil, ErrInvalidStateToken
	}
	if err != nil {
		return nil, fmt.Errorf("signin_lookup_failed: %w", err)
	}
	return user, nil
}

// finish consumes the state token and authenticates. When two requests
// complete the same flow only the one that consumes the token wins.
func (machine *Machine) finish(context context.Context, stateToken string, user *account.User, pending *Pending, method Method) (Outcome, error) {
	if _, err := machine.States.Consume(context, stateToken); err != nil {
		return Outcome{}, err
	}
	return machine.authenticate(context, user, pending.Device, string(method))
}

// # Authentication

// authenticate opens a session and mints its token family.
func (machine *Machine) authenticate(context context.Context, user *account.User, device session.Device, method string) (Outcome, error) {
	sessionID := uuid.New()

	pair, err := machine.Tokens.Issue(context, token.Subject{
		UserID:       user.ID,
		Username:     user.Username,
		Role:         string(user.Role),
		TokenVersion: user.TokenVersion,
	}, sessionID)
	if err != nil {
		return Outcome{}, err
	}

	err = machine.Sessions.Record(context, session.Session{
		ID:         sessionID,
		UserID:     user.ID,
		FamilyID:   pair.FamilyID,
		DeviceName: device.Name,
		IPAddress:  device.IPAddress,
		UserAgent:  device.UserAgent,
		ExpiresAt:  pair.RefreshExpiresAt,
	})
	if err != nil {
		return Outcome{}, err
	}

	ctxutil.GetLogger(context).InfoContext(context, "signin_succeeded",
		slog.String("user_id", user.ID),
		slog.String("session_id", sessionID),
		slog.String("method", method),
	)

	return Outcome{
		State:                     StateAuthenticated,
		User:                      user,
		Tokens:                    &pair,
		RequiresEmailVerification: !user.EmailVerified,
	}, nil
}

func (machine *Machine) pendingOutcome(user *account.User, pending Pending, stateToken string) Outcome {
	return Outcome{
		State:                     pending.Step.State(),
		User:                      user,
		StateToken:                stateToken,
		Methods:                   pending.Methods,
		RequiresEmailVerification: !user.EmailVerified,
	}
}
