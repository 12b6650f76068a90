// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package app_test

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	pquerna "github.com/pquerna/otp/totp"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"github.com/taibuivan/shopauth/internal/app"
	"github.com/taibuivan/shopauth/internal/notify"
	"github.com/taibuivan/shopauth/internal/platform/config"
	"github.com/taibuivan/shopauth/internal/platform/constants"
	"github.com/taibuivan/shopauth/internal/platform/sec"
	"github.com/taibuivan/shopauth/internal/users/account"
	"github.com/taibuivan/shopauth/internal/users/recovery"
	"github.com/taibuivan/shopauth/internal/users/session"
)

const (
	userPassword = "Gx7#mQ2v!Lp9zR"
	fixedCode    = "246810"
)

var (
	keyOnce sync.Once
	testKey *rsa.PrivateKey
	keyErr  error
)

type outbox struct {
	mu       sync.Mutex
	messages []notify.Message
}

func (box *outbox) Send(_ context.Context, message notify.Message) error {
	box.mu.Lock()
	defer box.mu.Unlock()
	box.messages = append(box.messages, message)
	return nil
}

func (box *outbox) count() int {
	box.mu.Lock()
	defer box.mu.Unlock()
	return len(box.messages)
}

// # Suite

// EndToEndSuite drives the assembled service over real HTTP with memory
// repositories and miniredis behind it.
type EndToEndSuite struct {
	suite.Suite

	redis  *miniredis.Miniredis
	server *httptest.Server
	outbox *outbox
	cancel context.CancelFunc
}

func TestEndToEnd(t *testing.T) {
	suite.Run(t, new(EndToEndSuite))
}

func testConfig() *config.Config {
	return &config.Config{
		ServerPort:             "0",
		Environment:            "test",
		StorageDriver:          config.DriverMemory,
		AccessTokenTTL:         15 * time.Minute,
		RefreshTokenTTL:        24 * time.Hour,
		StateTokenTTL:          5 * time.Minute,
		LockoutThreshold:       5,
		LockoutWindow:          15 * time.Minute,
		CodeTTL:                5 * time.Minute,
		CodeCooldown:           120 * time.Second,
		FixedCode:              fixedCode,
		TOTPIssuer:             "Shop",
		BlacklistDriver:        config.DriverMemory,
		BlacklistCapacity:      1000,
		BlacklistSweepInterval: time.Minute,
		PasswordMinLength:      12,
		RateLimitRPS:           100,
		RateLimitBurst:         200,
		SessionPruneInterval:   time.Hour,
	}
}

func (s *EndToEndSuite) SetupTest() {
	keyOnce.Do(func() { testKey, keyErr = rsa.GenerateKey(rand.Reader, 2048) })
	s.Require().NoError(keyErr)

	s.redis = miniredis.RunT(s.T())
	client := redis.NewClient(&redis.Options{Addr: s.redis.Addr()})
	s.T().Cleanup(func() { _ = client.Close() })

	cfg := testConfig()
	s.Require().NoError(cfg.Validate())

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.outbox = &outbox{}

	var ctx context.Context
	ctx, s.cancel = context.WithCancel(context.Background())

	service := app.New(ctx, cfg, logger, app.Infrastructure{
		Redis:         client,
		Users:         account.NewMemoryUserRepository(),
		Sessions:      session.NewMemoryRepository(),
		RecoveryCodes: recovery.NewMemoryRepository(),
		Signer:        sec.NewTokenServiceFromKey(testKey, &testKey.PublicKey, "auth.test", "shop-test"),
		Sender:        s.outbox,
		CheckCache:    func(context context.Context) error { return client.Ping(context).Err() },
	})
	wait := service.RunBackground(ctx)

	s.server = httptest.NewServer(service.Server.Handler())
	s.T().Cleanup(func() {
		s.server.Close()
		s.cancel()
		wait()
	})
}

// # HTTP helpers

type reply struct {
	status int
	header http.Header
	body   []byte
}

func (r reply) data(target any) error {
	return json.Unmarshal(r.body, &struct {
		Data any `json:"data"`
	}{Data: target})
}

func (r reply) errorCode() string {
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	_ = json.Unmarshal(r.body, &envelope)
	return envelope.Error.Code
}

func (s *EndToEndSuite) call(method, path string, body any, bearer string) reply {
	var payload io.Reader = http.NoBody
	if body != nil {
		encoded, err := json.Marshal(body)
		s.Require().NoError(err)
		payload = bytes.NewReader(encoded)
	}

	request, err := http.NewRequest(method, s.server.URL+"/api/v1"+path, payload)
	s.Require().NoError(err)
	request.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		request.Header.Set(constants.HeaderAuthorization, "Bearer "+bearer)
	}

	response, err := s.server.Client().Do(request)
	s.Require().NoError(err)
	defer response.Body.Close()

	raw, err := io.ReadAll(response.Body)
	s.Require().NoError(err)
	return reply{status: response.StatusCode, header: response.Header, body: raw}
}

type signInBody struct {
	AccessToken          string   `json:"accessToken"`
	RefreshToken         string   `json:"refreshToken"`
	RequiresTOTP         bool     `json:"requiresTOTP"`
	RequiresEmailCode    bool     `json:"requiresEmailCode"`
	RequiresMFASelection bool     `json:"requiresMFASelection"`
	Methods              []string `json:"methods"`
	TempToken            string   `json:"tempToken"`
}

func (s *EndToEndSuite) register(username, email string) {
	r := s.call(http.MethodPost, "/auth/register", map[string]string{
		"username": username,
		"email":    email,
		"password": userPassword,
	}, "")
	s.Require().Equal(http.StatusCreated, r.status, string(r.body))
}

func (s *EndToEndSuite) signIn(identifier, password string) (reply, signInBody) {
	r := s.call(http.MethodPost, "/auth/sign-in", map[string]string{
		"identifier": identifier,
		"password":   password,
	}, "")
	var body signInBody
	if r.status == http.StatusOK {
		s.Require().NoError(r.data(&body))
	}
	return r, body
}

func (s *EndToEndSuite) enableTOTP(accessToken string) string {
	r := s.call(http.MethodPost, "/mfa/totp/setup", nil, accessToken)
	s.Require().Equal(http.StatusOK, r.status, string(r.body))

	var provisioning struct {
		Secret string `json:"secret"`
	}
	s.Require().NoError(r.data(&provisioning))

	code, err := pquerna.GenerateCode(provisioning.Secret, time.Now())
	s.Require().NoError(err)
	r = s.call(http.MethodPost, "/mfa/totp/verify", map[string]string{"code": code}, accessToken)
	s.Require().Equal(http.StatusOK, r.status, string(r.body))
	return provisioning.Secret
}

// # Scenarios

func (s *EndToEndSuite) TestHealth() {
	s.Equal(http.StatusOK, s.call(http.MethodGet, "/health", nil, "").status)
	s.Equal(http.StatusOK, s.call(http.MethodGet, "/ready", nil, "").status)

	s.redis.SetError("connection lost")
	s.Equal(http.StatusServiceUnavailable, s.call(http.MethodGet, "/ready", nil, "").status)
}

// Scenario A: register, sign in without MFA, use the access token.
func (s *EndToEndSuite) TestScenarioA_PasswordOnly() {
	s.register("alice", "alice@shop.local")
	s.Equal(1, s.outbox.count(), "verification email")

	r, body := s.signIn("alice", userPassword)
	s.Require().Equal(http.StatusOK, r.status, string(r.body))
	s.Require().NotEmpty(body.AccessToken)
	s.False(body.RequiresTOTP)

	me := s.call(http.MethodGet, "/auth/me", nil, body.AccessToken)
	s.Equal(http.StatusOK, me.status)

	logout := s.call(http.MethodPost, "/auth/logout", nil, body.AccessToken)
	s.Equal(http.StatusNoContent, logout.status)
	s.Equal(http.StatusUnauthorized, s.call(http.MethodGet, "/auth/me", nil, body.AccessToken).status)
}

// Scenario B: enable TOTP, sign in, answer the TOTP challenge.
func (s *EndToEndSuite) TestScenarioB_TOTP() {
	s.register("bob", "bob@shop.local")
	_, first := s.signIn("bob", userPassword)
	secret := s.enableTOTP(first.AccessToken)

	r, pending := s.signIn("bob@shop.local", userPassword)
	s.Require().Equal(http.StatusOK, r.status)
	s.True(pending.RequiresTOTP)
	s.Empty(pending.AccessToken)
	s.Require().NotEmpty(pending.TempToken)

	// A state token is not a bearer token.
	s.Equal(http.StatusUnauthorized, s.call(http.MethodGet, "/auth/me", nil, pending.TempToken).status)

	// The enrolment step is spent, so answer with the next one.
	code, err := pquerna.GenerateCode(secret, time.Now().Add(30*time.Second))
	s.Require().NoError(err)

	r = s.call(http.MethodPost, "/auth/sign-in/mfa/totp", map[string]string{
		"tempToken": pending.TempToken,
		"code":      code,
	}, "")
	s.Require().Equal(http.StatusOK, r.status, string(r.body))

	var done signInBody
	s.Require().NoError(r.data(&done))
	s.NotEmpty(done.AccessToken)
	s.Equal(http.StatusOK, s.call(http.MethodGet, "/auth/me", nil, done.AccessToken).status)
}

// Scenario C: five wrong passwords lock the identifier, even for the right one.
func (s *EndToEndSuite) TestScenarioC_Lockout() {
	s.register("carol", "carol@shop.local")

	for range 5 {
		r, _ := s.signIn("carol", "Wrong#Passw0rd!")
		s.Equal(http.StatusUnauthorized, r.status)
	}

	r, _ := s.signIn("carol", userPassword)
	s.Equal(http.StatusTooManyRequests, r.status)
	s.Equal("ACCOUNT_LOCKED", r.errorCode())
	s.NotEmpty(r.header.Get(constants.HeaderRetryAfter))
}

// Scenario D: a recovery code completes a pending sign-in exactly once.
func (s *EndToEndSuite) TestScenarioD_RecoveryCode() {
	s.register("dave", "dave@shop.local")
	_, first := s.signIn("dave", userPassword)
	s.enableTOTP(first.AccessToken)

	r := s.call(http.MethodPost, "/recovery-codes/generate", nil, first.AccessToken)
	s.Require().Equal(http.StatusOK, r.status, string(r.body))
	var generated struct {
		Codes []string `json:"codes"`
	}
	s.Require().NoError(r.data(&generated))
	s.Require().Len(generated.Codes, recovery.BatchSize)

	_, pending := s.signIn("dave", userPassword)
	s.Require().NotEmpty(pending.TempToken)
	s.Contains(pending.Methods, "recovery_code")

	r = s.call(http.MethodPost, "/recovery-codes/verify", map[string]string{
		"tempToken": pending.TempToken,
		"code":      generated.Codes[0],
	}, "")
	s.Require().Equal(http.StatusOK, r.status, string(r.body))
	var done signInBody
	s.Require().NoError(r.data(&done))
	s.NotEmpty(done.AccessToken)

	_, again := s.signIn("dave", userPassword)
	s.Require().NotEmpty(again.TempToken)
	r = s.call(http.MethodPost, "/recovery-codes/verify", map[string]string{
		"tempToken": again.TempToken,
		"code":      generated.Codes[0],
	}, "")
	s.Equal(http.StatusUnauthorized, r.status)
	s.Equal("RECOVERY_CODE_USED", r.errorCode())

	status := s.call(http.MethodGet, "/recovery-codes/status", nil, done.AccessToken)
	s.Require().Equal(http.StatusOK, status.status)
	var summary recovery.Status
	s.Require().NoError(status.data(&summary))
	s.Equal(recovery.BatchSize-1, summary.Remaining)
}

// Email MFA enrolment followed by an email-code sign-in.
func (s *EndToEndSuite) TestEmailMFA() {
	s.register("erin", "erin@shop.local")
	_, first := s.signIn("erin", userPassword)

	s.Equal(http.StatusBadRequest, s.call(http.MethodPost, "/mfa/email/enable", nil, first.AccessToken).status)

	r := s.call(http.MethodPost, "/auth/verify-email", map[string]string{"code": fixedCode}, first.AccessToken)
	s.Require().Equal(http.StatusOK, r.status, string(r.body))

	r = s.call(http.MethodPost, "/mfa/email/enable", nil, first.AccessToken)
	s.Require().Equal(http.StatusOK, r.status, string(r.body))
	r = s.call(http.MethodPost, "/mfa/email/resend", nil, first.AccessToken)
	s.Equal(http.StatusTooManyRequests, r.status)
	r = s.call(http.MethodPost, "/mfa/email/verify", map[string]string{"code": fixedCode}, first.AccessToken)
	s.Require().Equal(http.StatusOK, r.status, string(r.body))

	// Redeeming the enrolment code lifted the resend cooldown, so sign-in mails a fresh code.

	_, pending := s.signIn("erin", userPassword)
	s.Require().True(pending.RequiresEmailCode)

	r = s.call(http.MethodPost, "/auth/sign-in/mfa/email", map[string]string{
		"tempToken": pending.TempToken,
		"code":      "000000",
	}, "")
	s.Equal(http.StatusUnauthorized, r.status)
	s.Equal("CODE_MISMATCH", r.errorCode())

	r = s.call(http.MethodPost, "/auth/sign-in/mfa/email", map[string]string{
		"tempToken": pending.TempToken,
		"code":      fixedCode,
	}, "")
	s.Require().Equal(http.StatusOK, r.status, string(r.body))
}

// Sessions are listed per device and revoking one kills its tokens.
func (s *EndToEndSuite) TestSessions() {
	s.register("frank", "frank@shop.local")
	_, laptop := s.signIn("frank", userPassword)
	_, phone := s.signIn("frank", userPassword)

	r := s.call(http.MethodGet, "/me/sessions", nil, laptop.AccessToken)
	s.Require().Equal(http.StatusOK, r.status)
	var views []struct {
		ID        string `json:"id"`
		IsCurrent bool   `json:"isCurrent"`
	}
	s.Require().NoError(r.data(&views))
	s.Require().Len(views, 2)

	r = s.call(http.MethodDelete, "/me/sessions", nil, laptop.AccessToken)
	s.Equal(http.StatusNoContent, r.status)

	s.Equal(http.StatusUnauthorized, s.call(http.MethodPost, "/auth/refresh",
		map[string]string{"refreshToken": phone.RefreshToken}, "").status)
	s.Equal(http.StatusOK, s.call(http.MethodGet, "/auth/me", nil, laptop.AccessToken).status)
}
