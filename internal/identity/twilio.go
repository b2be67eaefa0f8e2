package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	verify "github.com/twilio/twilio-go/rest/verify/v2"
)

// Twilio Verify error codes this provider distinguishes.
const (
	twilioCodeInvalidParameter = 60200
	twilioCodeMaxCheckAttempts = 60202
	twilioCodeMaxSendAttempts  = 60203
	twilioCodeResourceNotFound = 20404
	twilioVerificationApproved = "approved"
	twilioVerifyChannelEmail   = "email"
)

// verifyAPI is the subset of the Twilio Verify v2 service used by TwilioProvider.
type verifyAPI interface {
	CreateVerification(serviceSid string, params *verify.CreateVerificationParams) (*verify.VerifyV2Verification, error)
	CreateVerificationCheck(serviceSid string, params *verify.CreateVerificationCheckParams) (*verify.VerifyV2VerificationCheck, error)
}

// TwilioOpts holds configuration options for the Twilio Verify provider.
type TwilioOpts struct {
	AccountSID string
	AuthToken  string
	ServiceSID string
	Directory  Directory
	Issuer     *SessionIssuer
	api        verifyAPI
}

// TwilioOption defines a configuration option for the Twilio Verify provider.
type TwilioOption func(*TwilioOpts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) TwilioOption {
	return func(o *TwilioOpts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token.
func WithAuthToken(token string) TwilioOption {
	return func(o *TwilioOpts) { o.AuthToken = token }
}

// WithVerifyServiceSID sets the Verify service used for email codes.
func WithVerifyServiceSID(sid string) TwilioOption {
	return func(o *TwilioOpts) { o.ServiceSID = sid }
}

// WithDirectory sets the account directory consulted for CreateUserIfAbsent.
func WithDirectory(d Directory) TwilioOption {
	return func(o *TwilioOpts) { o.Directory = d }
}

// WithSessionIssuer sets the issuer for verified sessions.
func WithSessionIssuer(s *SessionIssuer) TwilioOption {
	return func(o *TwilioOpts) { o.Issuer = s }
}

// withVerifyAPI injects a Verify API implementation.
func withVerifyAPI(api verifyAPI) TwilioOption {
	return func(o *TwilioOpts) { o.api = api }
}

// TwilioProvider sends and checks email codes through Twilio Verify.
type TwilioProvider struct {
	api        verifyAPI
	serviceSID string
	accounts   accounts
}

// NewTwilioProvider creates a provider, falling back to TWILIO_* environment variables for
// credentials not given as options.
func NewTwilioProvider(opts ...TwilioOption) (*TwilioProvider, error) {
	var cfg TwilioOpts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.ServiceSID == "" {
		cfg.ServiceSID = os.Getenv("TWILIO_VERIFY_SERVICE_SID")
	}
	slog.Debug("TwilioProvider config loaded",
		"AccountSID_set", cfg.AccountSID != "",
		"AuthToken_set", cfg.AuthToken != "",
		"ServiceSID_set", cfg.ServiceSID != "")

	if cfg.ServiceSID == "" {
		return nil, fmt.Errorf("verify service SID must be provided")
	}
	if cfg.api == nil {
		if cfg.AccountSID == "" || cfg.AuthToken == "" {
			return nil, fmt.Errorf("account SID and auth token must be provided")
		}
		client := twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: cfg.AccountSID,
			Password: cfg.AuthToken,
		})
		cfg.api = client.VerifyV2
	}

	return &TwilioProvider{
		api:        cfg.api,
		serviceSID: cfg.ServiceSID,
		accounts:   accounts{directory: cfg.Directory, issuer: cfg.Issuer},
	}, nil
}

// SendOneTimeCode implements Provider.
func (p *TwilioProvider) SendOneTimeCode(ctx context.Context, email string, opts SendOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.accounts.checkSend(ctx, email, opts); err != nil {
		return err
	}

	params := &verify.CreateVerificationParams{}
	params.SetTo(email)
	params.SetChannel(twilioVerifyChannelEmail)
	if _, err := p.api.CreateVerification(p.serviceSID, params); err != nil {
		slog.Error("TwilioProvider.SendOneTimeCode: CreateVerification failed", "email", email, "error", err)
		return translateTwilioError(err, KindInvalidEmail)
	}
	slog.Debug("TwilioProvider.SendOneTimeCode: verification created", "email", email)
	return nil
}

// VerifyOneTimeCode implements Provider.
func (p *TwilioProvider) VerifyOneTimeCode(ctx context.Context, email, code string) (*VerifyResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	params := &verify.CreateVerificationCheckParams{}
	params.SetTo(email)
	params.SetCode(code)
	check, err := p.api.CreateVerificationCheck(p.serviceSID, params)
	if err != nil {
		slog.Error("TwilioProvider.VerifyOneTimeCode: CreateVerificationCheck failed", "email", email, "error", err)
		return nil, translateTwilioError(err, KindInvalidCode)
	}
	if check == nil || check.Status == nil || *check.Status != twilioVerificationApproved {
		slog.Debug("TwilioProvider.VerifyOneTimeCode: code not approved", "email", email)
		return nil, NewProviderError(KindInvalidCode, http.StatusUnauthorized, "Token has expired or is invalid")
	}
	return p.accounts.establish(ctx, email)
}

// translateTwilioError maps a Twilio REST error to a ProviderError. invalid is the kind used
// for parameter errors, which depends on whether an email or a code was rejected.
func translateTwilioError(err error, invalid ErrorKind) error {
	var te *twilioclient.TwilioRestError
	if !errors.As(err, &te) {
		return &ProviderError{Kind: KindUnavailable, StatusCode: http.StatusBadGateway, Message: "Identity provider unreachable", Err: err}
	}
	pe := &ProviderError{Message: te.Message, StatusCode: te.Status, Err: err}
	switch {
	case te.Code == twilioCodeInvalidParameter:
		pe.Kind = invalid
	case te.Code == twilioCodeMaxSendAttempts || te.Status == http.StatusTooManyRequests:
		pe.Kind = KindRateLimited
	case te.Code == twilioCodeMaxCheckAttempts || te.Code == twilioCodeResourceNotFound:
		pe.Kind = KindCodeExpired
		pe.Message = "Token has expired or is invalid"
	case te.Status >= http.StatusInternalServerError:
		pe.Kind = KindUnavailable
	default:
		pe.Kind = invalid
	}
	return pe
}
