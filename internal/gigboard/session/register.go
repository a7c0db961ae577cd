package session

import (
	"context"
	"strings"

	"github.com/aussiebroadwan/gigboard/pkg/marketsdk"
)

// Registration holds the sign-up form. Password is ignored on the identity
// provider path.
type Registration struct {
	Email        string
	Password     string
	FullName     string
	Country      string
	PortfolioURL string
	SkillIDs     []int
}

// CompleteRegistration creates an account and signs it in.
//
// With a provider credential (passed in, or held from an earlier
// LoginWithIdentityProvider when no password was entered) the credential
// stands in for the password and /google-register is called. Otherwise the password path registers and then
// signs in with the submitted email and password, unless the backend already
// returned a session. Validation runs before any network call.
func (c *Controller) CompleteRegistration(ctx context.Context, reg Registration, role marketsdk.Role, providerCredential string) error {
	ctx, _ = c.operation(ctx, "complete_registration")

	credential := strings.TrimSpace(providerCredential)
	if credential == "" && reg.Password == "" {
		if p, ok := c.Pending(ctx); ok {
			credential = p.Credential
		}
	}

	if credential != "" {
		return c.registerWithProvider(ctx, reg, role, credential)
	}
	return c.registerWithPassword(ctx, reg, role)
}

func (c *Controller) registerWithProvider(ctx context.Context, reg Registration, role marketsdk.Role, credential string) error {
	req := marketsdk.GoogleRegisterRequest{
		IDToken:      credential,
		Country:      strings.TrimSpace(reg.Country),
		Role:         role,
		PortfolioURL: strings.TrimSpace(reg.PortfolioURL),
		SkillIDs:     reg.SkillIDs,
	}
	if errs := req.Validate(); errs != nil {
		return c.fail(validationError(errs))
	}

	c.begin()

	resp, err := c.client.GoogleRegister(ctx, req)
	if err == nil && !resp.HasTokens() {
		// Account created but no session handed back: retry the exchange.
		resp, err = c.client.GoogleLogin(ctx, credential)
	}
	if err != nil {
		ae := classify(err, false)
		c.abort(ae, "")
		c.metrics.RecordAuthAttempt(methodGoogleRegister, string(ae.Kind))
		return ae
	}

	return c.establish(ctx, methodGoogleRegister, resp)
}

func (c *Controller) registerWithPassword(ctx context.Context, reg Registration, role marketsdk.Role) error {
	email := strings.TrimSpace(reg.Email)

	var (
		errs     map[string]string
		register func() (*marketsdk.AuthResponse, error)
	)

	switch role {
	case marketsdk.RoleClient:
		req := marketsdk.RegisterClientRequest{
			Email:    email,
			Password: reg.Password,
			FullName: strings.TrimSpace(reg.FullName),
			Country:  strings.TrimSpace(reg.Country),
		}
		errs = req.Validate()
		register = func() (*marketsdk.AuthResponse, error) { return c.client.RegisterClient(ctx, req) }
	case marketsdk.RoleFreelancer:
		req := marketsdk.RegisterFreelancerRequest{
			Email:        email,
			Password:     reg.Password,
			FullName:     strings.TrimSpace(reg.FullName),
			Country:      strings.TrimSpace(reg.Country),
			PortfolioURL: strings.TrimSpace(reg.PortfolioURL),
			SkillIDs:     reg.SkillIDs,
		}
		errs = req.Validate()
		register = func() (*marketsdk.AuthResponse, error) { return c.client.RegisterFreelancer(ctx, req) }
	default:
		errs = map[string]string{"role": "must be Client or Freelancer"}
	}

	if errs != nil {
		return c.fail(validationError(errs))
	}

	c.begin()

	resp, err := register()
	if err != nil {
		ae := classify(err, false)
		c.abort(ae, "")
		c.metrics.RecordAuthAttempt(methodRegister, string(ae.Kind))
		return ae
	}

	if resp.HasTokens() {
		return c.establish(ctx, methodRegister, resp)
	}

	return c.passwordExchange(ctx, methodRegister, marketsdk.LoginRequest{Email: email, Password: reg.Password})
}

// AbandonRegistration drops a held identity provider credential.
func (c *Controller) AbandonRegistration(ctx context.Context) error {
	if err := c.pending.Delete(ctx); err != nil {
		return err
	}

	c.commit(func() bool { return true })
	return nil
}
