package marketsdk

import (
	"net/mail"
	"net/url"
	"strings"
)

const (
	requiredReason     = "required"
	invalidEmailReason = "must be a valid email address"
)

// Validate checks the login fields are present.
// Returns a map of field names to error messages, or nil if all fields are valid.
func (r LoginRequest) Validate() map[string]string {
	errs := make(map[string]string)

	if strings.TrimSpace(r.Email) == "" {
		errs["email"] = requiredReason
	}
	if r.Password == "" {
		errs["password"] = requiredReason
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

// Validate checks if the client registration fields are valid.
// Returns a map of field names to error messages, or nil if all fields are valid.
func (r RegisterClientRequest) Validate() map[string]string {
	errs := make(map[string]string)

	validateAccount(errs, r.Email, r.Password, r.FullName, r.Country)

	if len(errs) == 0 {
		return nil
	}
	return errs
}

// Validate checks if the freelancer registration fields are valid.
// Returns a map of field names to error messages, or nil if all fields are valid.
func (r RegisterFreelancerRequest) Validate() map[string]string {
	errs := make(map[string]string)

	validateAccount(errs, r.Email, r.Password, r.FullName, r.Country)
	validateSkills(errs, r.SkillIDs)
	validatePortfolio(errs, r.PortfolioURL)

	if len(errs) == 0 {
		return nil
	}
	return errs
}

// Validate checks if the identity provider registration fields are valid.
// Returns a map of field names to error messages, or nil if all fields are valid.
func (r GoogleRegisterRequest) Validate() map[string]string {
	errs := make(map[string]string)

	if strings.TrimSpace(r.IDToken) == "" {
		errs["idToken"] = requiredReason
	}
	if strings.TrimSpace(r.Country) == "" {
		errs["country"] = requiredReason
	}

	switch r.Role {
	case RoleClient:
	case RoleFreelancer:
		validateSkills(errs, r.SkillIDs)
		validatePortfolio(errs, r.PortfolioURL)
	case "":
		errs["role"] = requiredReason
	default:
		errs["role"] = "must be Client or Freelancer"
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

func validateAccount(errs map[string]string, email, password, fullName, country string) {
	email = strings.TrimSpace(email)
	switch {
	case email == "":
		errs["email"] = requiredReason
	default:
		if _, err := mail.ParseAddress(email); err != nil {
			errs["email"] = invalidEmailReason
		}
	}

	if password == "" {
		errs["password"] = requiredReason
	}

	fullName = strings.TrimSpace(fullName)
	switch {
	case fullName == "":
		errs["fullName"] = requiredReason
	case len(fullName) > 100:
		errs["fullName"] = "too long (max 100)"
	}

	if strings.TrimSpace(country) == "" {
		errs["country"] = requiredReason
	}
}

func validateSkills(errs map[string]string, skills []int) {
	if len(skills) == 0 {
		errs["skillIds"] = "select at least one skill"
		return
	}
	for _, id := range skills {
		if id <= 0 {
			errs["skillIds"] = "unknown skill"
			return
		}
	}
}

func validatePortfolio(errs map[string]string, portfolio string) {
	portfolio = strings.TrimSpace(portfolio)
	if portfolio == "" {
		return
	}
	u, err := url.Parse(portfolio)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs["portfolioUrl"] = "must be an http(s) URL"
	}
}
