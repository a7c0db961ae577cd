package marketsdk

const (
	PathLogin              = "/login"
	PathGoogleLogin        = "/google-login"
	PathGoogleRegister     = "/google-register"
	PathRegisterClient     = "/register/client"
	PathRegisterFreelancer = "/register/freelancer"
	PathLogout             = "/logout"
	PathMe                 = "/User/me"
	PathResendVerification = "/resend-verification"
)

// CredentialPaths are the endpoints that accept credentials or trigger mail.
var CredentialPaths = []string{
	PathLogin,
	PathGoogleLogin,
	PathGoogleRegister,
	PathRegisterClient,
	PathRegisterFreelancer,
	PathResendVerification,
}
