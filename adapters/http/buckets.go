package authhttp

// Bucket names used by recovery endpoints.
const (
	RLRegisterRequest = "recovery_register_request"
	RLConfirm         = "recovery_confirm"
	RLForgot          = "recovery_forgot"
	RLVerifyOTP       = "recovery_verify_otp"
	RLResetPassword   = "recovery_reset_password"
	RLAdminSweep      = "recovery_admin_sweep"
)
