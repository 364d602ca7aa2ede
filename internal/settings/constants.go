package settings

// DB-backed setting keys and their defaults.
const (
	// RecommendMinRatingKey is the lowest review rating that copies eatery tags into a diner's recommendations.
	RecommendMinRatingKey = "RECOMMEND_MIN_RATING"
	// DefaultRecommendMinRating is the fallback recommendation threshold.
	DefaultRecommendMinRating = 3.5
	// VoucherCodeLengthKey sets how many random characters prefix a voucher code.
	VoucherCodeLengthKey = "VOUCHER_CODE_LENGTH"
	// DefaultVoucherCodeLength is the fallback random prefix length.
	DefaultVoucherCodeLength = 6
	// ResetCodeTTLMinutesKey sets how long an emailed password reset code stays valid.
	ResetCodeTTLMinutesKey = "RESET_CODE_TTL_MINUTES"
	// DefaultResetCodeTTLMinutes is the fallback reset code lifetime.
	DefaultResetCodeTTLMinutes = 60
	// CredentialCleanupMinutesKey sets how often expired sessions and reset codes are deleted. Zero disables cleanup.
	CredentialCleanupMinutesKey = "CREDENTIAL_CLEANUP_MINUTES"
	// DefaultCredentialCleanupMinutes is the fallback cleanup interval.
	DefaultCredentialCleanupMinutes = 60
)
