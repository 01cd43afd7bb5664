package verifier

// FailureReason explains why a request was not authenticated
type FailureReason int

const (
	None FailureReason = iota
	MissingSignature
	InvalidSignature
	TimestampInvalid
	TimestampOutOfTolerance
	MissingSecret
	TestOnlyVerifier
)

// String returns the string representation of the reason
func (r FailureReason) String() string {
	switch r {
	case None:
		return ""
	case MissingSignature:
		return "missing_signature"
	case InvalidSignature:
		return "invalid_signature"
	case TimestampInvalid:
		return "timestamp_invalid"
	case TimestampOutOfTolerance:
		return "timestamp_out_of_tolerance"
	case MissingSecret:
		return "missing_secret"
	case TestOnlyVerifier:
		return "test_only_verifier"
	default:
		return "unknown"
	}
}
