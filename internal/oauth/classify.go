package oauth

// Classify maps an authorization server error code to an ErrorKind
func Classify(code string) ErrorKind {
	switch code {
	case "access_denied":
		return KindDenied
	case "invalid_client":
		return KindMisconfigured
	case "invalid_grant":
		return KindGrantInvalid
	default:
		return KindUnknownProvider
	}
}

// ProviderError builds a classified error for a code reported by a provider
func ProviderError(provider, code, description string) *Error {
	return &Error{
		Kind:        Classify(code),
		Code:        code,
		Description: description,
		Provider:    provider,
	}
}
