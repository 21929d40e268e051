package logger

import "regexp"

// RedactToken masks a credential for safe logging, keeping a short prefix
// so operators can tell which token was in use.
// "EAABsbCS1iHgBO..." → "EAABsbCS1i***"
func RedactToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 10 {
		return "***"
	}
	return token[:10] + "***"
}

var tokenParamRegex = regexp.MustCompile(`(access_token|input_token|token)=[^&\s"]+`)

// RedactURL masks token-bearing query parameters inside a URL or any
// free-form string that may embed one.
func RedactURL(s string) string {
	return tokenParamRegex.ReplaceAllString(s, "$1=***")
}
