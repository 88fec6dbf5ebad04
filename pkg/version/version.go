package version

// Version is the current version of the call triage server
const Version = "0.0.12"

// UserAgent returns the User-Agent string for HTTP requests
func UserAgent() string {
	return "calltriage/" + Version
}

// ServerHeader returns the Server header value for HTTP responses
func ServerHeader() string {
	return "calltriage/" + Version
}
