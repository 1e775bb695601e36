package apierr

// Description is the user facing explanation of a failure kind.
type Description struct {
	Title       string
	Message     string
	Suggestions []string
}

var descriptions = map[Kind]Description{
	KindNetwork: {
		Title:   "Connection Error",
		Message: "Unable to connect to the server. Please check your internet connection.",
		Suggestions: []string{
			"Check your internet connection",
			"Try the command again",
			"If the problem persists, try again later",
		},
	},
	KindAuthInvalid: {
		Title:   "Authentication Error",
		Message: "Your session may have expired. Please log in again.",
		Suggestions: []string{
			"Try logging in again",
			"If the problem persists, contact support",
		},
	},
	KindValidation: {
		Title:   "Invalid Input",
		Message: "Please check your input and try again.",
		Suggestions: []string{
			"Review the fields listed above",
			"Make sure all required fields are filled",
			"Check for any special characters or formatting requirements",
		},
	},
	KindServer: {
		Title:   "Server Error",
		Message: "Something went wrong on our end. We're working to fix it.",
		Suggestions: []string{
			"Try again in a few minutes",
			"If the problem persists, contact support",
		},
	},
	KindProtocol: {
		Title:   "Unexpected Message",
		Message: "The server sent a message this client does not understand.",
		Suggestions: []string{
			"Check that the client is up to date",
		},
	},
	KindUnknown: {
		Title:   "Unexpected Error",
		Message: "An unexpected error occurred. Please try again.",
		Suggestions: []string{
			"Try the command again",
			"If the problem persists, contact support",
		},
	},
}

// Describe returns the user facing description for err. Server messages
// replace the generic text for server failures.
func Describe(err error) Description {
	kind := KindOf(err)
	if kind == KindAuthExpired {
		kind = KindAuthInvalid
	}
	d, ok := descriptions[kind]
	if !ok {
		d = descriptions[KindUnknown]
	}
	if e, ok := As(err); ok && kind == KindServer && e.Message != "" && e.Message != defaultMessage {
		d.Message = e.Message
	}
	return d
}
