package detector

import "strings"

// DefaultMarkers are the locale-specific confirmation phrases. Treated
// as data: new locales are added to configuration, not to detection
// logic.
var DefaultMarkers = []string{
	"Your response has been recorded",
	"Ваш ответ записан",
	"Ответ записан",
	"Спасибо за ответ",
}

// DefaultSubmitWords is the locale-aware submit vocabulary matched
// against the text of the nearest button-like ancestor of a click.
var DefaultSubmitWords = []string{
	"submit",
	"отправ",
	"подать",
}

// ConfirmedURL reports whether the URL itself indicates a recorded
// response.
func ConfirmedURL(raw string) bool {
	return strings.Contains(raw, "formResponse")
}

// textConfirms reports whether the page text contains any confirmation
// marker.
func textConfirms(body string, markers []string) bool {
	if body == "" {
		return false
	}
	for _, m := range markers {
		if strings.Contains(body, m) {
			return true
		}
	}
	return false
}

// looksLikeSubmit reports whether button text matches the submit
// vocabulary. Case-insensitive substring match, mirroring the injected
// click filter so Go-side re-checks agree with the page-side ones.
func looksLikeSubmit(text string, words []string) bool {
	lower := strings.ToLower(text)
	for _, w := range words {
		if w != "" && strings.Contains(lower, strings.ToLower(w)) {
			return true
		}
	}
	return false
}
