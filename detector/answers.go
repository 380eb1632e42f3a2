package detector

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"html"

	"github.com/microcosm-cc/bluemonday"

	"github.com/hazyhaar/formwatch/track"
)

//go:embed answers.js
var answersJS string

var answerPolicy = bluemonday.StrictPolicy()

// collectAnswers snapshots the currently-filled answers from the DOM,
// grouped by question. Radio/checkbox selections are captured via their
// accessible label, text/number/select inputs via their trimmed value.
func (s *Session) collectAnswers() []track.Answer {
	res, err := s.page.Context(s.ctx).Eval(answersJS)
	if err != nil {
		s.logger.Warn("detector: collect answers failed", "error", err)
		return nil
	}

	var answers []track.Answer
	if err := json.Unmarshal([]byte(res.Value.Str()), &answers); err != nil {
		s.logger.Warn("detector: parse answers failed", "error", err)
		return nil
	}

	for i := range answers {
		answers[i].Question = sanitizeText(answers[i].Question)
		for j := range answers[i].Answers {
			answers[i].Answers[j] = sanitizeText(answers[i].Answers[j])
		}
	}
	return answers
}

// sanitizeText strips any markup that leaked into captured page text.
// The strict policy escapes entities, so unescape afterwards to keep the
// stored value plain.
func sanitizeText(s string) string {
	return html.UnescapeString(answerPolicy.Sanitize(s))
}

// pageURL reads the page's current location. Empty on failure: a page in
// teardown satisfies no heuristic.
func (s *Session) pageURL() string {
	res, err := s.page.Context(s.ctx).Eval(`() => location.href`)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

// pageTitle reads the form heading, falling back to the document title.
func (s *Session) pageTitle() string {
	res, err := s.page.Context(s.ctx).Eval(`() => {
		const heading = document.querySelector('div[role="heading"]') ||
			document.querySelector("h1");
		if (heading && heading.textContent) {
			return heading.textContent.trim();
		}
		return document.title ? document.title.trim() : "";
	}`)
	if err != nil {
		return ""
	}
	if t := res.Value.Str(); t != "" {
		return sanitizeText(t)
	}
	return "Form"
}

// bodyText reads the rendered page text for the confirmation heuristic.
func (s *Session) bodyText() string {
	res, err := s.page.Context(s.ctx).Eval(`() => document.body ? document.body.innerText : ""`)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

// pushSubmitWords exposes the configured submit vocabulary to the
// injected click filter before detect.js is evaluated.
func (s *Session) pushSubmitWords() error {
	wordsJSON, err := json.Marshal(s.submitWords)
	if err != nil {
		return fmt.Errorf("detector: marshal submit words: %w", err)
	}
	_, err = s.page.Context(s.ctx).Eval(
		fmt.Sprintf("() => { window.__formwatch_submit_words = %s; }", wordsJSON))
	if err != nil {
		return fmt.Errorf("detector: set submit words: %w", err)
	}
	return nil
}
