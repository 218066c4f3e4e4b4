// Package templates loads the response template sets used by the bot and
// renders them with literal placeholder substitution.
package templates

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/cesasin/clinic-reminders/pkg/logging"
)

// File names expected inside the responses directory.
const (
	conversationalFile = "conversational-responses.json"
	reminderFile       = "reminder-responses.json"
	dispatchFile       = "reminder-message.json"
	avoidListFile      = "phone-list.json"
)

// Response is one templated reply: a primary message, an optional follow-up
// message sent in the same burst, and optional numbered menu options.
type Response struct {
	Message           string            `json:"message"`
	AdditionalMessage string            `json:"additionalMessage,omitempty"`
	Options           map[string]string `json:"options,omitempty"`
}

// Set maps a reply key (welcome, unknown, confirmed, ...) to its template.
type Set map[string]Response

// Get returns the template for key. A missing key yields the zero Response so
// substitution on an absent template renders empty instead of failing.
func (s Set) Get(key string) Response {
	if s == nil {
		return Response{}
	}
	return s[key]
}

// Store holds the three template sets plus the do-not-contact list.
type Store struct {
	conversational Set
	reminder       Set
	dispatch       Set
	avoided        map[string]struct{}
	logger         *logging.Logger
}

// NewStore loads every set from dir. Load failures degrade to an empty set so
// the engine keeps running with silence/fallback replies rather than crashing.
func NewStore(dir string, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.Default()
	}
	s := &Store{logger: logger}
	s.conversational = s.loadSet(filepath.Join(dir, conversationalFile))
	s.reminder = s.loadSet(filepath.Join(dir, reminderFile))
	s.dispatch = s.loadSet(filepath.Join(dir, dispatchFile))
	s.avoided = s.loadAvoidList(filepath.Join(dir, avoidListFile))
	return s
}

// Conversational returns the conversational-flow template set.
func (s *Store) Conversational() Set { return s.conversational }

// Reminder returns the reminder-flow template set.
func (s *Store) Reminder() Set { return s.reminder }

// Dispatch returns the set used when the daily reminder batch goes out.
func (s *Store) Dispatch() Set { return s.dispatch }

// Avoided reports whether the bare number (no channel suffix) is on the
// do-not-contact list.
func (s *Store) Avoided(bareNumber string) bool {
	_, ok := s.avoided[strings.TrimSpace(bareNumber)]
	return ok
}

func (s *Store) loadSet(path string) Set {
	raw, err := os.ReadFile(path)
	if err != nil {
		s.logger.Error("failed to load template set", "path", path, "error", err)
		return Set{}
	}
	var set Set
	if err := json.Unmarshal(raw, &set); err != nil {
		s.logger.Error("failed to parse template set", "path", path, "error", err)
		return Set{}
	}
	return set
}

func (s *Store) loadAvoidList(path string) map[string]struct{} {
	avoided := make(map[string]struct{})
	raw, err := os.ReadFile(path)
	if err != nil {
		s.logger.Error("failed to load avoid list", "path", path, "error", err)
		return avoided
	}
	var list struct {
		Phones map[string]string `json:"phones"`
	}
	if err := json.Unmarshal(raw, &list); err != nil {
		s.logger.Error("failed to parse avoid list", "path", path, "error", err)
		return avoided
	}
	for _, phone := range list.Phones {
		phone = strings.TrimSpace(phone)
		if phone != "" {
			avoided[phone] = struct{}{}
		}
	}
	return avoided
}

// Render substitutes every {placeholder} in text with its value. Substitution
// is literal string replacement; unknown placeholders are left untouched.
func Render(text string, vars map[string]string) string {
	for key, value := range vars {
		text = strings.ReplaceAll(text, "{"+key+"}", value)
	}
	return text
}

// RenderOptions appends the numbered menu options to the additional message,
// one per line, in ascending key order.
func RenderOptions(additional string, options map[string]string) string {
	if len(options) == 0 {
		return additional
	}
	var b strings.Builder
	b.WriteString(additional)
	b.WriteString("\n")
	for _, key := range sortedKeys(options) {
		b.WriteString(key)
		b.WriteString(". ")
		b.WriteString(options[key])
		b.WriteString("\n")
	}
	return b.String()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j] < keys[j-1]; j-- {
			keys[j], keys[j-1] = keys[j-1], keys[j]
		}
	}
	return keys
}
