package speech

import (
	"strings"

	"golang.org/x/text/language"

	"github.com/aloudapp/aloud-server/internal/domain"
)

// VoicePolicy narrows voice candidates when picking a default narrator.
// Prefix selects a regional family (e.g. "en-") and Exclude drops one generic
// variant from it (e.g. "en-US").
type VoicePolicy struct {
	Prefix  string
	Exclude string
}

// FilterVoices returns the candidate narrators for policy: the preferred
// regional subset when it is non-empty, then the same base language, then
// every voice.
func FilterVoices(voices []domain.Voice, policy VoicePolicy) []domain.Voice {
	if len(voices) == 0 {
		return nil
	}

	var preferred []domain.Voice
	for _, v := range voices {
		if strings.HasPrefix(v.Language, policy.Prefix) && !sameTag(v.Language, policy.Exclude) {
			preferred = append(preferred, v)
		}
	}
	if len(preferred) > 0 {
		return preferred
	}

	if base, ok := baseLanguage(policy.Prefix); ok {
		var sameBase []domain.Voice
		for _, v := range voices {
			if vb, ok := baseLanguage(v.Language); ok && vb == base {
				sameBase = append(sameBase, v)
			}
		}
		if len(sameBase) > 0 {
			return sameBase
		}
	}

	return voices
}

// ChooseVoice picks the narrator to use: the persisted one if it survives the
// filter, otherwise the first filtered candidate.
func ChooseVoice(voices []domain.Voice, persistedID string, policy VoicePolicy) (domain.Voice, bool) {
	candidates := FilterVoices(voices, policy)
	if len(candidates) == 0 {
		return domain.Voice{}, false
	}
	if persistedID != "" {
		for _, v := range candidates {
			if v.ID == persistedID {
				return v, true
			}
		}
	}
	return candidates[0], true
}

// baseLanguage extracts the base language ("en") from a BCP-47 tag or prefix.
func baseLanguage(tag string) (string, bool) {
	trimmed := strings.Trim(tag, "-")
	if trimmed == "" {
		return "", false
	}
	parsed, err := language.Parse(trimmed)
	if err != nil {
		return "", false
	}
	base, _ := parsed.Base()
	return base.String(), true
}

// sameTag compares language tags ignoring case and separator style.
func sameTag(a, b string) bool {
	norm := func(s string) string {
		return strings.ToLower(strings.ReplaceAll(s, "_", "-"))
	}
	return norm(a) == norm(b)
}
