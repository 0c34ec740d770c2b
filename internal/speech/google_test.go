package speech

import (
	"testing"

	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"github.com/stretchr/testify/assert"
)

func TestVoiceLanguage(t *testing.T) {
	assert.Equal(t, "en-GB", voiceLanguage("en-GB-Standard-A"))
	assert.Equal(t, "fr-CA", voiceLanguage("fr-CA-Neural2-B"))
	assert.Equal(t, "de-DE", voiceLanguage("de-DE-Chirp3-HD-Charon"))
	assert.Equal(t, "en-US", voiceLanguage("weird"))
}

func TestGenderLabel(t *testing.T) {
	assert.Equal(t, "male", genderLabel(texttospeechpb.SsmlVoiceGender_MALE))
	assert.Equal(t, "female", genderLabel(texttospeechpb.SsmlVoiceGender_FEMALE))
	assert.Equal(t, "neutral", genderLabel(texttospeechpb.SsmlVoiceGender_NEUTRAL))
	assert.Equal(t, "", genderLabel(texttospeechpb.SsmlVoiceGender_SSML_VOICE_GENDER_UNSPECIFIED))
}
