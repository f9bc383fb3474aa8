package models

// MinChildAge and MaxChildAge bound the hero's age on a generation request.
const (
	MinChildAge = 1
	MaxChildAge = 15
)

// Themes is the fixed set of story themes the generator accepts.
var Themes = []string{
	"dragons",
	"space",
	"forest",
	"ocean",
	"princess",
	"dinosaurs",
	"superheroes",
	"animals",
	"pirates",
	"fairies",
}

// LanguageNames maps a supported language code to the human-readable name
// used when instructing the generation provider.
var LanguageNames = map[string]string{
	"fr": "French",
	"en": "English",
	"es": "Spanish",
	"pt": "Portuguese",
	"de": "German",
}

func ValidTheme(theme string) bool {
	for _, t := range Themes {
		if t == theme {
			return true
		}
	}
	return false
}

func ValidLanguage(language string) bool {
	_, ok := LanguageNames[language]
	return ok
}
