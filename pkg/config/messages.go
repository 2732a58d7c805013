package config

// Messages holds every fixed, user-facing text the relay can send.
// Greeting is a format string receiving the user's display name.
type Messages struct {
	Greeting           string `json:"greeting,omitempty"`
	Welcome            string `json:"welcome,omitempty"` // menu screen reached from "Back to Menu"
	Help               string `json:"help,omitempty"`
	HelpButton         string `json:"help_button,omitempty"`
	BackButton         string `json:"back_button,omitempty"`
	CreatorReply       string `json:"creator_reply,omitempty"`
	TranslateInFailed  string `json:"translate_in_failed,omitempty"`
	GenerationFailed   string `json:"generation_failed,omitempty"`
	TranslateOutFailed string `json:"translate_out_failed,omitempty"`
	GenericError       string `json:"generic_error,omitempty"`
	OriginalNotFound   string `json:"original_not_found,omitempty"`
	InvalidAction      string `json:"invalid_action,omitempty"`
}

const helpText = `*Help*

*Features:*
• Write in your own language, the bot answers in it too.
• Remembers your previous messages in this chat for context.
• Press the button under a reply to switch it between languages.

*Response Time:*
• Responses may take 3 to 30 seconds depending on the question.`

var builtinMessages = map[string]Messages{
	"en": {
		Greeting:           "*Hello there!* %s 👋 I'm an AI assistant bot. Ask me anything.",
		Welcome:            "*Welcome!* I'm a chat bot. How can I help you today?",
		Help:               helpText,
		HelpButton:         "Help 📃",
		BackButton:         "Back to Menu 🏠",
		CreatorReply:       "I was made by the maintainers of this bot to assist users like you!",
		TranslateInFailed:  "Sorry, I couldn't translate your message. Please try again.",
		GenerationFailed:   "Sorry, I couldn't generate a response at the moment. Please try again later.",
		TranslateOutFailed: "Sorry, I couldn't translate the response. Please try again later.",
		GenericError:       "Sorry, an error occurred. Please try again later.",
		OriginalNotFound:   "Sorry, the original message could not be found.",
		InvalidAction:      "Sorry, this button is no longer valid.",
	},
	"am": {
		Greeting:           "እንኳን ደህና መጡ %s! እኔ የአማርኛ ቻት ቦት ነኝ። እንዴት ልረዳዎት እችላለሁ?",
		Welcome:            "*እንኳን ደህና መጡ!* እኔ የአማርኛ ቻት ቦት ነኝ። እንዴት ልረዳዎት እችላለሁ?",
		Help:               helpText,
		HelpButton:         "እርዳታ 📃",
		BackButton:         "ወደ ዋና ማውጫ 🏠",
		CreatorReply:       "የተሰራሁት እንደ እርስዎ ያሉ ተጠቃሚዎችን ለመርዳት በዚህ ቦት አዘጋጆች ነው!",
		TranslateInFailed:  "ይቅርታ፣ መልእክትዎን መተርጎም አልቻልንም። እባክዎ እንደገና ይሞክሩ።",
		GenerationFailed:   "ይቅርታ፣ አሁን መልስ መስጠት አልቻልንም። እባክዎ ቆይተው ይሞክሩ።",
		TranslateOutFailed: "ይቅርታ፣ መልሳችንን መተርጎም አልቻልንም። እባክዎ ቆይተው ይሞክሩ።",
		GenericError:       "ይቅርታ፣ ስህተት ተፈጥሯል። እባክዎ ቆይተው ይሞክሩ።",
		OriginalNotFound:   "ይቅርታ፣ የመጀመሪያው መልእክት አልተገኘም።",
		InvalidAction:      "ይቅርታ፣ ይህ አዝራር ከአሁን በኋላ አይሰራም።",
	},
}

// DefaultMessages returns the built-in texts for a language, English otherwise.
func DefaultMessages(lang string) Messages {
	if m, ok := builtinMessages[lang]; ok {
		return m
	}
	return builtinMessages["en"]
}

// Merge returns m with every non-empty field of override applied.
func (m Messages) Merge(override Messages) Messages {
	pick := func(base, o string) string {
		if o != "" {
			return o
		}
		return base
	}
	return Messages{
		Greeting:           pick(m.Greeting, override.Greeting),
		Welcome:            pick(m.Welcome, override.Welcome),
		Help:               pick(m.Help, override.Help),
		HelpButton:         pick(m.HelpButton, override.HelpButton),
		BackButton:         pick(m.BackButton, override.BackButton),
		CreatorReply:       pick(m.CreatorReply, override.CreatorReply),
		TranslateInFailed:  pick(m.TranslateInFailed, override.TranslateInFailed),
		GenerationFailed:   pick(m.GenerationFailed, override.GenerationFailed),
		TranslateOutFailed: pick(m.TranslateOutFailed, override.TranslateOutFailed),
		GenericError:       pick(m.GenericError, override.GenericError),
		OriginalNotFound:   pick(m.OriginalNotFound, override.OriginalNotFound),
		InvalidAction:      pick(m.InvalidAction, override.InvalidAction),
	}
}

// DefaultLanguageNames returns a fresh map of common language display names.
func DefaultLanguageNames() map[string]string {
	return map[string]string{
		"am": "Amharic",
		"ar": "Arabic",
		"de": "German",
		"en": "English",
		"es": "Spanish",
		"fr": "French",
		"om": "Oromo",
		"sw": "Swahili",
		"ti": "Tigrinya",
		"zh": "Chinese",
	}
}

// DefaultCreatorKeywords are the questions answered with Messages.CreatorReply
// instead of a generated reply.
func DefaultCreatorKeywords() []string {
	return []string{"who made you", "who created you", "who is your creator", "who build you", "who built you", "who's your dad", "ማን ሰራህ", "ማን ፈጠረህ"}
}
