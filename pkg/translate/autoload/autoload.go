// Package autoload registers every built-in translation backend.
package autoload

import (
	_ "relaybot/pkg/translate/google"
	_ "relaybot/pkg/translate/llmtr"
)
