// Package autoload 匯入所有內建的 LLM Provider，觸發其 init() 註冊
package autoload

import (
	_ "relaybot/pkg/llm/compat"
	_ "relaybot/pkg/llm/gemini"
	_ "relaybot/pkg/llm/ollama"
	_ "relaybot/pkg/llm/openailm"
)
