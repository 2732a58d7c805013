// Package autoload 匯入所有內建的 Channel，觸發其 init() 註冊
package autoload

import (
	_ "relaybot/pkg/channels/telegram"
	_ "relaybot/pkg/channels/web"
)
