package policy

import (
	"strings"

	clierr "github.com/ggonzalez94/volume-bot/internal/errors"
)

func CheckCommandAllowed(allowlist []string, commandPath string) error {
	if len(allowlist) == 0 {
		return nil
	}
	normPath := normalize(commandPath)
	for _, allowed := range allowlist {
		if normalize(allowed) == normPath {
			return nil
		}
	}
	return clierr.New(clierr.CodeBlocked, "command blocked by --enable-commands policy")
}

// CheckUserAllowed gates chat users. An empty allowlist admits everyone.
func CheckUserAllowed(allowlist []int64, userID int64) error {
	if len(allowlist) == 0 {
		return nil
	}
	for _, allowed := range allowlist {
		if allowed == userID {
			return nil
		}
	}
	return clierr.New(clierr.CodeBlocked, "user is not on the allowed_users list")
}

func normalize(v string) string {
	parts := strings.Fields(strings.ToLower(strings.TrimSpace(v)))
	return strings.Join(parts, " ")
}
