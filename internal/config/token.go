package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/term"
)

// LoadToken reads the bot credential from path. If the file is missing or
// empty and stdin is a terminal, the operator is prompted once (input
// hidden) and the token is saved for future runs.
func LoadToken(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		token := strings.TrimSpace(string(data))
		if token != "" {
			return token, nil
		}
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("config: read token %s: %w", path, err)
	}

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", fmt.Errorf("config: no bot token in %s and stdin is not a terminal", path)
	}

	fmt.Println("Bot token not found.")
	fmt.Print("Paste your bot token (input is hidden): ")
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("config: read token from terminal: %w", err)
	}
	token := strings.TrimSpace(string(raw))
	if token == "" {
		return "", fmt.Errorf("config: empty token entered")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("config: create token dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(token+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("config: save token %s: %w", path, err)
	}
	fmt.Printf("Token saved to %s\n", path)
	return token, nil
}
