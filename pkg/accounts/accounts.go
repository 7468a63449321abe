// Package accounts stores Google credentials per account under the data
// directory, plus a pointer naming which account is active. Tokens are kept
// out of the ledger snapshot on purpose: they are Google's tokens, not ours,
// and outlive local token churn.
package accounts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/oauth2"
)

// DefaultAccount is used when no account has been selected yet.
const DefaultAccount = "default"

// Manager reads and writes per-account Google token files.
type Manager struct {
	dir string
}

func New(dataDir string) (*Manager, error) {
	dir := filepath.Join(dataDir, "accounts")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create accounts directory: %w", err)
	}
	return &Manager{dir: dir}, nil
}

// ActiveAccount returns the currently selected account, or DefaultAccount
// when none has been set.
func (m *Manager) ActiveAccount() string {
	data, err := os.ReadFile(filepath.Join(m.dir, "active"))
	if err != nil {
		return DefaultAccount
	}
	account := strings.TrimSpace(string(data))
	if account == "" {
		return DefaultAccount
	}
	return account
}

// SetActiveAccount persists the active account pointer.
func (m *Manager) SetActiveAccount(account string) error {
	if account == "" {
		account = DefaultAccount
	}
	if err := os.WriteFile(filepath.Join(m.dir, "active"), []byte(account+"\n"), 0600); err != nil {
		return fmt.Errorf("failed to persist active account: %w", err)
	}
	return nil
}

// PersistTokens writes tok under the active account.
func (m *Manager) PersistTokens(tok *oauth2.Token) error {
	return m.persist(m.ActiveAccount(), tok)
}

func (m *Manager) persist(account string, tok *oauth2.Token) error {
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode tokens: %w", err)
	}
	if err := os.WriteFile(m.tokenFile(account), data, 0600); err != nil {
		return fmt.Errorf("failed to write tokens for account %s: %w", account, err)
	}
	return nil
}

// Tokens loads the stored Google token for account.
func (m *Manager) Tokens(account string) (*oauth2.Token, error) {
	if account == "" {
		account = DefaultAccount
	}
	data, err := os.ReadFile(m.tokenFile(account))
	if err != nil {
		return nil, fmt.Errorf("no stored credentials for account %s: %w", account, err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("failed to parse tokens for account %s: %w", account, err)
	}
	return &tok, nil
}

// Accounts lists every account with stored credentials.
func (m *Manager) Accounts() ([]string, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	var accounts []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		accounts = append(accounts, strings.TrimSuffix(name, ".json"))
	}
	return accounts, nil
}

func (m *Manager) tokenFile(account string) string {
	// Account names are email addresses; keep the file name flat.
	safe := strings.ReplaceAll(account, string(os.PathSeparator), "_")
	return filepath.Join(m.dir, safe+".json")
}
