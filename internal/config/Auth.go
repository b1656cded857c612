package config

import (
	"errors"
	"strings"

	"github.com/rs/zerolog/log"
)

// minTokenLength rejects bearer tokens short enough to guess.
const minTokenLength = 16

// APITokens maps each bearer token accepted by the instruction API to the account it acts as.
// Empty means the API is served read-only.
var APITokens map[string]string

// loadAuthConfig loads API_TOKENS. This function is called by LoadConfig() in General.go.
func loadAuthConfig() error {
	var err error
	APITokens, err = parseAPITokens(getEnvOrDefault("API_TOKENS", ""))
	if err != nil {
		return err
	}
	log.Debug().Int("APITokens", len(APITokens)).Msg("Auth configuration loaded successfully.")
	return nil
}

// parseAPITokens parses "token=address,token=address". A token may appear once; an address may hold
// several tokens.
func parseAPITokens(raw string) (map[string]string, error) {
	tokens := make(map[string]string)
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		token, address, ok := strings.Cut(entry, "=")
		token, address = strings.TrimSpace(token), strings.TrimSpace(address)
		if !ok || token == "" || address == "" {
			return nil, errors.New("environment variable API_TOKENS must be token=address pairs")
		}
		if len(token) < minTokenLength {
			return nil, errors.New("environment variable API_TOKENS has a token shorter than 16 characters for " + address)
		}
		if _, dup := tokens[token]; dup {
			return nil, errors.New("environment variable API_TOKENS repeats a token for " + address)
		}
		tokens[token] = address
	}
	return tokens, nil
}
