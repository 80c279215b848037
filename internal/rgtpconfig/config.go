// Package rgtpconfig loads and hot-reloads rgtpd's JSON configuration
// file, the same encoding/json-plus-defaults shape as the teacher's
// internal/config.LoadServerConfig: read config.json if present, start
// from hard-coded defaults, unmarshal over them, and log what happened.
package rgtpconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/stlalpha/rgtpd/internal/rgtplog"
)

// Config is rgtpd's full runtime configuration.
type Config struct {
	// SpoolRoot is the directory holding sequence, idarbiter, index,
	// item/, editlock, editlog, motd, secretseed, userdatabase, log/.
	SpoolRoot string `json:"spoolRoot"`

	// ListenAddr is the address the accept loop binds, e.g. ":1199".
	ListenAddr string `json:"listenAddr"`

	// UserDBSlots is the user database's fixed hash-table slot count.
	UserDBSlots int `json:"userDbSlots"`

	// SecretSeedLowWater and SecretSeedWarn are thresholds (in bytes
	// remaining) for the secret seed pool: below LowWater, new-secret
	// minting is refused; below Warn, it's merely logged.
	SecretSeedLowWater int `json:"secretSeedLowWater"`
	SecretSeedWarn     int `json:"secretSeedWarn"`

	// MailerPath is the executable spawned to deliver a freshly minted
	// shared secret to a newly registered user; the secret is written to
	// its stdin and (userid, access, clientid) passed as arguments.
	MailerPath string `json:"mailerPath"`

	// DiffPath is the external unified-diff utility invoked to record an
	// edit in the edit log.
	DiffPath string `json:"diffPath"`

	// IdentEnabled controls whether the (RFC 1413) ident lookup is
	// attempted for audit logging on new connections.
	IdentEnabled bool `json:"identEnabled"`

	// MaxConnections caps concurrently active sessions; 0 means
	// unlimited.
	MaxConnections int `json:"maxConnections"`

	// AdminOverridePasswordHash, when non-empty, is a bcrypt hash (see
	// internal/registration.HashAdminPassword) a UDBM caller must supply
	// the plaintext of as a third argument. Empty disables the check,
	// leaving UDBM gated by access level alone.
	AdminOverridePasswordHash string `json:"adminOverridePasswordHash"`
}

// Default returns the built-in configuration used when config.json is
// absent, mirroring the teacher's defaultConfig-before-unmarshal
// pattern.
func Default() Config {
	return Config{
		SpoolRoot:          "./spool",
		ListenAddr:         ":1199",
		UserDBSlots:        4093,
		SecretSeedLowWater: 64,
		SecretSeedWarn:     512,
		MailerPath:         "",
		DiffPath:           "diff",
		IdentEnabled:       false,
		MaxConnections:     0,
	}
}

// Load reads config.json from dir, overlaying it onto Default(). A
// missing file is not an error: the defaults are used and a warning is
// logged, matching the teacher's LoadServerConfig behavior.
func Load(dir string) (Config, error) {
	cfg := Default()
	path := filepath.Join(dir, "config.json")

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			rgtplog.Warnf("config.json not found at %s, using default settings", path)
			return cfg, nil
		}
		return cfg, fmt.Errorf("rgtpconfig: reading %s: %w", path, err)
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("rgtpconfig: parsing %s: %w", path, err)
	}
	rgtplog.Infof("loaded configuration from %s", path)
	return cfg, nil
}
