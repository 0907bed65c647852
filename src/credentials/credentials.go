// Package credentials hands out registry and git credentials for exactly one
// operation. Secrets live in a byte slice the caller wipes when done; they
// are never formatted into logs, argv, or errors.
package credentials

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"filippo.io/age"

	"github.com/sofmeright/artifreight/src/config"
)

// Credential is a username/secret pair scoped to one call.
type Credential struct {
	Username string
	Secret   []byte
}

// Wipe zeroes the secret. Safe on a nil receiver.
func (c *Credential) Wipe() {
	if c == nil {
		return
	}
	for i := range c.Secret {
		c.Secret[i] = 0
	}
	c.Secret = nil
}

// String never includes the secret.
func (c *Credential) String() string {
	if c == nil {
		return "<none>"
	}
	return c.Username + ":<redacted>"
}

// Provider yields a fresh Credential per Acquire. A nil Credential with a
// nil error means no authentication is configured.
type Provider interface {
	Name() string
	Acquire(ctx context.Context) (*Credential, error)
}

// FromConfig builds the provider selected by cfg.
func FromConfig(cfg config.CredentialsConfig) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "env":
		return &Env{Prefix: cfg.Prefix, Username: cfg.Username}, nil
	case "file":
		return &File{Username: cfg.Username, Path: cfg.PasswordFile}, nil
	case "age":
		return &AgeFile{Username: cfg.Username, Path: cfg.PasswordFile, IdentityFile: cfg.IdentityFile}, nil
	case "none", "":
		return None{}, nil
	default:
		return nil, fmt.Errorf("unknown credential provider %q", cfg.Provider)
	}
}

// Env reads {PREFIX}_USER and then {PREFIX}_PASS, {PREFIX}_TOKEN, or the
// file named by {PREFIX}_PASS_FILE, in that order.
type Env struct {
	Prefix   string
	Username string
}

func (e *Env) Name() string { return "env:" + e.Prefix }

func (e *Env) Acquire(_ context.Context) (*Credential, error) {
	user := os.Getenv(e.Prefix + "_USER")
	if user == "" {
		user = e.Username
	}
	if user == "" {
		return nil, fmt.Errorf("credentials: %s_USER is not set", e.Prefix)
	}

	for _, key := range []string{"_PASS", "_TOKEN"} {
		if v := os.Getenv(e.Prefix + key); v != "" {
			return &Credential{Username: user, Secret: []byte(v)}, nil
		}
	}
	if path := os.Getenv(e.Prefix + "_PASS_FILE"); path != "" {
		secret, err := readSecret(path)
		if err != nil {
			return nil, err
		}
		return &Credential{Username: user, Secret: secret}, nil
	}
	return nil, fmt.Errorf("credentials: none of %s_PASS, %s_TOKEN, %s_PASS_FILE is set", e.Prefix, e.Prefix, e.Prefix)
}

// File reads the secret from a plaintext file.
type File struct {
	Username string
	Path     string
}

func (f *File) Name() string { return "file:" + f.Path }

func (f *File) Acquire(_ context.Context) (*Credential, error) {
	secret, err := readSecret(f.Path)
	if err != nil {
		return nil, err
	}
	return &Credential{Username: f.Username, Secret: secret}, nil
}

// AgeFile decrypts the secret from an age-encrypted file with the
// identities in IdentityFile.
type AgeFile struct {
	Username     string
	Path         string
	IdentityFile string
}

func (a *AgeFile) Name() string { return "age:" + a.Path }

func (a *AgeFile) Acquire(_ context.Context) (*Credential, error) {
	idf, err := os.Open(a.IdentityFile)
	if err != nil {
		return nil, fmt.Errorf("credentials: opening identity file: %w", err)
	}
	defer idf.Close()

	ids, err := age.ParseIdentities(idf)
	if err != nil {
		return nil, fmt.Errorf("credentials: parsing identity file: %w", err)
	}

	enc, err := os.Open(a.Path)
	if err != nil {
		return nil, fmt.Errorf("credentials: opening encrypted secret: %w", err)
	}
	defer enc.Close()

	r, err := age.Decrypt(enc, ids...)
	if err != nil {
		return nil, fmt.Errorf("credentials: decrypting %s: %w", a.Path, err)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, fmt.Errorf("credentials: decrypting %s: %w", a.Path, err)
	}
	secret := bytes.TrimRight(buf.Bytes(), "\r\n")
	out := make([]byte, len(secret))
	copy(out, secret)
	wipe(buf.Bytes())
	return &Credential{Username: a.Username, Secret: out}, nil
}

// None performs no authentication.
type None struct{}

func (None) Name() string { return "none" }

func (None) Acquire(context.Context) (*Credential, error) { return nil, nil }

func readSecret(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("credentials: reading secret file: %w", err)
	}
	secret := bytes.TrimRight(data, "\r\n")
	if len(secret) == 0 {
		return nil, fmt.Errorf("credentials: secret file %s is empty", path)
	}
	return secret, nil
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
