package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	ini "gopkg.in/ini.v1"

	"github.com/dnitsch/oidc-cred-provider/internal/credentialexchange"
	"github.com/dnitsch/oidc-cred-provider/internal/util"
)

const (
	EnvFileName       = "aws-credentials.env"
	JsonFileName      = "aws-credentials.json"
	SharedCredsName   = "credentials"
	DefaultCredsDir   = "/var/run/aws-creds"
	DefaultTokenFile  = "/var/run/oidc/token"
	DefaultCredsCycle = 2700 * time.Second
	DefaultTokenCycle = 3600 * time.Second
)

type credentialApi interface {
	Credentials(ctx context.Context) (*credentialexchange.AWSCredentials, error)
}

type tokenApi interface {
	Token(ctx context.Context) (string, error)
}

// CredentialFileDaemon periodically refreshes AWS credentials and
// publishes them in three formats into a target directory. A failed
// cycle is logged and skipped - previously published files stay in
// place and the cadence never changes.
type CredentialFileDaemon struct {
	provider credentialApi
	credsDir string
	region   string
	interval time.Duration
}

func NewCredentialFileDaemon(provider credentialApi, credsDir, region string, interval time.Duration) *CredentialFileDaemon {
	return &CredentialFileDaemon{
		provider: provider,
		credsDir: credsDir,
		region:   region,
		interval: interval,
	}
}

// Run loops until ctx is cancelled. The target directory is created up
// front so the first cycle can publish.
func (d *CredentialFileDaemon) Run(ctx context.Context) error {
	if err := os.MkdirAll(d.credsDir, 0755); err != nil {
		return err
	}

	util.Writeln("starting credential refresh daemon (interval: %s)", d.interval)
	util.Writeln("credentials directory: %s", d.credsDir)
	util.Writeln("set AWS_SHARED_CREDENTIALS_FILE=%s or source %s", filepath.Join(d.credsDir, SharedCredsName), filepath.Join(d.credsDir, EnvFileName))

	for {
		if err := d.refresh(ctx); err != nil {
			util.Writeln("failed to refresh credentials: %s", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d.interval):
		}
	}
}

func (d *CredentialFileDaemon) refresh(ctx context.Context) error {
	creds, err := d.provider.Credentials(ctx)
	if err != nil {
		return err
	}

	if err := d.writeEnvFile(*creds); err != nil {
		return err
	}
	if err := d.writeJsonFile(*creds); err != nil {
		return err
	}
	if err := d.writeSharedCredentials(*creds); err != nil {
		return err
	}

	util.Writeln("refreshed credentials (expires: %s)", creds.Expires.Format(time.RFC3339))
	return nil
}

func (d *CredentialFileDaemon) writeEnvFile(creds credentialexchange.AWSCredentials) error {
	content := fmt.Sprintf(`# AWS credentials - auto-refreshed by %s
# Generated: %s
# Expires: %s
export AWS_ACCESS_KEY_ID="%s"
export AWS_SECRET_ACCESS_KEY="%s"
export AWS_SESSION_TOKEN="%s"
export AWS_REGION="%s"
`, credentialexchange.SELF_NAME, time.Now().UTC().Format(time.RFC3339), creds.Expires.Format(time.RFC3339),
		creds.AWSAccessKey, creds.AWSSecretKey, creds.AWSSessionToken, d.region)

	return atomicWrite(filepath.Join(d.credsDir, EnvFileName), []byte(content))
}

func (d *CredentialFileDaemon) writeJsonFile(creds credentialexchange.AWSCredentials) error {
	payload := struct {
		AccessKeyId     string `json:"access_key_id"`
		SecretAccessKey string `json:"secret_access_key"`
		SessionToken    string `json:"session_token"`
		Expiration      string `json:"expiration"`
		Region          string `json:"region"`
	}{
		AccessKeyId:     creds.AWSAccessKey,
		SecretAccessKey: creds.AWSSecretKey,
		SessionToken:    creds.AWSSessionToken,
		Expiration:      creds.Expires.Format(time.RFC3339),
		Region:          d.region,
	}

	jsonBytes, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return err
	}
	return atomicWrite(filepath.Join(d.credsDir, JsonFileName), jsonBytes)
}

func (d *CredentialFileDaemon) writeSharedCredentials(creds credentialexchange.AWSCredentials) error {
	cfg := ini.Empty()
	section := cfg.Section("default")
	section.Key("aws_access_key_id").SetValue(creds.AWSAccessKey)
	section.Key("aws_secret_access_key").SetValue(creds.AWSSecretKey)
	section.Key("aws_session_token").SetValue(creds.AWSSessionToken)
	section.Key("region").SetValue(d.region)

	buf := new(bytes.Buffer)
	if _, err := cfg.WriteTo(buf); err != nil {
		return err
	}
	return atomicWrite(filepath.Join(d.credsDir, SharedCredsName), buf.Bytes())
}

// TokenFileDaemon periodically refreshes the raw OIDC token into a
// single file for AWS_WEB_IDENTITY_TOKEN_FILE consumers. Only valid for
// the auth0 backend - the command layer rejects cognito before the loop
// ever starts.
type TokenFileDaemon struct {
	provider  tokenApi
	tokenFile string
	interval  time.Duration
}

func NewTokenFileDaemon(provider tokenApi, tokenFile string, interval time.Duration) *TokenFileDaemon {
	return &TokenFileDaemon{
		provider:  provider,
		tokenFile: tokenFile,
		interval:  interval,
	}
}

func (d *TokenFileDaemon) Run(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(d.tokenFile), 0755); err != nil {
		return err
	}

	util.Writeln("starting token refresh daemon (interval: %s)", d.interval)
	util.Writeln("token file: %s", d.tokenFile)

	for {
		if err := d.refresh(ctx); err != nil {
			util.Writeln("failed to refresh token: %s", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d.interval):
		}
	}
}

func (d *TokenFileDaemon) refresh(ctx context.Context) error {
	token, err := d.provider.Token(ctx)
	if err != nil {
		return err
	}
	if err := atomicWrite(d.tokenFile, []byte(token)); err != nil {
		return err
	}
	util.Traceln("wrote token to %s", d.tokenFile)
	return nil
}

// atomicWrite publishes content via a temp file and rename so a reader
// only ever observes the previous or the new complete content. On any
// failure the temp file is discarded and the target is left untouched.
func atomicWrite(path string, content []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, content, 0600); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
