package kms

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	vault "github.com/hashicorp/vault/api"
)

type vaultProvider struct {
	client     *vault.Client
	mountPath  string
	keyID      string
	secretPath string
}

func newVaultProvider(ctx context.Context, c Config) (*vaultProvider, error) {
	vc := vault.DefaultConfig()
	vc.Address = c.VaultAddr
	vc.Timeout = 5 * time.Second
	client, err := vault.NewClient(vc)
	if err != nil {
		return nil, err
	}
	switch {
	case c.VaultTokenFile != "":
		b, err := os.ReadFile(c.VaultTokenFile)
		if err != nil {
			return nil, fmt.Errorf("read VAULT_TOKEN_FILE: %w", err)
		}
		client.SetToken(strings.TrimSpace(string(b)))
	case c.VaultToken != "":
		client.SetToken(c.VaultToken)
	}
	healthCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if _, err := client.Sys().HealthWithContext(healthCtx); err != nil {
		return nil, fmt.Errorf("vault health check failed: %w", err)
	}
	return &vaultProvider{
		client:     client,
		mountPath:  c.VaultMountPath,
		keyID:      c.VaultKeyID,
		secretPath: c.VaultSecretPath,
	}, nil
}

func (v *vaultProvider) EncryptWithContext(ctx context.Context, plaintext, aad []byte) ([]byte, error) {
	data := map[string]interface{}{
		"plaintext": base64.StdEncoding.EncodeToString(plaintext),
	}
	if len(aad) > 0 {
		data["context"] = base64.StdEncoding.EncodeToString(aad)
	}
	secret, err := v.client.Logical().WriteWithContext(ctx, v.mountPath+"/encrypt/"+v.keyID, data)
	if err != nil {
		return nil, err
	}
	if secret == nil {
		return nil, errors.New("vault: empty encrypt response")
	}
	ct, ok := secret.Data["ciphertext"].(string)
	if !ok {
		return nil, errors.New("vault: ciphertext not found")
	}
	return []byte(ct), nil
}

func (v *vaultProvider) DecryptWithContext(ctx context.Context, ciphertext, aad []byte) ([]byte, error) {
	data := map[string]interface{}{
		"ciphertext": string(ciphertext),
	}
	if len(aad) > 0 {
		data["context"] = base64.StdEncoding.EncodeToString(aad)
	}
	secret, err := v.client.Logical().WriteWithContext(ctx, v.mountPath+"/decrypt/"+v.keyID, data)
	if err != nil {
		return nil, err
	}
	if secret == nil {
		return nil, errors.New("vault: empty decrypt response")
	}
	pt, ok := secret.Data["plaintext"].(string)
	if !ok {
		return nil, errors.New("vault: plaintext not found")
	}
	return base64.StdEncoding.DecodeString(pt)
}

// GetSecret reads a KV v2 entry shaped {"value": "..."}.
func (v *vaultProvider) GetSecret(ctx context.Context, key string) (string, error) {
	secret, err := v.client.Logical().ReadWithContext(ctx, v.secretPath+"/"+key)
	if err != nil {
		return "", err
	}
	if secret == nil || secret.Data == nil {
		return "", fmt.Errorf("secret not found: %s", key)
	}
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return "", errors.New("vault: invalid secret format")
	}
	value, ok := data["value"].(string)
	if !ok {
		return "", errors.New("vault: value not found")
	}
	return value, nil
}
