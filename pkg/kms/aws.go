package kms

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

type awsProvider struct {
	kmsClient *kms.Client
	smClient  *secretsmanager.Client
	keyID     string
}

func newAWSProvider(ctx context.Context, c Config) (*awsProvider, error) {
	ac, err := config.LoadDefaultConfig(ctx, config.WithRegion(c.AWSRegion))
	if err != nil {
		return nil, err
	}
	return &awsProvider{
		kmsClient: kms.NewFromConfig(ac),
		smClient:  secretsmanager.NewFromConfig(ac),
		keyID:     c.AWSKeyID,
	}, nil
}

func awsContext(aad []byte) map[string]string {
	if len(aad) == 0 {
		return nil
	}
	return map[string]string{"context": base64.StdEncoding.EncodeToString(aad)}
}

func (a *awsProvider) EncryptWithContext(ctx context.Context, plaintext, aad []byte) ([]byte, error) {
	out, err := a.kmsClient.Encrypt(ctx, &kms.EncryptInput{
		KeyId:             &a.keyID,
		Plaintext:         plaintext,
		EncryptionContext: awsContext(aad),
	})
	if err != nil {
		return nil, fmt.Errorf("aws kms encrypt failed: %w", err)
	}
	return out.CiphertextBlob, nil
}

func (a *awsProvider) DecryptWithContext(ctx context.Context, ciphertext, aad []byte) ([]byte, error) {
	out, err := a.kmsClient.Decrypt(ctx, &kms.DecryptInput{
		CiphertextBlob:    ciphertext,
		EncryptionContext: awsContext(aad),
	})
	if err != nil {
		return nil, fmt.Errorf("aws kms decrypt failed: %w", err)
	}
	return out.Plaintext, nil
}

func (a *awsProvider) GetSecret(ctx context.Context, key string) (string, error) {
	out, err := a.smClient.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: &key})
	if err != nil {
		return "", fmt.Errorf("get secret %s: %w", key, err)
	}
	if out.SecretString == nil {
		return "", errors.New("secret is binary, not string")
	}
	return *out.SecretString, nil
}
