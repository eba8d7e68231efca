package aws

import (
	"context"
	"errors"
	"time"

	"github.com/99designs/keyring"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	apperrors "clip-studio/pkg/errors"
)

const (
	KeyringServiceName = "clip-studio"
	AccessKeyItem      = "aws-access-key"
	SecretKeyItem      = "aws-secret-key"
	RegionItem         = "aws-region"

	DefaultRegion = "us-west-2"
)

// CredentialProvider manages the AWS credentials used to publish drafts
type CredentialProvider interface {
	GetCredentials(ctx context.Context) (aws.Credentials, error)
	StoreCredentials(accessKey, secretKey, region string) error
	ValidateCredentials(ctx context.Context) error
	ClearCredentials() error
	GetRegion() (string, error)
	SetRegion(region string) error
	// Config builds an SDK config from the stored credentials, falling back to the default chain
	Config(ctx context.Context) (aws.Config, error)
}

// SecureCredentialProvider keeps credentials in the OS keychain
type SecureCredentialProvider struct {
	keyring keyring.Keyring
	// identity checks the credentials; sts GetCallerIdentity unless replaced
	identity func(ctx context.Context, cfg aws.Config) error
}

// NewSecureCredentialProvider opens the platform keychain
func NewSecureCredentialProvider() (*SecureCredentialProvider, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: KeyringServiceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.KWalletBackend,
			keyring.WinCredBackend,
			keyring.FileBackend,
		},
	})
	if err != nil {
		return nil, apperrors.NewAppError(apperrors.ErrConfigurationError, "failed to open keyring", err)
	}
	return NewCredentialProviderWithKeyring(ring), nil
}

// NewCredentialProviderWithKeyring uses ring for storage
func NewCredentialProviderWithKeyring(ring keyring.Keyring) *SecureCredentialProvider {
	return &SecureCredentialProvider{keyring: ring, identity: callerIdentity}
}

func (p *SecureCredentialProvider) StoreCredentials(accessKey, secretKey, region string) error {
	if accessKey == "" || secretKey == "" {
		return apperrors.NewAppError(apperrors.ErrInvalidInput, "access key and secret key cannot be empty", nil)
	}

	if err := p.keyring.Set(keyring.Item{Key: AccessKeyItem, Data: []byte(accessKey)}); err != nil {
		return apperrors.NewAppError(apperrors.ErrConfigurationError, "failed to store access key", err)
	}
	if err := p.keyring.Set(keyring.Item{Key: SecretKeyItem, Data: []byte(secretKey)}); err != nil {
		return apperrors.NewAppError(apperrors.ErrConfigurationError, "failed to store secret key", err)
	}
	if region != "" {
		return p.SetRegion(region)
	}
	return nil
}

// GetCredentials reads the keychain; without stored keys it falls back to the AWS credential chain
func (p *SecureCredentialProvider) GetCredentials(ctx context.Context) (aws.Credentials, error) {
	accessKeyItem, err := p.keyring.Get(AccessKeyItem)
	if err != nil {
		return p.chainCredentials(ctx)
	}
	secretKeyItem, err := p.keyring.Get(SecretKeyItem)
	if err != nil {
		return aws.Credentials{}, apperrors.NewAppError(apperrors.ErrInvalidCredentials, "secret key missing from keychain", err)
	}
	return aws.Credentials{
		AccessKeyID:     string(accessKeyItem.Data),
		SecretAccessKey: string(secretKeyItem.Data),
		Source:          "clip-studio-keychain",
	}, nil
}

func (p *SecureCredentialProvider) chainCredentials(ctx context.Context) (aws.Credentials, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return aws.Credentials{}, apperrors.NewAppError(apperrors.ErrConfigurationError, "failed to load AWS config", err)
	}
	creds, err := cfg.Credentials.Retrieve(ctx)
	if err != nil {
		return aws.Credentials{}, apperrors.NewAppError(apperrors.ErrInvalidCredentials, "no AWS credentials configured", err)
	}
	return creds, nil
}

func (p *SecureCredentialProvider) Config(ctx context.Context) (aws.Config, error) {
	region, err := p.GetRegion()
	if err != nil {
		return aws.Config{}, err
	}

	if _, err := p.keyring.Get(AccessKeyItem); err != nil {
		cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
		if err != nil {
			return aws.Config{}, apperrors.NewAppError(apperrors.ErrConfigurationError, "failed to load AWS config", err)
		}
		return cfg, nil
	}

	creds, err := p.GetCredentials(ctx)
	if err != nil {
		return aws.Config{}, err
	}
	return aws.Config{
		Region:           region,
		Credentials:      credentials.StaticCredentialsProvider{Value: creds},
		RetryMode:        aws.RetryModeStandard,
		RetryMaxAttempts: 3,
	}, nil
}

// ValidateCredentials makes a test call with the stored credentials
func (p *SecureCredentialProvider) ValidateCredentials(ctx context.Context) error {
	cfg, err := p.Config(ctx)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := p.identity(ctx, cfg); err != nil {
		appErr := apperrors.ClassifyError(err)
		if appErr.Code == apperrors.ErrUnknownError {
			return apperrors.NewAppError(apperrors.ErrInvalidCredentials, "credential validation failed", err)
		}
		return appErr
	}
	return nil
}

func callerIdentity(ctx context.Context, cfg aws.Config) error {
	_, err := sts.NewFromConfig(cfg).GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	return err
}

// ClearCredentials removes stored keys and region. Missing items are ignored.
func (p *SecureCredentialProvider) ClearCredentials() error {
	for _, key := range []string{AccessKeyItem, SecretKeyItem, RegionItem} {
		if err := p.keyring.Remove(key); err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
			return apperrors.NewAppError(apperrors.ErrConfigurationError, "failed to clear credentials", err)
		}
	}
	return nil
}

// GetRegion returns the stored region or DefaultRegion
func (p *SecureCredentialProvider) GetRegion() (string, error) {
	item, err := p.keyring.Get(RegionItem)
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return DefaultRegion, nil
		}
		return "", apperrors.NewAppError(apperrors.ErrConfigurationError, "failed to read region", err)
	}
	return string(item.Data), nil
}

func (p *SecureCredentialProvider) SetRegion(region string) error {
	if region == "" {
		return apperrors.NewAppError(apperrors.ErrInvalidInput, "region cannot be empty", nil)
	}
	if err := p.keyring.Set(keyring.Item{Key: RegionItem, Data: []byte(region)}); err != nil {
		return apperrors.NewAppError(apperrors.ErrConfigurationError, "failed to store region", err)
	}
	return nil
}

// SetupGuidance explains how to give the app publish access
func SetupGuidance() string {
	return `Publishing setup:

1. Create an S3 bucket for published clips in your preferred region.
2. Create an IAM user with programmatic access and this policy:
     {
       "Version": "2012-10-17",
       "Statement": [{
         "Effect": "Allow",
         "Action": ["s3:PutObject", "s3:AbortMultipartUpload", "s3:ListBucket", "s3:DeleteObject"],
         "Resource": ["arn:aws:s3:::your-bucket", "arn:aws:s3:::your-bucket/*"]
       }]
     }
3. Enter the access key, secret key, region and bucket in Settings.
   Keys are kept in the OS keychain.
4. Use "Test connection" before publishing.`
}
