package storage

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/sas"

	"github.com/kmoai/kmoai/config"
)

// Signer turns a (container, blob) citation into a time-limited link.
type Signer interface {
	SignedLink(container, blob string) (string, error)
}

// ErrNotConfigured is returned when no storage account is set.
var ErrNotConfigured = errors.New("blob storage account not configured")

// BlobSigner issues read-only HTTPS SAS links with the account key.
type BlobSigner struct {
	account string
	suffix  string
	ttl     time.Duration
	cred    *azblob.SharedKeyCredential
	now     func() time.Time
}

func NewBlobSigner(cfg config.StorageConfig) (*BlobSigner, error) {
	if cfg.AccountName == "" || cfg.AccountKey == "" {
		return nil, ErrNotConfigured
	}
	cred, err := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
	if err != nil {
		return nil, fmt.Errorf("blob credential: %w", err)
	}
	suffix := cfg.EndpointSuffix
	if suffix == "" {
		suffix = "core.windows.net"
	}
	ttl := time.Duration(cfg.LinkTTLMinutes) * time.Minute
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &BlobSigner{account: cfg.AccountName, suffix: suffix, ttl: ttl, cred: cred, now: time.Now}, nil
}

// SignedLink implements Signer.
func (s *BlobSigner) SignedLink(container, blob string) (string, error) {
	if container == "" || blob == "" {
		return "", fmt.Errorf("invalid blob reference %q/%q", container, blob)
	}
	now := s.now().UTC()
	perms := sas.BlobPermissions{Read: true}
	qp, err := sas.BlobSignatureValues{
		Protocol:      sas.ProtocolHTTPS,
		StartTime:     now.Add(-5 * time.Minute),
		ExpiryTime:    now.Add(s.ttl),
		Permissions:   perms.String(),
		ContainerName: container,
		BlobName:      blob,
	}.SignWithSharedKey(s.cred)
	if err != nil {
		return "", fmt.Errorf("sign %s/%s: %w", container, blob, err)
	}
	u := url.URL{
		Scheme:   "https",
		Host:     s.account + ".blob." + s.suffix,
		Path:     "/" + container + "/" + blob,
		RawQuery: qp.Encode(),
	}
	return u.String(), nil
}
