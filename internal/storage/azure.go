package storage

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/sas"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/service"
)

const azureServiceURLFormat = "https://%s.blob.core.windows.net"

// userDelegator is the subset of the blob service client used to obtain user
// delegation keys.
type userDelegator interface {
	GetUserDelegationCredential(ctx context.Context, info service.KeyInfo, o *service.GetUserDelegationCredentialOptions) (*service.UserDelegationCredential, error)
}

var _ userDelegator = (*service.Client)(nil)

// AzureOptions configures an AzureBackend.
type AzureOptions struct {
	// AccountName is the storage account that owns the containers.
	AccountName string

	// Endpoint overrides the blob service URL derived from AccountName, e.g.
	// for Azurite or sovereign clouds.
	Endpoint string

	// Credential authenticates against Microsoft Entra ID. When nil the
	// default credential chain is used, which picks up managed identity.
	Credential azcore.TokenCredential

	// ClientOptions are passed through to the blob service client.
	ClientOptions *service.ClientOptions
}

// AzureBackend signs blob SAS URLs with user delegation keys, so no account
// key is ever required.
type AzureBackend struct {
	client   userDelegator
	endpoint string
}

// NewAzureBackend creates an AzureBackend for the configured account.
func NewAzureBackend(opts AzureOptions) (*AzureBackend, error) {
	if opts.AccountName == "" && opts.Endpoint == "" {
		return nil, fmt.Errorf("storage: azure account name is required")
	}

	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf(azureServiceURLFormat, opts.AccountName)
	}
	endpoint = strings.TrimSuffix(endpoint, "/")

	cred := opts.Credential
	if cred == nil {
		var err error
		cred, err = azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, fmt.Errorf("storage: failed to create azure credential: %w", err)
		}
	}

	client, err := service.NewClient(endpoint+"/", cred, opts.ClientOptions)
	if err != nil {
		return nil, fmt.Errorf("storage: failed to create blob service client: %w", err)
	}

	return &AzureBackend{client: client, endpoint: endpoint}, nil
}

// Delegate requests a user delegation key valid for exactly w.
func (b *AzureBackend) Delegate(ctx context.Context, w Window) (*Delegation, error) {
	info := service.KeyInfo{
		Start:  to.Ptr(w.Start.UTC().Format(sas.TimeFormat)),
		Expiry: to.Ptr(w.Expiry.UTC().Format(sas.TimeFormat)),
	}

	slog.Debug("Requesting user delegation key",
		"endpoint", b.endpoint,
		"start", *info.Start,
		"expiry", *info.Expiry)

	udc, err := b.client.GetUserDelegationCredential(ctx, info, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: failed to get user delegation key: %w", err)
	}

	return &Delegation{Window: w, credential: udc}, nil
}

// Sign produces a blob SAS URL for g using the delegation key in d.
func (b *AzureBackend) Sign(_ context.Context, d *Delegation, g Grant) (string, error) {
	if err := g.Validate(); err != nil {
		return "", err
	}
	udc, err := delegationCredential[*service.UserDelegationCredential](d)
	if err != nil {
		return "", err
	}

	blobURL, err := url.JoinPath(b.endpoint, g.Container, g.ObjectName)
	if err != nil {
		return "", fmt.Errorf("storage: invalid blob url for %q: %w", g.ObjectName, err)
	}

	protocol := sas.ProtocolHTTPS
	if strings.HasPrefix(b.endpoint, "http://") {
		protocol = sas.ProtocolHTTPSandHTTP
	}

	qp, err := azureSignatureValues(g, protocol).SignWithUserDelegation(udc)
	if err != nil {
		return "", fmt.Errorf("storage: failed to sign blob sas for %q: %w", g.ObjectName, err)
	}

	return blobURL + "?" + qp.Encode(), nil
}

// azureSignatureValues maps a grant onto blob SAS values. Permissions map one
// to one: create→c, write→w, append→a.
func azureSignatureValues(g Grant, protocol sas.Protocol) sas.BlobSignatureValues {
	perms := sas.BlobPermissions{
		Create: g.Permissions.Has(PermissionCreate),
		Write:  g.Permissions.Has(PermissionWrite),
		Add:    g.Permissions.Has(PermissionAppend),
	}

	return sas.BlobSignatureValues{
		Protocol:      protocol,
		StartTime:     g.Window.Start.UTC(),
		ExpiryTime:    g.Window.Expiry.UTC(),
		Permissions:   perms.String(),
		ContainerName: g.Container,
		BlobName:      g.ObjectName,
	}
}
