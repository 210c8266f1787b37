package storage

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"

	"go-kart-insurance/internal/config"
)

type azureStorage struct {
	client    *azblob.Client
	container string
}

func NewAzureStorage(cfg config.ArchiveConfig) (ObjectStore, error) {
	credential, err := azblob.NewSharedKeyCredential(cfg.AzureAccount, cfg.AzureKey)
	if err != nil {
		return nil, fmt.Errorf("azure credential: %w", err)
	}

	client, err := azblob.NewClientWithSharedKeyCredential(
		fmt.Sprintf("https://%s.blob.core.windows.net", cfg.AzureAccount),
		credential,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("azure client: %w", err)
	}

	return &azureStorage{client: client, container: cfg.AzureContainer}, nil
}

func (s *azureStorage) Name() string { return config.ArchiveAzure }

func (s *azureStorage) Put(ctx context.Context, obj Object) error {
	metadata := make(map[string]*string, len(obj.Metadata))
	for k, v := range obj.Metadata {
		metadata[k] = to.Ptr(v)
	}

	_, err := s.client.UploadBuffer(ctx, s.container, obj.Key, obj.Data, &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: to.Ptr(obj.ContentType)},
		Metadata:    metadata,
	})
	if err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}
	return nil
}
