package storage

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/sirupsen/logrus"
)

const archiveTimeout = 30 * time.Second

// AzureArchive keeps job-run summaries and digests in a blob container
type AzureArchive struct {
	client        *azblob.Client
	containerName string
}

// Ensure AzureArchive implements Archive
var _ Archive = (*AzureArchive)(nil)

// NewAzureArchive connects to the storage account with the default Azure credential chain
func NewAzureArchive(accountName, containerName string) (*AzureArchive, error) {
	if accountName == "" {
		return nil, fmt.Errorf("storage account name is required")
	}

	credential, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure credential: %w", err)
	}

	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", accountName)
	client, err := azblob.NewClient(serviceURL, credential, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure blob client: %w", err)
	}

	archive := &AzureArchive{
		client:        client,
		containerName: containerName,
	}
	if err := archive.ensureContainer(); err != nil {
		return nil, err
	}
	return archive, nil
}

func (a *AzureArchive) ensureContainer() error {
	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()

	_, err := a.client.CreateContainer(ctx, a.containerName, nil)
	if err != nil {
		if !strings.Contains(err.Error(), "ContainerAlreadyExists") {
			return fmt.Errorf("failed to create container %s: %w", a.containerName, err)
		}
		logrus.Debugf("Archive container %s already exists", a.containerName)
		return nil
	}

	logrus.Infof("Created archive container %s", a.containerName)
	return nil
}

// Store uploads a blob, replacing any previous version
func (a *AzureArchive) Store(filename string, data []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()

	_, err := a.client.UploadBuffer(ctx, a.containerName, filename, data, &azblob.UploadBufferOptions{
		BlockSize:   int64(1024 * 1024),
		Concurrency: 3,
	})
	if err != nil {
		return fmt.Errorf("failed to upload blob %s: %w", filename, err)
	}

	logrus.Debugf("Archived %s (%d bytes)", filename, len(data))
	return nil
}

// Retrieve downloads a blob
func (a *AzureArchive) Retrieve(filename string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()

	response, err := a.client.DownloadStream(ctx, a.containerName, filename, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to download blob %s: %w", filename, err)
	}
	defer response.Body.Close()

	data, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read blob %s: %w", filename, err)
	}
	return data, nil
}

// List returns blob names under a prefix, e.g. "runs/2024-05-01/"
func (a *AzureArchive) List(prefix string) ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()

	var names []string
	pager := a.client.NewListBlobsFlatPager(a.containerName, &azblob.ListBlobsFlatOptions{
		Prefix: &prefix,
	})
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list blobs: %w", err)
		}
		for _, blob := range page.Segment.BlobItems {
			if blob.Name != nil {
				names = append(names, *blob.Name)
			}
		}
	}
	return names, nil
}

// Delete removes a blob
func (a *AzureArchive) Delete(filename string) error {
	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()

	if _, err := a.client.DeleteBlob(ctx, a.containerName, filename, nil); err != nil {
		return fmt.Errorf("failed to delete blob %s: %w", filename, err)
	}
	return nil
}

// MemoryArchive is an in-process Archive used when no storage account is configured
type MemoryArchive struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

var _ Archive = (*MemoryArchive)(nil)

// NewMemoryArchive creates an empty in-process archive
func NewMemoryArchive() *MemoryArchive {
	return &MemoryArchive{blobs: make(map[string][]byte)}
}

func (m *MemoryArchive) Store(filename string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[filename] = append([]byte(nil), data...)
	return nil
}

func (m *MemoryArchive) Retrieve(filename string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.blobs[filename]
	if !ok {
		return nil, fmt.Errorf("blob %s not found", filename)
	}
	return append([]byte(nil), data...), nil
}

func (m *MemoryArchive) List(prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var names []string
	for name := range m.blobs {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (m *MemoryArchive) Delete(filename string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, filename)
	return nil
}
