package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"invoice-workflow-orchestrator/internal/domain"
)

// MinioStore owns the three buckets of the pipeline: working (scanned
// uploads), analyses (aggregated result artifacts) and archive (processed
// invoices).
type MinioStore struct {
	client   *minio.Client
	Working  string
	Analyses string
	Archive  string
}

func NewMinioStore(endpoint, accessKey, secretKey string, useSSL bool, working, analyses, archive string) (*MinioStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, err
	}

	store := &MinioStore{client: client, Working: working, Analyses: analyses, Archive: archive}
	ctx := context.Background()
	for _, bucket := range []string{working, analyses, archive} {
		if err := store.ensureBucket(ctx, bucket); err != nil {
			return nil, err
		}
	}
	return store, nil
}

func (m *MinioStore) ensureBucket(ctx context.Context, bucket string) error {
	exists, err := m.client.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}
	if !exists {
		if err := m.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("make bucket %s: %w", bucket, err)
		}
	}
	return nil
}

func (m *MinioStore) Client() *minio.Client {
	return m.client
}

func (m *MinioStore) PutDocument(ctx context.Context, key string, content []byte) (domain.Document, error) {
	_, err := m.client.PutObject(ctx, m.Working, key, bytes.NewReader(content), int64(len(content)), minio.PutObjectOptions{
		ContentType: "application/pdf",
	})
	if err != nil {
		return domain.Document{}, err
	}
	return domain.Document{Bucket: m.Working, Key: key}, nil
}

func (m *MinioStore) GetObject(ctx context.Context, bucket, key string) ([]byte, error) {
	obj, err := m.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()

	data := new(bytes.Buffer)
	if _, err := data.ReadFrom(obj); err != nil {
		return nil, fmt.Errorf("read object %s/%s: %w", bucket, key, err)
	}
	return data.Bytes(), nil
}

// SaveAnalysis persists the aggregated result as a JSON artifact. Saving the
// same document key twice overwrites the artifact in place.
func (m *MinioStore) SaveAnalysis(ctx context.Context, documentKey string, result domain.AnalysisResult) (domain.ArtifactRef, error) {
	payload, err := json.Marshal(result)
	if err != nil {
		return domain.ArtifactRef{}, err
	}
	key := AnalysisArtifactKey(documentKey)
	_, err = m.client.PutObject(ctx, m.Analyses, key, bytes.NewReader(payload), int64(len(payload)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return domain.ArtifactRef{}, fmt.Errorf("save analysis artifact: %w", err)
	}
	return domain.ArtifactRef{Bucket: m.Analyses, Key: key}, nil
}

func (m *MinioStore) LoadAnalysis(ctx context.Context, ref domain.ArtifactRef) (domain.AnalysisResult, error) {
	data, err := m.GetObject(ctx, ref.Bucket, ref.Key)
	if err != nil {
		return domain.AnalysisResult{}, err
	}
	var result domain.AnalysisResult
	if err := json.Unmarshal(data, &result); err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("decode analysis artifact %s/%s: %w", ref.Bucket, ref.Key, err)
	}
	return result, nil
}

// CopyToArchive copies the source document server-side into the archive
// bucket under the same key. Re-copying an already archived object is a
// harmless overwrite.
func (m *MinioStore) CopyToArchive(ctx context.Context, doc domain.Document) error {
	_, err := m.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: m.Archive, Object: doc.Key},
		minio.CopySrcOptions{Bucket: doc.Bucket, Object: doc.Key},
	)
	if err != nil {
		return fmt.Errorf("copy %s/%s to archive: %w", doc.Bucket, doc.Key, err)
	}
	return nil
}

func (m *MinioStore) RemoveObject(ctx context.Context, doc domain.Document) error {
	if err := m.client.RemoveObject(ctx, doc.Bucket, doc.Key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove %s/%s: %w", doc.Bucket, doc.Key, err)
	}
	return nil
}

func AnalysisArtifactKey(documentKey string) string {
	return fmt.Sprintf("scanned-invoices/%s.json", documentKey)
}
