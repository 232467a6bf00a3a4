package runlog

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectStore is the object-storage surface the sink writes through.
// Satisfied by the minio-backed client below and by fakes in tests.
type ObjectStore interface {
	EnsureBucket(ctx context.Context, bucket string) error
	PutObject(ctx context.Context, bucket, key string, data []byte) error
}

// ObjectSinkConfig configures the object-store run-log sink.
type ObjectSinkConfig struct {
	EndpointURL     string
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	UseSSL          bool

	Bucket string

	// FlushEvery bounds how many entries buffer before an automatic
	// flush. Zero means flush only on explicit Flush calls.
	FlushEvery int
}

// ObjectSink buffers anomaly entries per run and flushes them as
// gzip-compressed NDJSON objects under runlogs/<runID>/.
type ObjectSink struct {
	store  ObjectStore
	bucket string
	every  int

	mu      sync.Mutex
	buffers map[string][]Entry // runID -> pending entries
	seq     map[string]int     // runID -> next object sequence
}

// NewObjectSink creates a run-log sink over an existing object store.
func NewObjectSink(store ObjectStore, bucket string, flushEvery int) (*ObjectSink, error) {
	if bucket == "" {
		return nil, fmt.Errorf("runlog: bucket is required")
	}
	if err := store.EnsureBucket(context.Background(), bucket); err != nil {
		return nil, fmt.Errorf("runlog: ensure bucket %s: %w", bucket, err)
	}
	return &ObjectSink{
		store:   store,
		bucket:  bucket,
		every:   flushEvery,
		buffers: make(map[string][]Entry),
		seq:     make(map[string]int),
	}, nil
}

// NewObjectSinkFromConfig dials MinIO/S3 and creates the sink.
func NewObjectSinkFromConfig(cfg *ObjectSinkConfig) (*ObjectSink, error) {
	store, err := newS3Store(cfg)
	if err != nil {
		return nil, err
	}
	return NewObjectSink(store, cfg.Bucket, cfg.FlushEvery)
}

// Record buffers an entry. Errors during automatic flushing are dropped;
// the engine treats the sink as fire-and-forget and Flush surfaces them.
func (s *ObjectSink) Record(ctx context.Context, entry Entry) {
	s.mu.Lock()
	s.buffers[entry.RunID] = append(s.buffers[entry.RunID], entry)
	full := s.every > 0 && len(s.buffers[entry.RunID]) >= s.every
	s.mu.Unlock()

	if full {
		_ = s.Flush(ctx, entry.RunID)
	}
}

// Flush writes all buffered entries for a run as one NDJSON object.
func (s *ObjectSink) Flush(ctx context.Context, runID string) error {
	s.mu.Lock()
	entries := s.buffers[runID]
	if len(entries) == 0 {
		s.mu.Unlock()
		return nil
	}
	delete(s.buffers, runID)
	seq := s.seq[runID]
	s.seq[runID] = seq + 1
	s.mu.Unlock()

	buf := &bytes.Buffer{}
	gz := gzip.NewWriter(buf)
	enc := json.NewEncoder(gz)
	for _, entry := range entries {
		if err := enc.Encode(entry); err != nil {
			_ = gz.Close()
			return fmt.Errorf("runlog: encode entry: %w", err)
		}
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("runlog: compress entries: %w", err)
	}

	key := fmt.Sprintf("runlogs/%s/%06d.jsonl.gz", runID, seq)
	if err := s.store.PutObject(ctx, s.bucket, key, buf.Bytes()); err != nil {
		return fmt.Errorf("runlog: write %s: %w", key, err)
	}
	return nil
}

// --- MinIO-backed object store ---

type s3Store struct {
	client *minio.Client
	region string
}

func newS3Store(cfg *ObjectSinkConfig) (*s3Store, error) {
	if cfg == nil || cfg.EndpointURL == "" {
		return nil, fmt.Errorf("runlog: endpoint URL is required")
	}
	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, fmt.Errorf("runlog: credentials are required")
	}

	u, err := url.Parse(cfg.EndpointURL)
	if err != nil {
		return nil, fmt.Errorf("runlog: invalid endpoint URL: %w", err)
	}
	endpoint := u.Host
	if endpoint == "" {
		endpoint = cfg.EndpointURL
	}
	useSSL := cfg.UseSSL || u.Scheme == "https"

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("runlog: create client: %w", err)
	}
	return &s3Store{client: client, region: cfg.Region}, nil
}

func (s *s3Store) EnsureBucket(ctx context.Context, bucket string) error {
	exists, err := s.client.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: s.region})
}

func (s *s3Store) PutObject(ctx context.Context, bucket, key string, data []byte) error {
	reader := bytes.NewReader(data)
	_, err := s.client.PutObject(ctx, bucket, key, reader, int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/x-ndjson",
	})
	return err
}
