package staging

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioConfig configures the object-store staging provider.
type MinioConfig struct {
	EndpointURL     string
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	UseSSL          bool

	Bucket string
}

// MinioProvider writes staged JSONL.GZ batches into MinIO/S3 under
// staging/<runID>/<entity>/.
type MinioProvider struct {
	client *minio.Client
	bucket string
	region string
}

// NewMinioProvider dials MinIO/S3 and ensures the staging bucket exists.
func NewMinioProvider(cfg *MinioConfig) (*MinioProvider, error) {
	if cfg == nil || cfg.EndpointURL == "" {
		return nil, fmt.Errorf("staging: endpoint URL is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("staging: bucket is required")
	}
	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, fmt.Errorf("staging: credentials are required")
	}

	u, err := url.Parse(cfg.EndpointURL)
	if err != nil {
		return nil, fmt.Errorf("staging: invalid endpoint URL: %w", err)
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
		return nil, fmt.Errorf("staging: create client: %w", err)
	}

	p := &MinioProvider{client: client, bucket: cfg.Bucket, region: cfg.Region}
	if err := p.ensureBucket(context.Background()); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *MinioProvider) ID() string { return ProviderMinIO }

func (p *MinioProvider) ensureBucket(ctx context.Context) error {
	exists, err := p.client.BucketExists(ctx, p.bucket)
	if err != nil {
		return fmt.Errorf("staging: check bucket %s: %w", p.bucket, err)
	}
	if exists {
		return nil
	}
	if err := p.client.MakeBucket(ctx, p.bucket, minio.MakeBucketOptions{Region: p.region}); err != nil {
		return fmt.Errorf("staging: create bucket %s: %w", p.bucket, err)
	}
	return nil
}

func (p *MinioProvider) runPrefix(runID string) string {
	return "staging/" + runID + "/"
}

func (p *MinioProvider) PutBatch(ctx context.Context, req *PutBatchRequest) (*PutBatchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.RunID == "" {
		return nil, fmt.Errorf("staging: run id is required")
	}

	batchSeq := req.BatchSeq
	if batchSeq <= 0 {
		existing, err := p.ListBatches(ctx, req.RunID, req.Entity)
		if err == nil {
			batchSeq = len(existing)
		}
	}
	batchRef := batchKey(req.Entity, batchSeq) + ".gz"

	buf := &bytes.Buffer{}
	if err := encodeEnvelopes(buf, req.Records); err != nil {
		return nil, fmt.Errorf("staging: encode batch: %w", err)
	}

	key := p.runPrefix(req.RunID) + batchRef
	reader := bytes.NewReader(buf.Bytes())
	if _, err := p.client.PutObject(ctx, p.bucket, key, reader, int64(buf.Len()), minio.PutObjectOptions{
		ContentType: "application/x-ndjson",
	}); err != nil {
		return nil, fmt.Errorf("staging: write %s: %w", key, err)
	}

	return &PutBatchResult{
		BatchRef: batchRef,
		Stats: BatchStats{
			Records: len(req.Records),
			Bytes:   int64(buf.Len()),
		},
	}, nil
}

func (p *MinioProvider) ListBatches(ctx context.Context, runID, entity string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prefix := p.runPrefix(runID)
	if entity != "" {
		prefix += entity + "/"
	}

	var refs []string
	objects := p.client.ListObjects(ctx, p.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})
	for obj := range objects {
		if obj.Err != nil {
			return nil, fmt.Errorf("staging: list %s: %w", prefix, obj.Err)
		}
		refs = append(refs, strings.TrimPrefix(obj.Key, p.runPrefix(runID)))
	}
	sort.Strings(refs)
	return refs, nil
}

func (p *MinioProvider) GetBatch(ctx context.Context, runID, batchRef string) ([]Envelope, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := p.runPrefix(runID) + batchRef
	obj, err := p.client.GetObject(ctx, p.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("staging: read %s: %w", key, err)
	}
	defer obj.Close()

	return decodeEnvelopes(obj)
}

func (p *MinioProvider) FinalizeRun(ctx context.Context, runID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	// Staged artifacts stay for the write-back step; cleanup is owned by
	// whoever consumes them.
	_ = runID
	return nil
}

func encodeEnvelopes(w io.Writer, records []Envelope) error {
	gz := gzip.NewWriter(w)
	enc := json.NewEncoder(gz)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			_ = gz.Close()
			return err
		}
	}
	return gz.Close()
}

func decodeEnvelopes(r io.Reader) ([]Envelope, error) {
	var reader io.Reader = r
	if gz, err := gzip.NewReader(r); err == nil {
		defer gz.Close()
		reader = gz
	}
	dec := json.NewDecoder(reader)
	var records []Envelope
	for dec.More() {
		var rec Envelope
		if err := dec.Decode(&rec); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}
