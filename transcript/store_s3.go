package transcript

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config holds configuration for the S3 storage backend.
type S3Config struct {
	// Bucket is the S3 bucket name (required).
	Bucket string
	// Prefix is the key prefix within the bucket (optional).
	Prefix string
	// Region is the AWS region (optional, uses default chain if empty).
	Region string
	// Endpoint is a custom S3 endpoint URL for S3-compatible providers
	// (e.g. Cloudflare R2, MinIO). Empty uses the default AWS endpoint.
	Endpoint string
	// UsePathStyle forces path-style addressing (bucket in path, not subdomain).
	// Required by most S3-compatible providers (R2, MinIO, etc.).
	UsePathStyle bool
}

// Validate checks that required S3 configuration is present.
func (c *S3Config) Validate() error {
	if c.Bucket == "" {
		return errors.New("S3 bucket is required")
	}
	return nil
}

// ParseS3Path parses a path in format "bucket/prefix" or "bucket".
func ParseS3Path(path string) (bucket, prefix string) {
	parts := strings.SplitN(path, "/", 2)
	bucket = parts[0]
	if len(parts) > 1 {
		prefix = parts[1]
	}
	return bucket, prefix
}

// S3Store persists transcripts in S3, one object per appended batch under
// <prefix>/day=<YYYY-MM-DD>/session_id=<id>/<part>.slt. Parts are numbered
// so that lexicographic key order is seq order.
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string

	mu    sync.Mutex
	days  map[string]string // session id -> partition day, fixed at first append
	parts map[string]int    // session id -> last written part number
}

// NewS3Store creates an S3-backed transcript store.
// Uses AWS SDK default credential chain (env vars, shared config, IAM role).
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Load AWS config with optional region
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// Create S3 client with optional endpoint and path-style overrides
	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = &endpoint
		})
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return &S3Store{
		client: s3.NewFromConfig(awsConfig, s3Opts...),
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		days:   make(map[string]string),
		parts:  make(map[string]int),
	}, nil
}

// Append implements Store. Each batch becomes one object; part state is only
// advanced after a successful write so a retried batch reuses its key.
func (s *S3Store) Append(ctx context.Context, sessionID string, records []*Record) error {
	if len(records) == 0 {
		return nil
	}

	data, err := encodeBatch(records)
	if err != nil {
		return err
	}

	s.mu.Lock()
	day, ok := s.days[sessionID]
	if !ok {
		day = DeriveDay(time.Now())
	}
	part := s.parts[sessionID] + 1
	s.mu.Unlock()

	key := s.objectKey(day, sessionID, part)
	contentType := "application/x-msgpack"
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &key,
		Body:        bytes.NewReader(data),
		ContentType: &contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to put transcript part %s: %w", key, err)
	}

	s.mu.Lock()
	s.days[sessionID] = day
	s.parts[sessionID] = part
	s.mu.Unlock()
	return nil
}

// Open implements Store. The returned reader concatenates the session's
// parts in key order, fetching each object lazily.
func (s *S3Store) Open(ctx context.Context, sessionID string) (io.ReadCloser, error) {
	keys, err := s.partKeys(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return &partReader{ctx: ctx, store: s, keys: keys}, nil
}

// List implements Store.
func (s *S3Store) List(ctx context.Context) ([]SessionRef, error) {
	seen := make(map[string]SessionRef)

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: &s.bucket,
		Prefix: &s.prefix,
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list transcript parts: %w", err)
		}
		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			day, sessionID, ok := parseObjectKey(*obj.Key)
			if !ok {
				continue
			}
			ref := SessionRef{
				SessionID: sessionID,
				Day:       day,
				Path:      "s3://" + s.bucket + "/" + *obj.Key,
			}
			// First part seen wins; parts of one session share day and id.
			if _, dup := seen[day+"/"+sessionID]; !dup {
				seen[day+"/"+sessionID] = ref
			}
		}
	}

	refs := make([]SessionRef, 0, len(seen))
	for _, ref := range seen {
		refs = append(refs, ref)
	}
	sortRefs(refs)
	return refs, nil
}

// Close implements Store.
func (s *S3Store) Close() error {
	return nil
}

// objectKey builds the object key for one appended batch.
func (s *S3Store) objectKey(day, sessionID string, part int) string {
	key := fmt.Sprintf("day=%s/session_id=%s/%012d%s", day, sessionID, part, sltExt)
	if s.prefix != "" {
		return s.prefix + "/" + key
	}
	return key
}

// partKeys returns the session's part keys in seq order.
func (s *S3Store) partKeys(ctx context.Context, sessionID string) ([]string, error) {
	needle := "/session_id=" + sessionID + "/"
	var keys []string

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: &s.bucket,
		Prefix: &s.prefix,
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list transcript parts: %w", err)
		}
		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			key := *obj.Key
			if strings.Contains(key, needle) && strings.HasSuffix(key, sltExt) {
				keys = append(keys, key)
			}
		}
	}

	sort.Strings(keys)
	return keys, nil
}

// parseObjectKey extracts the day and session id from a transcript object key.
func parseObjectKey(key string) (day, sessionID string, ok bool) {
	if !strings.HasSuffix(key, sltExt) {
		return "", "", false
	}
	for _, segment := range strings.Split(key, "/") {
		if strings.HasPrefix(segment, "day=") {
			day = strings.TrimPrefix(segment, "day=")
		}
		if strings.HasPrefix(segment, "session_id=") {
			sessionID = strings.TrimPrefix(segment, "session_id=")
		}
	}
	return day, sessionID, day != "" && sessionID != ""
}

// partReader streams a session's parts back to back.
type partReader struct {
	ctx   context.Context
	store *S3Store
	keys  []string
	cur   io.ReadCloser
}

func (r *partReader) Read(p []byte) (int, error) {
	for {
		if r.cur == nil {
			if len(r.keys) == 0 {
				return 0, io.EOF
			}
			key := r.keys[0]
			r.keys = r.keys[1:]

			out, err := r.store.client.GetObject(r.ctx, &s3.GetObjectInput{
				Bucket: &r.store.bucket,
				Key:    &key,
			})
			if err != nil {
				return 0, fmt.Errorf("failed to get transcript part %s: %w", key, err)
			}
			r.cur = out.Body
		}

		n, err := r.cur.Read(p)
		if err == io.EOF {
			_ = r.cur.Close()
			r.cur = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (r *partReader) Close() error {
	if r.cur == nil {
		return nil
	}
	err := r.cur.Close()
	r.cur = nil
	return err
}

// Verify S3Store implements Store.
var _ Store = (*S3Store)(nil)
