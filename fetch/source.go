package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

var ErrNotFound = errors.New("artifact not found")

// Response is one fetched file.
type Response struct {
	URL    string
	Header http.Header
	Body   []byte
}

// Source fetches component and module files by URL.
type Source interface {
	Open(ctx context.Context, url string) (*Response, error)
}

func hasScheme(u string) bool {
	return strings.HasPrefix(u, "http:") || strings.HasPrefix(u, "https:")
}

// pathOf drops the scheme, host and query of u.
func pathOf(u string) string {
	if hasScheme(u) {
		if parsed, err := url.Parse(u); err == nil {
			return parsed.Path
		}
	}
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	return u
}

// DirSource serves files from a file system. Header is attached to every
// response, which is how a directory declares its vyes-* settings.
type DirSource struct {
	FS     fs.FS
	Header http.Header
}

func (s DirSource) Open(ctx context.Context, u string) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name := strings.TrimPrefix(pathOf(u), "/")
	if name == "" {
		name = "."
	}
	b, err := fs.ReadFile(s.FS, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrInvalid) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, u)
		}
		return nil, fmt.Errorf("read %s: %w", u, err)
	}
	h := http.Header{}
	for k, vs := range s.Header {
		h[k] = append([]string(nil), vs...)
	}
	return &Response{URL: u, Header: h, Body: b}, nil
}

// HTTPSource fetches over HTTP. URLs without a scheme are resolved
// against Base.
type HTTPSource struct {
	Client *http.Client
	Base   string
}

func (s HTTPSource) Open(ctx context.Context, u string) (*Response, error) {
	target := u
	if !hasScheme(u) {
		target = strings.TrimSuffix(s.Base, "/") + u
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", target, err)
	}
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", target, err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, target)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("fetch %s: status %d", target, resp.StatusCode)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", target, err)
	}
	return &Response{URL: u, Header: resp.Header, Body: b}, nil
}

// S3API is the subset of the S3 client used by S3Source.
type S3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Source reads files from a bucket. Object metadata becomes response
// headers, so a vyes-root metadata entry sets the environment root.
type S3Source struct {
	Client S3API
	Bucket string
	Prefix string
}

func (s S3Source) Open(ctx context.Context, u string) (*Response, error) {
	key := s.Prefix + strings.TrimPrefix(pathOf(u), "/")
	out, err := s.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("%w: s3://%s/%s", ErrNotFound, s.Bucket, key)
		}
		return nil, fmt.Errorf("s3 get %s: %w", key, err)
	}
	defer out.Body.Close()
	b, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("s3 read %s: %w", key, err)
	}
	h := http.Header{}
	for k, v := range out.Metadata {
		h.Set(k, v)
	}
	if out.ContentType != nil {
		h.Set("Content-Type", *out.ContentType)
	}
	return &Response{URL: u, Header: h, Body: b}, nil
}
