package fetch

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/sync/errgroup"

	"qwenedit/internal/registry"
)

// s3Snapshot names the snapshot directory mirrored repositories land in.
const s3Snapshot = "s3-mirror"

// S3Mirror copies repositories from an object store laid out as
// <prefix>/<org>/<name>/<file>.
type S3Mirror struct {
	Client   *s3.Client
	Bucket   string
	Prefix   string
	Parallel int
}

// S3Options configure NewS3Mirror. Empty credentials fall back to the
// AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY environment.
type S3Options struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Parallel        int
}

// NewS3Mirror builds an S3 client for opts. A custom endpoint switches to
// path-style addressing, which S3-compatible stores expect.
func NewS3Mirror(opts S3Options) *S3Mirror {
	cfg := aws.NewConfig()
	cfg.Region = opts.Region
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if opts.Endpoint != "" {
		cfg.BaseEndpoint = aws.String(opts.Endpoint)
	}
	id, secret := opts.AccessKeyID, opts.SecretAccessKey
	if id == "" {
		id, secret = os.Getenv("AWS_ACCESS_KEY_ID"), os.Getenv("AWS_SECRET_ACCESS_KEY")
	}
	token := opts.SessionToken
	if token == "" {
		token = os.Getenv("AWS_SESSION_TOKEN")
	}
	if id != "" {
		cfg.Credentials = credentials.StaticCredentialsProvider{
			Value: aws.Credentials{AccessKeyID: id, SecretAccessKey: secret, SessionToken: token},
		}
	} else {
		cfg.Credentials = aws.AnonymousCredentials{}
	}
	client := s3.NewFromConfig(*cfg, func(o *s3.Options) {
		o.UsePathStyle = opts.Endpoint != ""
	})
	return &S3Mirror{Client: client, Bucket: opts.Bucket, Prefix: opts.Prefix, Parallel: opts.Parallel}
}

func (m *S3Mirror) Name() string { return "s3" }

func (m *S3Mirror) repoPrefix(repoID string) string {
	p := strings.Trim(m.Prefix, "/")
	if p == "" {
		return repoID + "/"
	}
	return p + "/" + repoID + "/"
}

func (m *S3Mirror) Download(ctx context.Context, cacheDir string, repo Repo, progress Progress) error {
	prefix := m.repoPrefix(repo.ID)
	type object struct {
		key  string
		size int64
	}
	var objects []object
	pager := s3.NewListObjectsV2Paginator(m.Client, &s3.ListObjectsV2Input{
		Bucket: aws.String(m.Bucket),
		Prefix: aws.String(prefix),
	})
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("list s3://%s/%s: %w", m.Bucket, prefix, err)
		}
		for _, o := range page.Contents {
			key := aws.ToString(o.Key)
			if strings.HasSuffix(key, "/") {
				continue
			}
			objects = append(objects, object{key: key, size: aws.ToInt64(o.Size)})
		}
	}
	if len(objects) == 0 {
		return fmt.Errorf("no objects under s3://%s/%s", m.Bucket, prefix)
	}

	root := registry.RepoDir(cacheDir, repo.ID)
	snap := filepath.Join(root, "snapshots", s3Snapshot)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(m.Parallel, 1))
	for _, o := range objects {
		o := o
		name := strings.TrimPrefix(o.key, prefix)
		dst, err := safeJoin(snap, name)
		if err != nil {
			return fmt.Errorf("%s: %w", repo.ID, err)
		}
		g.Go(func() error {
			return m.get(gctx, repo.ID, o.key, name, dst, o.size, progress)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	refs := filepath.Join(root, "refs")
	if err := os.MkdirAll(refs, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(refs, "main"), []byte(s3Snapshot), 0o644)
}

func (m *S3Mirror) get(ctx context.Context, repoID, key, name, dst string, size int64, progress Progress) (err error) {
	if fi, statErr := os.Stat(dst); statErr == nil && fi.Size() == size {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := m.Client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(m.Bucket), Key: aws.String(key)})
	if err != nil {
		return fmt.Errorf("get s3://%s/%s: %w", m.Bucket, key, err)
	}
	defer out.Body.Close()

	fp := progress.File(repoID, path.Clean(name), size, 0)
	defer func() { fp.Finish(err) }()

	part := dst + incompleteSuffix
	f, err := os.Create(part)
	if err != nil {
		return err
	}
	if _, err = io.Copy(f, fp.Reader(out.Body)); err != nil {
		f.Close()
		return fmt.Errorf("read s3://%s/%s: %w", m.Bucket, key, err)
	}
	if err = f.Close(); err != nil {
		return err
	}
	return os.Rename(part, dst)
}
