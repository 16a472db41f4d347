// Package s3 provides a workspace store on S3 or an S3-compatible service
// such as MinIO. A file is an object keyed by its path; a folder is an empty
// marker object keyed by its path plus a trailing slash.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"github.com/corvex/corvex/internal/logging"
	"github.com/corvex/corvex/internal/models"
	"github.com/corvex/corvex/internal/tree"
)

// Config holds S3 connection settings.
type Config struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Region    string
}

// Store implements the workspace store on an S3 bucket.
type Store struct {
	client *s3.Client
	bucket string
}

// New creates a new S3 store and makes sure the bucket exists.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = true
	})

	s := &Store{client: client, bucket: cfg.Bucket}
	if err := s.ensureBucket(ctx); err != nil {
		logging.Error("bucket check failed", zap.Error(err))
	}
	return s, nil
}

func (s *Store) ensureBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err == nil {
		return nil
	}
	if _, err := s.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(s.bucket)}); err != nil {
		return fmt.Errorf("bucket %s does not exist and cannot create: %w", s.bucket, err)
	}
	logging.Info("created S3 bucket", zap.String("bucket", s.bucket))
	return nil
}

// Type returns "s3".
func (s *Store) Type() string { return "s3" }

// Close is a no-op for S3 stores.
func (s *Store) Close() error { return nil }

func folderKey(path string) string {
	return path + "/"
}

func (s *Store) copySource(key string) string {
	segments := strings.Split(s.bucket+"/"+key, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Join(segments, "/")
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	var nsk *types.NoSuchKey
	return errors.As(err, &nf) || errors.As(err, &nsk)
}

// fileExists reports whether a file object exists at path.
func (s *Store) fileExists(ctx context.Context, path string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("head %q: %w", path, err)
	}
	return true, nil
}

// folderExists reports whether path is a folder, either by its marker or by
// any object below it. The root always exists.
func (s *Store) folderExists(ctx context.Context, path string) (bool, error) {
	if tree.IsRoot(path) {
		return true, nil
	}
	out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		Prefix:  aws.String(folderKey(path)),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return false, fmt.Errorf("list %q: %w", path, err)
	}
	return len(out.Contents) > 0, nil
}

func (s *Store) kindOf(ctx context.Context, path string) (models.Kind, bool, error) {
	ok, err := s.fileExists(ctx, path)
	if err != nil || ok {
		return models.KindFile, ok, err
	}
	ok, err = s.folderExists(ctx, path)
	return models.KindFolder, ok, err
}

// keysUnder lists every key beginning with prefix.
func (s *Store) keysUnder(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list %q: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}

// ListAll builds the tree from every key in the bucket.
func (s *Store) ListAll(ctx context.Context) (*models.Folder, error) {
	keys, err := s.keysUnder(ctx, "")
	if err != nil {
		return nil, err
	}
	return buildTree(keys), nil
}

// buildTree turns a key listing into a folder tree. Folders without a
// marker are implied by the keys below them; keys that are not valid paths
// are ignored.
func buildTree(keys []string) *models.Folder {
	root := &models.Folder{Files: []models.FileEntry{}, Subfolders: []*models.Folder{}}
	folders := map[string]*models.Folder{"": root}
	var ensure func(id string) *models.Folder
	ensure = func(id string) *models.Folder {
		if f, ok := folders[id]; ok {
			return f
		}
		parent := ensure(tree.ParentID(id))
		f := &models.Folder{ID: id, Name: tree.Name(id), Files: []models.FileEntry{}, Subfolders: []*models.Folder{}}
		parent.Subfolders = append(parent.Subfolders, f)
		folders[id] = f
		return f
	}

	for _, key := range keys {
		if strings.HasSuffix(key, "/") {
			id := strings.TrimSuffix(key, "/")
			if tree.ValidPath(id) {
				ensure(id)
			}
			continue
		}
		if !tree.ValidPath(key) {
			continue
		}
		parent := ensure(tree.ParentID(key))
		parent.Files = append(parent.Files, models.FileEntry{ID: key, Name: tree.Name(key)})
	}
	return root
}

// CreateFile stores an empty object at path.
func (s *Store) CreateFile(ctx context.Context, path string) error {
	return s.create(ctx, path, path)
}

// CreateFolder stores a folder marker for path.
func (s *Store) CreateFolder(ctx context.Context, path string) error {
	return s.create(ctx, path, folderKey(path))
}

func (s *Store) create(ctx context.Context, path, key string) error {
	if tree.IsRoot(path) {
		return fmt.Errorf("create root: %w", models.ErrPermissionDenied)
	}
	if !tree.ValidPath(path) {
		return fmt.Errorf("create %q: %w", path, models.ErrInvalid)
	}
	if _, exists, err := s.kindOf(ctx, path); err != nil {
		return err
	} else if exists {
		return fmt.Errorf("create %q: %w", path, models.ErrConflict)
	}
	if ok, err := s.folderExists(ctx, tree.ParentID(path)); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("create %q: parent: %w", path, models.ErrNotFound)
	}
	return s.put(ctx, key, "")
}

func (s *Store) put(ctx context.Context, key, body string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          strings.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	logging.Debug("S3 put object", zap.String("key", key), zap.Int("size", len(body)))
	return nil
}

// RenameFile renames a file.
func (s *Store) RenameFile(ctx context.Context, oldPath, newPath string) error {
	return s.relocate(ctx, oldPath, newPath, models.KindFile)
}

// RenameFolder renames a folder by copying every object below it.
func (s *Store) RenameFolder(ctx context.Context, oldPath, newPath string) error {
	return s.relocate(ctx, oldPath, newPath, models.KindFolder)
}

// MoveFile moves a file to another folder.
func (s *Store) MoveFile(ctx context.Context, oldPath, newPath string) error {
	return s.relocate(ctx, oldPath, newPath, models.KindFile)
}

// MoveFolder moves a folder to another folder.
func (s *Store) MoveFolder(ctx context.Context, oldPath, newPath string) error {
	return s.relocate(ctx, oldPath, newPath, models.KindFolder)
}

func (s *Store) relocate(ctx context.Context, oldPath, newPath string, kind models.Kind) error {
	if tree.IsRoot(oldPath) || tree.IsRoot(newPath) {
		return fmt.Errorf("rename root: %w", models.ErrPermissionDenied)
	}
	if !tree.ValidPath(newPath) {
		return fmt.Errorf("rename to %q: %w", newPath, models.ErrInvalid)
	}
	if got, ok, err := s.kindOf(ctx, oldPath); err != nil {
		return err
	} else if !ok || got != kind {
		return fmt.Errorf("rename %q: %w", oldPath, models.ErrNotFound)
	}
	if oldPath == newPath {
		return nil
	}
	if tree.IsWithin(newPath, oldPath) {
		return fmt.Errorf("move %q into itself: %w", oldPath, models.ErrInvalid)
	}
	if _, exists, err := s.kindOf(ctx, newPath); err != nil {
		return err
	} else if exists {
		return fmt.Errorf("rename to %q: %w", newPath, models.ErrConflict)
	}
	if ok, err := s.folderExists(ctx, tree.ParentID(newPath)); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("rename to %q: parent: %w", newPath, models.ErrNotFound)
	}

	if kind == models.KindFile {
		if err := s.copy(ctx, oldPath, newPath); err != nil {
			return err
		}
		return s.deleteKeys(ctx, []string{oldPath})
	}

	keys, err := s.keysUnder(ctx, folderKey(oldPath))
	if err != nil {
		return err
	}
	for _, key := range keys {
		dst := folderKey(newPath) + strings.TrimPrefix(key, folderKey(oldPath))
		if err := s.copy(ctx, key, dst); err != nil {
			return err
		}
	}
	return s.deleteKeys(ctx, keys)
}

func (s *Store) copy(ctx context.Context, srcKey, dstKey string) error {
	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(s.bucket),
		Key:        aws.String(dstKey),
		CopySource: aws.String(s.copySource(srcKey)),
	})
	if err != nil {
		return fmt.Errorf("copy %s -> %s: %w", srcKey, dstKey, err)
	}
	logging.Debug("S3 copy object", zap.String("src", srcKey), zap.String("dst", dstKey))
	return nil
}

// deleteKeys removes keys in batches of at most 1000.
func (s *Store) deleteKeys(ctx context.Context, keys []string) error {
	for len(keys) > 0 {
		n := min(len(keys), 1000)
		objects := make([]types.ObjectIdentifier, n)
		for i, key := range keys[:n] {
			objects[i] = types.ObjectIdentifier{Key: aws.String(key)}
		}
		_, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{Objects: objects, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return fmt.Errorf("delete %d objects: %w", n, err)
		}
		logging.Debug("S3 delete objects", zap.Int("count", n))
		keys = keys[n:]
	}
	return nil
}

// DeleteFile removes a file.
func (s *Store) DeleteFile(ctx context.Context, path string) error {
	return s.delete(ctx, path, models.KindFile)
}

// DeleteFolder removes a folder and every object below it.
func (s *Store) DeleteFolder(ctx context.Context, path string) error {
	return s.delete(ctx, path, models.KindFolder)
}

func (s *Store) delete(ctx context.Context, path string, kind models.Kind) error {
	if tree.IsRoot(path) {
		return fmt.Errorf("delete root: %w", models.ErrPermissionDenied)
	}
	if got, ok, err := s.kindOf(ctx, path); err != nil {
		return err
	} else if !ok || got != kind {
		return fmt.Errorf("delete %q: %w", path, models.ErrNotFound)
	}
	if kind == models.KindFile {
		return s.deleteKeys(ctx, []string{path})
	}
	keys, err := s.keysUnder(ctx, folderKey(path))
	if err != nil {
		return err
	}
	return s.deleteKeys(ctx, keys)
}

// GetFileContent reads a file object.
func (s *Store) GetFileContent(ctx context.Context, path string) (string, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		if isNotFound(err) {
			return "", fmt.Errorf("read %q: %w", path, models.ErrNotFound)
		}
		return "", fmt.Errorf("get object %s: %w", path, err)
	}
	defer out.Body.Close()
	b, err := io.ReadAll(out.Body)
	if err != nil {
		return "", fmt.Errorf("read object %s: %w", path, err)
	}
	return string(b), nil
}

// SaveFileContent overwrites an existing file object.
func (s *Store) SaveFileContent(ctx context.Context, path, text string) error {
	if ok, err := s.fileExists(ctx, path); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("write %q: %w", path, models.ErrNotFound)
	}
	return s.put(ctx, path, text)
}
