// Package storage stores uploaded binaries in named buckets and resolves
// public URLs for them. The backing filesystem is abstracted so tests run
// against an in-memory one.
package storage

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

var nowFunc = time.Now // mockable

// Storage bucket names
const (
	AvatarsBucket         = "avatars"
	CourseMaterialsBucket = "course-materials"
	LessonContentBucket   = "lesson-content"
)

const (
	avatarMaxSize   = 2 * 1024 * 1024
	materialMaxSize = 50 * 1024 * 1024
)

var bucketMaxSizes = map[string]int64{
	AvatarsBucket:         avatarMaxSize,
	CourseMaterialsBucket: materialMaxSize,
	LessonContentBucket:   materialMaxSize,
}

var (
	// errors
	ErrUnknownBucket = errors.New("unknown storage bucket")
	ErrObjectExists  = errors.New("an object already exists at this path")
	ErrTooLarge      = errors.New("file exceeds the bucket size limit")
)

// MaxSize returns the size ceiling for a bucket; 0 for unknown buckets.
func MaxSize(bucket string) int64 {
	return bucketMaxSizes[bucket]
}

// GenerateFilename returns a collision-resistant name keeping the original
// extension: <unix-millis>-<token>.<ext>
func GenerateFilename(original string) string {
	token := strings.SplitN(uuid.New().String(), "-", 2)[0]
	ext := strings.ToLower(filepath.Ext(original))
	return fmt.Sprintf("%d-%s%s", nowFunc().UnixNano()/1e6, token, ext)
}

type Store interface {
	// Save writes the object and returns its public URL. It refuses to
	// overwrite an existing object and enforces the bucket size ceiling
	// before any write happens.
	Save(bucket, objPath string, r io.Reader, size int64) (string, error)
	// Delete removes an object; deleting a missing object is not an error.
	Delete(bucket, objPath string) error
	PublicURL(bucket, objPath string) string
}

type fileStore struct {
	fs      afero.Fs
	root    string
	baseURL string
}

var _ Store = (*fileStore)(nil)

// NewFileStore creates the bucket directories under root if they do not exist.
func NewFileStore(fs afero.Fs, root, baseURL string) (*fileStore, error) {
	st := &fileStore{
		fs:      fs,
		root:    root,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
	for bucket := range bucketMaxSizes {
		if err := fs.MkdirAll(filepath.Join(root, bucket), 0o755); err != nil {
			return nil, errors.Wrapf(err, "creating bucket %s", bucket)
		}
	}
	return st, nil
}

func (st *fileStore) Save(bucket, objPath string, r io.Reader, size int64) (string, error) {
	max, ok := bucketMaxSizes[bucket]
	if !ok {
		return "", ErrUnknownBucket
	}
	if size > max {
		return "", ErrTooLarge
	}

	fp := filepath.Join(st.root, bucket, filepath.FromSlash(objPath))
	if _, err := st.fs.Stat(fp); err == nil {
		return "", ErrObjectExists
	} else if !os.IsNotExist(err) {
		return "", errors.Wrap(err, "checking object")
	}

	if err := st.fs.MkdirAll(filepath.Dir(fp), 0o755); err != nil {
		return "", errors.Wrap(err, "creating object dir")
	}
	f, err := st.fs.OpenFile(fp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", errors.Wrap(err, "creating object")
	}
	if _, err = io.Copy(f, io.LimitReader(r, max)); err != nil {
		_ = f.Close()
		_ = st.fs.Remove(fp) // do not leave partial objects behind
		return "", errors.Wrap(err, "writing object")
	}
	if err = f.Close(); err != nil {
		_ = st.fs.Remove(fp)
		return "", errors.Wrap(err, "closing object")
	}
	return st.PublicURL(bucket, objPath), nil
}

func (st *fileStore) Delete(bucket, objPath string) error {
	fp := filepath.Join(st.root, bucket, filepath.FromSlash(objPath))
	if err := st.fs.Remove(fp); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "removing object")
	}
	return nil
}

func (st *fileStore) PublicURL(bucket, objPath string) string {
	return st.baseURL + "/" + path.Join(bucket, objPath)
}
