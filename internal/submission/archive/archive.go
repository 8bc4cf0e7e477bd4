// Package archive keeps a compressed copy of every finished submission in object storage.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"coderank/internal/common/storage"
	"coderank/internal/submission/model"
	appErr "coderank/pkg/errors"

	"github.com/klauspost/compress/zstd"
)

const contentType = "application/zstd"

// Archiver stores terminal submissions.
type Archiver interface {
	Archive(ctx context.Context, submission *model.Submission) error
}

// ObjectArchiver writes zstd-compressed JSON records to a bucket.
type ObjectArchiver struct {
	storage storage.ObjectStorage
	bucket  string
	prefix  string
}

func NewObjectArchiver(objectStorage storage.ObjectStorage, bucket, prefix string) *ObjectArchiver {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &ObjectArchiver{storage: objectStorage, bucket: bucket, prefix: prefix}
}

// ObjectKey is where a submission is stored: <prefix><yyyy>/<mm>/<dd>/<id>.json.zst by creation date.
func (a *ObjectArchiver) ObjectKey(submission *model.Submission) string {
	created := submission.CreatedAt.UTC()
	return fmt.Sprintf("%s%04d/%02d/%02d/%s.json.zst", a.prefix, created.Year(), created.Month(), created.Day(), submission.ID)
}

func (a *ObjectArchiver) Archive(ctx context.Context, submission *model.Submission) error {
	if submission == nil || submission.ID == "" {
		return appErr.ValidationError("submission_id", "required")
	}
	if !submission.Status.Terminal() {
		return appErr.New(appErr.InvalidParams).WithMessagef("status %s is not terminal", submission.Status)
	}
	payload, err := json.Marshal(submission)
	if err != nil {
		return fmt.Errorf("marshal submission failed: %w", err)
	}

	var buf bytes.Buffer
	encoder, err := zstd.NewWriter(&buf)
	if err != nil {
		return fmt.Errorf("create zstd writer failed: %w", err)
	}
	if _, err := encoder.Write(payload); err != nil {
		_ = encoder.Close()
		return fmt.Errorf("compress submission failed: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return fmt.Errorf("compress submission failed: %w", err)
	}

	if err := a.storage.PutObject(ctx, a.bucket, a.ObjectKey(submission), &buf, int64(buf.Len()), contentType); err != nil {
		return appErr.Wrapf(err, appErr.ServiceUnavailable, "archive submission failed")
	}
	return nil
}

// Fetch reads back an archived record by key.
func (a *ObjectArchiver) Fetch(ctx context.Context, objectKey string) (*model.Submission, error) {
	reader, err := a.storage.GetObject(ctx, a.bucket, objectKey)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.ServiceUnavailable, "read archive failed")
	}
	defer reader.Close()

	decoder, err := zstd.NewReader(reader)
	if err != nil {
		return nil, fmt.Errorf("create zstd reader failed: %w", err)
	}
	defer decoder.Close()

	payload, err := io.ReadAll(decoder)
	if err != nil {
		return nil, fmt.Errorf("decompress archive failed: %w", err)
	}
	var submission model.Submission
	if err := json.Unmarshal(payload, &submission); err != nil {
		return nil, fmt.Errorf("decode archive failed: %w", err)
	}
	return &submission, nil
}
