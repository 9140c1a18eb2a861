package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"

	"github.com/alejandria/sales-ai-platform/internal/conversation"
	"github.com/alejandria/sales-ai-platform/pkg/logging"
)

// S3API is the subset of the S3 client used by Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Store keeps client attachments and promoted-lead transcripts in S3.
type Store struct {
	bucket   string
	s3Client S3API
	logger   *logging.Logger
	now      func() time.Time
}

// NewStore creates an archive Store. If bucket is empty, all writes are no-ops.
func NewStore(s3Client S3API, bucket string, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{bucket: bucket, s3Client: s3Client, logger: logger, now: time.Now}
}

// Enabled returns true if archival is configured (bucket is set).
func (s *Store) Enabled() bool {
	return s != nil && s.bucket != "" && s.s3Client != nil
}

// PutAttachment uploads a client file and returns its storage key.
// When the store is disabled the attachment is returned without a key.
func (s *Store) PutAttachment(ctx context.Context, sessionID, name, mimeType string, data []byte) (*Attachment, error) {
	att := &Attachment{Name: name, MimeType: DocumentMimeType(name, mimeType), Size: int64(len(data))}
	if !s.Enabled() {
		return att, nil
	}

	now := s.now().UTC()
	att.Key = fmt.Sprintf("attachments/v1/by-date/%d/%02d/%02d/%s/%s-%s",
		now.Year(), now.Month(), now.Day(), safeSegment(sessionID), uuid.NewString(), safeSegment(path.Base(name)))

	_, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(att.Key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(att.MimeType),
		Metadata:    map[string]string{"session-id": sessionID},
	})
	if err != nil {
		return nil, fmt.Errorf("archive: s3 put %s: %w", att.Key, err)
	}
	s.logger.Info("attachment archived", "session_id", sessionID, "s3_key", att.Key, "size", att.Size)
	return att, nil
}

// ArchiveTranscript writes the session transcript as JSON and appends it to the manifest.
func (s *Store) ArchiveTranscript(ctx context.Context, record *TranscriptRecord) error {
	if !s.Enabled() {
		return nil
	}
	if record.Version == "" {
		record.Version = "1.0"
	}
	if record.ArchivedAt.IsZero() {
		record.ArchivedAt = s.now().UTC()
	}
	record.TurnCount = len(record.Turns)

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("archive: marshal record: %w", err)
	}

	now := record.ArchivedAt
	s3Key := fmt.Sprintf("transcripts/v1/by-date/%d/%02d/%02d/%s.json",
		now.Year(), now.Month(), now.Day(), safeSegment(record.SessionID))

	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s3Key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("archive: s3 put %s: %w", s3Key, err)
	}

	s.logger.Info("archived transcript to S3",
		"session_id", record.SessionID,
		"lead_id", record.LeadID,
		"s3_key", s3Key,
		"turns", record.TurnCount,
	)

	entry := ManifestEntry{
		SessionID:  record.SessionID,
		LeadID:     record.LeadID,
		S3Key:      s3Key,
		Category:   record.Category,
		ArchivedAt: now.Format(time.RFC3339),
		TurnCount:  record.TurnCount,
	}
	if err := s.AppendManifest(ctx, entry); err != nil {
		s.logger.Warn("failed to append manifest", "error", err, "session_id", record.SessionID)
	}
	return nil
}

// AppendManifest appends a JSONL line to the monthly manifest file.
// S3 has no append, so this is a read-modify-write.
func (s *Store) AppendManifest(ctx context.Context, entry ManifestEntry) error {
	if !s.Enabled() {
		return nil
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("archive: marshal manifest entry: %w", err)
	}

	now := s.now().UTC()
	manifestKey := fmt.Sprintf("transcripts/v1/manifests/%d-%02d.jsonl", now.Year(), now.Month())

	var existing []byte
	getResp, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(manifestKey),
	})
	switch {
	case err == nil:
		existing, _ = io.ReadAll(getResp.Body)
		getResp.Body.Close()
	case isNotFoundErr(err):
		s.logger.Debug("manifest not found, creating new", "key", manifestKey)
	default:
		return fmt.Errorf("archive: s3 get manifest: %w", err)
	}

	var buf bytes.Buffer
	if len(existing) > 0 {
		buf.Write(existing)
		if existing[len(existing)-1] != '\n' {
			buf.WriteByte('\n')
		}
	}
	buf.Write(line)
	buf.WriteByte('\n')

	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(manifestKey),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("archive: s3 put manifest: %w", err)
	}
	return nil
}

// TranscriptFromTurns converts conversation history for archival.
func TranscriptFromTurns(turns []conversation.Turn) []Turn {
	out := make([]Turn, 0, len(turns))
	for _, t := range turns {
		out = append(out, Turn{Role: t.Role, Content: t.Text, Timestamp: t.Timestamp})
	}
	return out
}

func isNotFoundErr(err error) bool {
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *s3types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "NoSuchKey") || strings.Contains(msg, "StatusCode: 404")
}

func safeSegment(s string) string {
	s = strings.Trim(unsafeNameChars.ReplaceAllString(strings.TrimSpace(s), "_"), "_")
	if s == "" {
		return "unnamed"
	}
	return s
}
