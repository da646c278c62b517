// internal/services/archive_service.go
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/contract-engine/internal/config"
	"github.com/javajoker/contract-engine/internal/models"
)

// ContractSnapshot is the record written when a contract is signed or
// completed.
type ContractSnapshot struct {
	Contract   models.Contract          `json:"contract"`
	Order      models.Order             `json:"order"`
	Addons     []models.AddonAttachment `json:"addons"`
	ArchivedAt time.Time                `json:"archived_at"`
}

// ContractArchiver stores contract snapshots outside the database.
type ContractArchiver interface {
	ArchiveContract(ctx context.Context, snapshot *ContractSnapshot) error
}

type ArchiveService struct {
	s3Client s3iface.S3API
	bucket   string
}

type ArchiveResult struct {
	Key  string `json:"key"`
	Size int64  `json:"size"`
}

func NewArchiveService(cfg *config.Config) (*ArchiveService, error) {
	if !cfg.AWS.ArchiveEnabled() {
		// Local development keeps snapshots in the log only
		return &ArchiveService{bucket: cfg.AWS.ArchiveBucket}, nil
	}

	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(cfg.AWS.Region),
		Credentials: credentials.NewStaticCredentials(
			cfg.AWS.AccessKeyID,
			cfg.AWS.SecretAccessKey,
			"",
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return &ArchiveService{
		s3Client: s3.New(sess),
		bucket:   cfg.AWS.ArchiveBucket,
	}, nil
}

// NewArchiveServiceWithClient uses an existing S3 client.
func NewArchiveServiceWithClient(client s3iface.S3API, bucket string) *ArchiveService {
	return &ArchiveService{s3Client: client, bucket: bucket}
}

func (s *ArchiveService) ArchiveContract(ctx context.Context, snapshot *ContractSnapshot) error {
	_, err := s.Put(ctx, snapshot)
	return err
}

// Put writes the snapshot to contracts/<id>/<status>.json.
func (s *ArchiveService) Put(ctx context.Context, snapshot *ContractSnapshot) (*ArchiveResult, error) {
	body, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode contract snapshot: %w", err)
	}

	key := ArchiveKey(&snapshot.Contract)

	if s.s3Client == nil {
		logrus.WithFields(logrus.Fields{
			"key":  key,
			"size": len(body),
		}).Info("Contract snapshot would be archived")
		return &ArchiveResult{Key: key, Size: int64(len(body))}, nil
	}

	_, err = s.s3Client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentType:   aws.String("application/json"),
		ContentLength: aws.Int64(int64(len(body))),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload to S3: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"bucket": s.bucket,
		"key":    key,
	}).Info("Contract snapshot archived")

	return &ArchiveResult{Key: key, Size: int64(len(body))}, nil
}

func ArchiveKey(contract *models.Contract) string {
	return fmt.Sprintf("contracts/%s/%s.json", contract.ID, contract.Status)
}
