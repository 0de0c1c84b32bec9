package service

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/bitfantasy/nimo-quote/internal/quote/entity"
	"github.com/bitfantasy/nimo-quote/internal/quote/repository"
	"github.com/bitfantasy/nimo-quote/internal/shared/errs"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
)

// DocumentService 询价单附件，文件存MinIO，元数据存 rfq_documents
type DocumentService struct {
	rfqRepo     *repository.RFQRepository
	docRepo     *repository.DocumentRepository
	minioClient *minio.Client
	bucketName  string
}

// NewDocumentService minioClient 可以为nil，此时只记录元数据
func NewDocumentService(
	rfqRepo *repository.RFQRepository,
	docRepo *repository.DocumentRepository,
	minioClient *minio.Client,
	bucketName string,
) *DocumentService {
	return &DocumentService{
		rfqRepo:     rfqRepo,
		docRepo:     docRepo,
		minioClient: minioClient,
		bucketName:  bucketName,
	}
}

// Upload 上传附件，RFQ 必须存在
func (s *DocumentService) Upload(ctx context.Context, rfqID, userID string, reader io.Reader, fileName string, fileSize int64, contentType string) (*entity.RFQDocument, error) {
	if _, err := s.rfqRepo.FindByID(ctx, rfqID); err != nil {
		return nil, notFound(err, "rfq %s does not exist", rfqID)
	}
	fileName = filepath.Base(strings.TrimSpace(fileName))
	if fileName == "" || fileName == "." {
		return nil, errs.Validation("file name is required")
	}

	objectName := fmt.Sprintf("rfq/%s/%s-%s", rfqID, uuid.New().String()[:8], fileName)
	if s.minioClient != nil {
		_, err := s.minioClient.PutObject(ctx, s.bucketName, objectName, reader, fileSize, minio.PutObjectOptions{
			ContentType: contentType,
		})
		if err != nil {
			return nil, fmt.Errorf("upload file: %w", err)
		}
	}

	now := time.Now()
	doc := &entity.RFQDocument{
		ID:          newID(),
		RFQID:       rfqID,
		FileName:    fileName,
		ObjectName:  objectName,
		ContentType: contentType,
		Size:        fileSize,
		UploadedBy:  userID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.docRepo.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}
	return doc, nil
}

func (s *DocumentService) List(ctx context.Context, rfqID string) ([]entity.RFQDocument, error) {
	if _, err := s.rfqRepo.FindByID(ctx, rfqID); err != nil {
		return nil, notFound(err, "rfq %s does not exist", rfqID)
	}
	return s.docRepo.ListByRFQ(ctx, rfqID)
}

// Download 返回附件元数据和对象读取流，调用方负责关闭
func (s *DocumentService) Download(ctx context.Context, id string) (*entity.RFQDocument, io.ReadCloser, error) {
	doc, err := s.docRepo.FindByID(ctx, id)
	if err != nil {
		return nil, nil, notFound(err, "document %s does not exist", id)
	}
	if doc.Deleted {
		return nil, nil, errs.NotFound("document %s does not exist", id)
	}
	if s.minioClient == nil {
		return nil, nil, errs.NotFound("document store is not configured")
	}
	obj, err := s.minioClient.GetObject(ctx, s.bucketName, doc.ObjectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, nil, fmt.Errorf("get object: %w", err)
	}
	return doc, obj, nil
}

// Delete 软删除
func (s *DocumentService) Delete(ctx context.Context, id string) error {
	if _, err := s.docRepo.FindByID(ctx, id); err != nil {
		return notFound(err, "document %s does not exist", id)
	}
	return s.docRepo.MarkDeleted(ctx, id)
}

// DeletePermanently 删除对象和元数据
func (s *DocumentService) DeletePermanently(ctx context.Context, id string) error {
	doc, err := s.docRepo.FindByID(ctx, id)
	if err != nil {
		return notFound(err, "document %s does not exist", id)
	}
	if s.minioClient != nil {
		if err := s.minioClient.RemoveObject(ctx, s.bucketName, doc.ObjectName, minio.RemoveObjectOptions{}); err != nil {
			return fmt.Errorf("remove object: %w", err)
		}
	}
	return s.docRepo.Delete(ctx, id)
}
