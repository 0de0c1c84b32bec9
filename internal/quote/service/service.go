package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bitfantasy/nimo-quote/internal/quote/repository"
	"github.com/bitfantasy/nimo-quote/internal/shared/errs"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"
)

// Services 服务集合
type Services struct {
	RFQ        *RFQService
	Pipeline   *PipelineService
	Versioning *VersioningService
	Lifecycle  *LifecycleService
	Document   *DocumentService
	Export     *ExportService
}

// NewServices 创建服务集合。currencies、minioClient 可为 nil。
func NewServices(repos *repository.Repositories, currencies *CurrencyCache, minioClient *minio.Client, bucket string, logger *zap.Logger) *Services {
	if logger == nil {
		logger = zap.NewNop()
	}
	if currencies == nil {
		currencies = NewCurrencyCache(nil, repos.Master, 0)
	}
	rfqSvc := NewRFQService(repos, logger)
	return &Services{
		RFQ:        rfqSvc,
		Pipeline:   NewPipelineService(repos, currencies, logger),
		Versioning: NewVersioningService(repos, logger),
		Lifecycle:  NewLifecycleService(repos, logger),
		Document:   NewDocumentService(repos.RFQ, repos.Document, minioClient, bucket),
		Export:     NewExportService(rfqSvc),
	}
}

// StageResult 计算环节的结果。业务拒绝通过 Success=false 表达，不作为 error 返回。
type StageResult struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Stage   string      `json:"stage"`
	Kind    errs.Kind   `json:"kind,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func newID() string {
	return uuid.New().String()[:32]
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// validateInput 把 validator 的错误转换为 ValidationError
func validateInput(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return errs.Validation("%s", err.Error())
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return errs.Validation("%s", strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must contain at least %s item(s)", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	}
	return fmt.Sprintf("%s failed on %s", field, fe.Tag())
}

// notFound 仓库未找到错误转换为 NotFound，其他错误保持原样
func notFound(err error, format string, args ...interface{}) error {
	if errors.Is(err, repository.ErrNotFound) {
		return errs.NotFound(format, args...)
	}
	return err
}
