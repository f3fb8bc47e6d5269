package rag

import (
	"errors"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/BaSui01/landau/types"
	"github.com/go-playground/validator/v10"
)

// RetrievalRequest 一次检索请求。
type RetrievalRequest struct {
	Query                string   `json:"query" validate:"trimmed_min=5"`
	CollectionName       string   `json:"collection_name" validate:"notblank"`
	TopK                 int      `json:"top_k" validate:"gte=1,gtefield=TopN"`
	TopN                 int      `json:"top_n" validate:"gte=1"`
	NumMultiquery        int      `json:"num_multiquery" validate:"gte=0"`
	RerankScoreThreshold float64  `json:"rerank_score_threshold" validate:"gte=0,lte=1"`
	UseRerank            bool     `json:"use_rerank"`
	ExtendResults        bool     `json:"extend_results"`
	PermittedDocumentIDs []string `json:"permitted_document_ids,omitempty"`
}

// Messages follow the wording of the HTTP API so clients can show them as-is.
var validationMessages = map[string]string{
	"query":                  "query must be at least 5 characters long",
	"collection_name":        "collection_name must not be empty",
	"top_k":                  "top_k must be greater than 0",
	"top_n":                  "top_n must be greater than 0",
	"num_multiquery":         "num_multiquery must be greater than or equal to 0",
	"rerank_score_threshold": "rerank_score_threshold must be between 0 and 1",
	"document_id":            "document_id must not be empty",
	"formula_id":             "formula must not be empty",
	"chapter_id":             "chapter_id must not be empty",
	"section_id":             "section_id must not be empty",
	"script_id":              "script_id must not be empty",
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func requestValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		_ = validate.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
			return strings.TrimSpace(fl.Field().String()) != ""
		})
		_ = validate.RegisterValidation("trimmed_min", func(fl validator.FieldLevel) bool {
			n, err := strconv.Atoi(fl.Param())
			if err != nil {
				return false
			}
			return len([]rune(strings.TrimSpace(fl.Field().String()))) >= n
		})
	})
	return validate
}

// ValidateStruct 校验带 validate 标签的请求结构体，返回 ErrInvalidRequest。
func ValidateStruct(v any) error {
	err := requestValidator().Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return types.NewError(types.ErrInvalidRequest, err.Error()).WithHTTPStatus(400)
	}
	first := verrs[0]
	msg, ok := validationMessages[first.Field()]
	if first.Tag() == "gtefield" {
		msg, ok = "top_k must be greater than or equal to top_n", true
	}
	if !ok {
		msg = first.Field() + " is invalid"
	}
	return types.NewError(types.ErrInvalidRequest, msg).WithHTTPStatus(400).WithCause(err)
}

// Validate 校验请求参数。
func (r RetrievalRequest) Validate() error {
	return ValidateStruct(r)
}

// DefaultCollection 未指定集合时使用的集合名。
const DefaultCollection = "default"

// RetrievalDefaults 工具调用时构造检索请求的默认参数。
type RetrievalDefaults struct {
	CollectionName       string
	TopK                 int
	TopN                 int
	NumMultiquery        int
	RerankScoreThreshold float64
	UseRerank            bool
	ExtendResults        bool
}

// DefaultRetrievalDefaults returns the defaults used by the chat tools.
func DefaultRetrievalDefaults() RetrievalDefaults {
	return RetrievalDefaults{
		CollectionName:       DefaultCollection,
		TopK:                 200,
		TopN:                 5,
		RerankScoreThreshold: 0.1,
		UseRerank:            true,
		ExtendResults:        true,
	}
}

// Request builds a request for query restricted to permitted (nil = all documents).
func (d RetrievalDefaults) Request(query string, permitted []string) RetrievalRequest {
	return RetrievalRequest{
		Query:                query,
		CollectionName:       d.CollectionName,
		TopK:                 d.TopK,
		TopN:                 d.TopN,
		NumMultiquery:        d.NumMultiquery,
		RerankScoreThreshold: d.RerankScoreThreshold,
		UseRerank:            d.UseRerank,
		ExtendResults:        d.ExtendResults,
		PermittedDocumentIDs: permitted,
	}
}
