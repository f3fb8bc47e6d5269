package handlers

import (
	"net/http"

	"github.com/BaSui01/landau/api"
	"github.com/BaSui01/landau/rag"
	"go.uber.org/zap"
)

// RetrievalHandler 脚本后端接口：检索、目录、小节、公式
type RetrievalHandler struct {
	searcher rag.Searcher
	library  *rag.Library
	logger   *zap.Logger
}

// NewRetrievalHandler 创建脚本后端处理器
func NewRetrievalHandler(searcher rag.Searcher, library *rag.Library, logger *zap.Logger) *RetrievalHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetrievalHandler{
		searcher: searcher,
		library:  library,
		logger:   logger.With(zap.String("handler", "retrieval")),
	}
}

// Register 注册路由
func (h *RetrievalHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/query", h.HandleQuery)
	mux.HandleFunc("POST /api/v1/toc", h.HandleTOC)
	mux.HandleFunc("POST /api/v1/section", h.HandleSection)
	mux.HandleFunc("POST /api/v1/formula", h.HandleFormula)
}

// HandleQuery 向量检索（可选重排序与邻居扩展）
func (h *RetrievalHandler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	req := api.DefaultQueryRequest()
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	docs, err := h.searcher.Search(r.Context(), req)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	WriteJSON(w, http.StatusOK, api.QueryResponse{
		Queries:   []string{req.Query},
		Documents: docs,
	})
}

// HandleTOC 返回文档目录
func (h *RetrievalHandler) HandleTOC(w http.ResponseWriter, r *http.Request) {
	req := api.TOCRequest{CollectionName: rag.DefaultCollection}
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if err := rag.ValidateStruct(req); err != nil {
		WriteError(w, err, h.logger)
		return
	}

	toc, err := h.library.TableOfContents(r.Context(), req.CollectionName, req.DocumentID)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	WriteJSON(w, http.StatusOK, api.TOCResponse{
		CollectionName: req.CollectionName,
		DocumentID:     req.DocumentID,
		TOC:            toc,
	})
}

// HandleSection 返回完整小节
func (h *RetrievalHandler) HandleSection(w http.ResponseWriter, r *http.Request) {
	req := api.SectionRequest{CollectionName: rag.DefaultCollection}
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if err := rag.ValidateStruct(req); err != nil {
		WriteError(w, err, h.logger)
		return
	}

	section, err := h.library.Section(r.Context(), req.CollectionName, req.DocumentID, req.ChapterID, req.SectionID)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, section)
}

// HandleFormula 返回公式所在段落
func (h *RetrievalHandler) HandleFormula(w http.ResponseWriter, r *http.Request) {
	req := api.FormulaRequest{CollectionName: rag.DefaultCollection}
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if err := rag.ValidateStruct(req); err != nil {
		WriteError(w, err, h.logger)
		return
	}

	formula, err := h.library.Formula(r.Context(), req.CollectionName, req.DocumentID, req.FormulaID)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, formula)
}
