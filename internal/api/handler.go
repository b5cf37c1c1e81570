package api

import (
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"kickchoice/adapters/excel"
	"kickchoice/app"
	"kickchoice/domain/core"
	"kickchoice/internal/dataset"
	"kickchoice/internal/errors"
	"kickchoice/internal/report"
	"kickchoice/ports"

	"github.com/gin-gonic/gin"
)

// EstimationHandler serves the estimation JSON API
type EstimationHandler struct {
	service *app.EstimationService
	// dataDir roots the files an estimate request may name; empty disables
	// file requests.
	dataDir string
	writer  *excel.ResultWriter
}

// NewEstimationHandler creates a new estimation handler
func NewEstimationHandler(service *app.EstimationService, dataDir string) *EstimationHandler {
	return &EstimationHandler{
		service: service,
		dataDir: dataDir,
		writer:  excel.NewResultWriter(),
	}
}

// Health reports liveness
func (h *EstimationHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": app.CodeVersion})
}

// Models lists the model catalogue
func (h *EstimationHandler) Models(c *gin.Context) {
	var out []ModelDTO
	for _, v := range h.service.Models() {
		spec, err := v.Specification()
		if err != nil {
			respondError(c, err)
			return
		}
		out = append(out, ModelDTO{
			Name:        v.Name,
			Description: v.Description,
			Panel:       v.Panel,
			Covariates:  spec.Covariates(),
			Definition:  spec.Definition(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"models": out})
}

// Estimate runs one estimation synchronously
func (h *EstimationHandler) Estimate(c *gin.Context) {
	var req EstimateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error(), "code": errors.CodeInvalidInput})
		return
	}

	table, source, err := h.loadTable(req)
	if err != nil {
		respondError(c, err)
		return
	}
	if req.Recode {
		var prep *dataset.PrepReport
		table, prep = dataset.ShotSheetRecoder().Apply(table)
		log.Printf("[API] recoded %s: %d of %d rows kept, dropped %v", source, prep.OutputRows, prep.InputRows, prep.Dropped)
	}

	r, err := h.service.Estimate(c.Request.Context(), app.EstimateRequest{
		Model:         req.Model,
		Definition:    req.Definition,
		Panel:         req.Panel,
		Table:         table,
		DataSource:    source,
		DrawMethod:    req.DrawMethod,
		Draws:         req.Draws,
		Seed:          req.Seed,
		MaxIterations: req.MaxIterations,
	})
	if err != nil {
		if r != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error(), "code": errors.GetCode(err), "run": NewRunDTO(r)})
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, NewRunDTO(r))
}

func (h *EstimationHandler) loadTable(req EstimateRequest) (*dataset.RawTable, string, error) {
	opts := excel.ReaderOptions{Sheet: req.Sheet, SkipRows: req.SkipRows}
	switch {
	case req.CSV != "" && req.File != "":
		return nil, "", errors.InvalidInput("give either csv or file, not both")
	case req.CSV != "":
		t, err := excel.ReadCSV(strings.NewReader(req.CSV), opts)
		return t, "inline", err
	case req.File != "":
		if h.dataDir == "" {
			return nil, "", errors.InvalidInput("file requests are disabled")
		}
		path := filepath.Join(h.dataDir, filepath.Clean("/"+req.File))
		t, err := excel.NewDataReader(path, opts).ReadTable()
		return t, req.File, err
	}
	return nil, "", errors.InvalidInput("request has no data: set csv or file")
}

// ListRuns returns stored runs, newest first
func (h *EstimationHandler) ListRuns(c *gin.Context) {
	filters := ports.RunFilters{ModelName: c.Query("model")}
	var err error
	if filters.Limit, err = queryInt(c, "limit", 50); err != nil {
		respondError(c, err)
		return
	}
	if filters.Offset, err = queryInt(c, "offset", 0); err != nil {
		respondError(c, err)
		return
	}

	summaries, err := h.service.List(c.Request.Context(), filters)
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]SummaryDTO, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, NewSummaryDTO(s))
	}
	c.JSON(http.StatusOK, gin.H{"runs": out, "count": len(out)})
}

// GetRun returns one run with its result
func (h *EstimationHandler) GetRun(c *gin.Context) {
	id, err := parseRunID(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	r, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewRunDTO(r))
}

// RunReport renders a completed run as markdown, html (?format=html) or an
// xlsx workbook (?format=xlsx)
func (h *EstimationHandler) RunReport(c *gin.Context) {
	id, err := parseRunID(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	r, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if r.Result == nil {
		respondError(c, errors.Newf(errors.CodeInvalidInput, "run %s has no result (status %s)", id, r.Status))
		return
	}

	switch c.DefaultQuery("format", "markdown") {
	case "markdown", "md":
		c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(report.Markdown(r.Result)))
	case "html":
		c.Data(http.StatusOK, "text/html; charset=utf-8", report.ResultHTML(r.Result))
	case "xlsx":
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", r.Result.ModelName+".xlsx"))
		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Status(http.StatusOK)
		if err := h.writer.WriteTo(c.Writer, r.Result); err != nil {
			log.Printf("[API] failed to write workbook for run %s: %v", id, err)
		}
	default:
		respondError(c, errors.InvalidInput("format must be markdown, html or xlsx"))
	}
}

// Compare compares completed runs given as ?ids=a,b,...
func (h *EstimationHandler) Compare(c *gin.Context) {
	var ids []core.RunID
	for _, raw := range strings.Split(c.Query("ids"), ",") {
		if raw = strings.TrimSpace(raw); raw == "" {
			continue
		}
		id, err := parseRunID(raw)
		if err != nil {
			respondError(c, err)
			return
		}
		ids = append(ids, id)
	}

	cmp, err := h.service.Compare(c.Request.Context(), ids)
	if err != nil {
		respondError(c, err)
		return
	}

	type row struct {
		Model         string `json:"model"`
		NumParameters int    `json:"n_parameters"`
		LogLikelihood Number `json:"log_likelihood"`
		AIC           Number `json:"aic"`
		BIC           Number `json:"bic"`
		AICRank       int    `json:"aic_rank"`
		BICRank       int    `json:"bic_rank"`
	}
	type test struct {
		Restricted string `json:"restricted"`
		General    string `json:"general"`
		Statistic  Number `json:"statistic"`
		DF         int    `json:"df"`
		PValue     Number `json:"p_value"`
	}
	rows := make([]row, 0, len(cmp.Rows))
	for _, r := range cmp.Rows {
		rows = append(rows, row{r.Model, r.NumParameters, Number(r.LogLikelihood), Number(r.AIC), Number(r.BIC), r.AICRank, r.BICRank})
	}
	tests := make([]test, 0, len(cmp.Tests))
	for _, t := range cmp.Tests {
		tests = append(tests, test{t.Restricted, t.General, Number(t.Statistic), t.DF, Number(t.PValue)})
	}
	c.JSON(http.StatusOK, gin.H{"models": rows, "tests": tests, "best": cmp.Best()})
}

func parseRunID(raw string) (core.RunID, error) {
	id, err := core.ParseRunID(raw)
	if err != nil {
		return "", errors.InvalidInput(err.Error())
	}
	return id, nil
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, errors.InvalidInput(fmt.Sprintf("%s must be a non-negative integer", key))
	}
	return v, nil
}

func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Printf("[API] %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(status, gin.H{"error": err.Error(), "code": errors.GetCode(err)})
}

func statusFor(err error) int {
	switch errors.GetCode(err) {
	case errors.CodeNotFound:
		return http.StatusNotFound
	case errors.CodeInvalidInput, errors.CodeValidationError, errors.CodeDuplicateParameter,
		errors.CodeInvalidBounds, errors.CodeUnresolvedReference, errors.CodeNotIdentified:
		return http.StatusBadRequest
	case errors.CodeDataInvalid, errors.CodeNoAvailableAlternatives, errors.CodeChosenNotAvailable,
		errors.CodeNonFiniteLikelihood:
		return http.StatusUnprocessableEntity
	case errors.CodeCanceled:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
