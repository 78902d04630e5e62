// Package api exposes HTTP handlers for the sales dashboard backend.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"example.com/salesops/internal/auth"
	"example.com/salesops/internal/board"
	"example.com/salesops/internal/domain"
	"example.com/salesops/internal/query"
	"example.com/salesops/internal/stage"
	"example.com/salesops/internal/taxonomy"
)

// Handler coordinates HTTP requests with the domain services.
type Handler struct {
	deals    *domain.Service
	stages   *stage.Service
	composer *domain.Composer
	boards   *BoardRegistry
}

// NewHandler builds a Handler.
func NewHandler(deals *domain.Service, stages *stage.Service, composer *domain.Composer, boards *BoardRegistry) *Handler {
	return &Handler{deals: deals, stages: stages, composer: composer, boards: boards}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/deals", h.dealCollection)
	mux.HandleFunc("/v1/deals/", h.dealByID)
	mux.HandleFunc("/v1/deals/metrics", h.dealMetrics)
	mux.HandleFunc("/v1/deals/channels", h.dealChannels)
	mux.HandleFunc("/v1/tasks", h.taskCollection)
	mux.HandleFunc("/v1/tasks/", h.taskByID)
	mux.HandleFunc("/v1/board/deals", h.dealBoard)
	mux.HandleFunc("/v1/board/deals/move", h.moveDeal)
	mux.HandleFunc("/v1/board/tasks", h.taskBoard)
	mux.HandleFunc("/v1/board/tasks/move", h.moveTask)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) dealCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createDeal(w, r)
	case http.MethodGet:
		h.listDeals(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) dealByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/deals/")
	if rest == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing deal id")
		return
	}

	if id, ok := strings.CutSuffix(rest, "/stage"); ok {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
			return
		}
		h.transitionDeal(w, r, id)
		return
	}

	if strings.Contains(rest, "/") {
		writeError(w, http.StatusNotFound, "not_found", "unknown resource")
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.getDeal(w, r, rest)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) createDeal(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeDealsWrite)
	if !ok {
		return
	}

	var req CreateDealRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	deal, err := h.deals.CreateDeal(r.Context(), domain.CreateDealInput{
		TenantID:   claims.TenantID,
		Title:      req.Title,
		Value:      req.Value,
		Stage:      domain.Stage(req.Stage),
		Priority:   domain.Priority(req.Priority),
		Channel:    req.Channel,
		AssignedTo: req.AssignedTo,
	})
	if err != nil {
		writeFailure(w, err)
		return
	}

	_ = h.boards.RefreshDealBoard(r.Context(), claims.TenantID)
	writeJSON(w, http.StatusCreated, toDealView(*deal, time.Now().UTC()))
}

func (h *Handler) getDeal(w http.ResponseWriter, r *http.Request, id string) {
	claims, ok := requireScope(w, r, auth.ScopeDealsRead, auth.ScopeDealsWrite)
	if !ok {
		return
	}

	deal, err := h.deals.GetDeal(r.Context(), claims.TenantID, id)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDealView(*deal, time.Now().UTC()))
}

func (h *Handler) listDeals(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeDealsRead, auth.ScopeDealsWrite)
	if !ok {
		return
	}

	filters, sortSpec, err := parseQuery(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}
	filters.Columns = query.ExpandStageGroups(filters.Columns)

	deals, err := h.deals.ListDeals(r.Context(), listScope(claims))
	if err != nil {
		writeFailure(w, err)
		return
	}

	matched := query.Apply(deals, query.DealFields, filters, sortSpec)
	now := time.Now().UTC()
	items := make([]DealView, 0, len(matched))
	for _, d := range matched {
		items = append(items, toDealView(d, now))
	}
	writeJSON(w, http.StatusOK, ListDealsResponse{Items: items, Total: len(items)})
}

func (h *Handler) transitionDeal(w http.ResponseWriter, r *http.Request, id string) {
	claims, ok := requireScope(w, r, auth.ScopeDealsWrite)
	if !ok {
		return
	}

	var req TransitionDealRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	deal, err := h.stages.TransitionDeal(r.Context(), claims.TenantID, id, stage.Input{
		Target:     domain.Stage(req.Stage),
		ClosedDate: req.ClosedDate,
		LostDate:   req.LostDate,
		LossReason: req.LossReason,
		Now:        time.Now().UTC(),
	})
	if err != nil {
		writeFailure(w, err)
		return
	}

	_ = h.boards.RefreshDealBoard(r.Context(), claims.TenantID)
	writeJSON(w, http.StatusOK, toDealView(*deal, time.Now().UTC()))
}

func (h *Handler) dealMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := requireScope(w, r, auth.ScopeDealsRead, auth.ScopeDealsWrite)
	if !ok {
		return
	}

	// Admins may aggregate over any assignee; everyone else gets their own
	// numbers no matter what the query string says.
	scope := listScope(claims)
	if scope.AssignedTo == "" {
		scope.AssignedTo = r.URL.Query().Get("assigned_to")
	}
	metrics, err := h.stages.DealMetrics(r.Context(), scope, time.Now().UTC())
	if err != nil {
		writeFailure(w, err)
		return
	}

	writeJSON(w, http.StatusOK, DealMetricsResponse{
		PipelineValue:   metrics.PipelineValue,
		WonValue:        metrics.WonValue,
		LostValue:       metrics.LostValue,
		AverageDealSize: metrics.AverageDealSize,
		OpenCount:       metrics.OpenCount,
		WonCount:        metrics.WonCount,
		LostCount:       metrics.LostCount,
		StaleCount:      metrics.StaleCount,
	})
}

func (h *Handler) dealChannels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := requireScope(w, r, auth.ScopeDealsRead, auth.ScopeDealsWrite)
	if !ok {
		return
	}

	deals, err := h.deals.ListDeals(r.Context(), listScope(claims))
	if err != nil {
		writeFailure(w, err)
		return
	}

	fields := make([]query.Fields, 0, len(deals))
	for _, d := range deals {
		fields = append(fields, query.DealFields(d))
	}
	writeJSON(w, http.StatusOK, ChannelsResponse{Channels: query.Channels(fields)})
}

func (h *Handler) taskCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createTask(w, r)
	case http.MethodGet:
		h.listTasks(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) taskByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/tasks/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing task id")
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.getTask(w, r, id)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) createTask(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeTasksWrite)
	if !ok {
		return
	}

	var req CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	kind := taxonomy.KindActivity
	if req.Kind == "calendar" {
		kind = taxonomy.KindCalendar
	}

	task, err := h.composer.ComposeTask(r.Context(), domain.ComposeTaskInput{
		TenantID:    claims.TenantID,
		Title:       req.Title,
		Description: req.Description,
		RawType:     req.Type,
		Kind:        kind,
		Status:      domain.TaskStatus(req.Status),
		Priority:    domain.Priority(req.Priority),
		Due:         req.Due,
		DealID:      req.DealID,
		CompanyID:   req.CompanyID,
		ContactID:   req.ContactID,
		AssignedTo:  req.AssignedTo,
	})
	if err != nil {
		writeFailure(w, err)
		return
	}

	_ = h.boards.RefreshTaskBoard(r.Context(), claims.TenantID)
	writeJSON(w, http.StatusCreated, toTaskView(*task))
}

func (h *Handler) getTask(w http.ResponseWriter, r *http.Request, id string) {
	claims, ok := requireScope(w, r, auth.ScopeTasksRead, auth.ScopeTasksWrite)
	if !ok {
		return
	}

	task, err := h.composer.GetTask(r.Context(), claims.TenantID, id)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTaskView(*task))
}

func (h *Handler) listTasks(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeTasksRead, auth.ScopeTasksWrite)
	if !ok {
		return
	}

	filters, sortSpec, err := parseQuery(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	filters.Columns = query.ExpandStatusGroups(filters.Columns)

	tasks, err := h.composer.ListTasks(r.Context(), listScope(claims))
	if err != nil {
		writeFailure(w, err)
		return
	}

	matched := query.Apply(tasks, query.TaskFields, filters, sortSpec)
	items := make([]TaskView, 0, len(matched))
	for _, t := range matched {
		items = append(items, toTaskView(t))
	}
	writeJSON(w, http.StatusOK, ListTasksResponse{Items: items, Total: len(items)})
}

func (h *Handler) dealBoard(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeDealsRead, auth.ScopeDealsWrite)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		engine, err := h.boards.DealBoard(r.Context(), listScope(claims))
		if err != nil {
			writeFailure(w, err)
			return
		}
		now := time.Now().UTC()
		columns := make(map[string][]DealView)
		for col, deals := range engine.Columns() {
			views := make([]DealView, 0, len(deals))
			for _, d := range deals {
				views = append(views, toDealView(d, now))
			}
			columns[col] = views
		}
		writeJSON(w, http.StatusOK, DealBoardResponse{Columns: columns})
	case http.MethodDelete:
		h.boards.CloseDealBoard(listScope(claims))
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) moveDeal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := requireScope(w, r, auth.ScopeDealsWrite)
	if !ok {
		return
	}

	var req MoveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	engine, err := h.boards.DealBoard(r.Context(), listScope(claims))
	if err != nil {
		writeFailure(w, err)
		return
	}

	snapshot, err := engine.Drop(withConfirm(r.Context(), req), req.DraggedID, req.Target)
	now := time.Now().UTC()
	items := make([]DealView, 0, len(snapshot))
	for _, d := range snapshot {
		items = append(items, toDealView(d, now))
	}
	if err != nil {
		if errors.Is(err, board.ErrConfirmationRequired) {
			writeError(w, http.StatusUnprocessableEntity, "confirmation_required", "target column requires closing metadata")
			return
		}
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ListDealsResponse{Items: items, Total: len(items)})
}

func (h *Handler) taskBoard(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeTasksRead, auth.ScopeTasksWrite)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		engine, err := h.boards.TaskBoard(r.Context(), listScope(claims))
		if err != nil {
			writeFailure(w, err)
			return
		}
		columns := make(map[string][]TaskView)
		for col, tasks := range engine.Columns() {
			views := make([]TaskView, 0, len(tasks))
			for _, t := range tasks {
				views = append(views, toTaskView(t))
			}
			columns[col] = views
		}
		writeJSON(w, http.StatusOK, TaskBoardResponse{Columns: columns})
	case http.MethodDelete:
		h.boards.CloseTaskBoard(listScope(claims))
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) moveTask(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := requireScope(w, r, auth.ScopeTasksWrite)
	if !ok {
		return
	}

	var req MoveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	engine, err := h.boards.TaskBoard(r.Context(), listScope(claims))
	if err != nil {
		writeFailure(w, err)
		return
	}

	snapshot, err := engine.Drop(r.Context(), req.DraggedID, req.Target)
	items := make([]TaskView, 0, len(snapshot))
	for _, t := range snapshot {
		items = append(items, toTaskView(t))
	}
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ListTasksResponse{Items: items, Total: len(items)})
}

// listScope builds the repository scope for a caller. Without the admin
// scope a caller only sees records assigned to them.
func listScope(claims *auth.Claims) domain.ListScope {
	scope := domain.ListScope{TenantID: claims.TenantID}
	if !claims.HasScope(auth.ScopeDealsAdmin) {
		scope.AssignedTo = claims.Subject
	}
	return scope
}

// requireScope loads claims from the request context and enforces that at
// least one of the provided scopes is present. The admin scope always
// qualifies.
func requireScope(w http.ResponseWriter, r *http.Request, scopes ...string) (*auth.Claims, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	if claims.HasScope(auth.ScopeDealsAdmin) {
		return claims, true
	}
	for _, scope := range scopes {
		if claims.HasScope(scope) {
			return claims, true
		}
	}
	writeError(w, http.StatusForbidden, "forbidden", "scope "+strings.Join(scopes, " or ")+" required")
	return nil, false
}

func parseQuery(values url.Values) (query.Filters, query.Sort, error) {
	filters := query.Filters{
		Search:     values.Get("search"),
		Channel:    values.Get("channel"),
		AssignedTo: values.Get("assigned_to"),
	}

	if raw := values.Get("columns"); raw != "" {
		for _, col := range strings.Split(raw, ",") {
			if trimmed := strings.TrimSpace(col); trimmed != "" {
				filters.Columns = append(filters.Columns, trimmed)
			}
		}
	}

	from, err := parseDate(values.Get("from"))
	if err != nil {
		return query.Filters{}, query.Sort{}, errors.New("invalid from date")
	}
	filters.From = from

	to, err := parseDate(values.Get("to"))
	if err != nil {
		return query.Filters{}, query.Sort{}, errors.New("invalid to date")
	}
	filters.To = to

	sortSpec := query.Sort{Descending: values.Get("order") == "desc"}
	switch field := query.SortField(values.Get("sort_by")); field {
	case "", query.SortByValue, query.SortByDue, query.SortByCreated, query.SortByUpdated, query.SortByTitle:
		sortSpec.Field = field
	default:
		return query.Filters{}, query.Sort{}, errors.New("unknown sort field")
	}

	return filters, sortSpec, nil
}

func parseDate(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
		return &parsed, nil
	}
	parsed, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}
