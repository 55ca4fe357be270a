package stubserver

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maintboard/maintboard-go/workorders"
)

type workOrderRepo struct {
	mu     sync.RWMutex
	orders map[string][]workorders.WorkOrder // tenant schema -> orders
}

func newWorkOrderRepo() *workOrderRepo {
	return &workOrderRepo{orders: make(map[string][]workorders.WorkOrder)}
}

func (r *workOrderRepo) seed() {
	now := time.Now().UTC()
	r.orders["acme"] = []workorders.WorkOrder{
		{ID: "wo-100", Title: "Replace HVAC filter, floor 2", Status: "open", Priority: "medium", AssetID: "hvac-12", CreatedAt: now.Add(-48 * time.Hour)},
		{ID: "wo-101", Title: "Conveyor belt misalignment", Status: "in_progress", Priority: "high", AssetID: "conv-3", AssignedTo: "u-1", CreatedAt: now.Add(-4 * time.Hour)},
	}
	r.orders["northwind"] = []workorders.WorkOrder{
		{ID: "wo-200", Title: "Quarterly boiler inspection", Status: "open", Priority: "low", AssetID: "boiler-1", CreatedAt: now.Add(-2 * time.Hour)},
	}
}

func (r *workOrderRepo) list(tenant string) []workorders.WorkOrder {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]workorders.WorkOrder(nil), r.orders[tenant]...)
}

func (r *workOrderRepo) get(tenant, id string) (workorders.WorkOrder, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, order := range r.orders[tenant] {
		if order.ID == id {
			return order, true
		}
	}
	return workorders.WorkOrder{}, false
}

func (r *workOrderRepo) add(tenant string, order workorders.WorkOrder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[tenant] = append(r.orders[tenant], order)
}

// ListWorkOrdersHandler returns the tenant's work orders.
func (s *Server) ListWorkOrdersHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := s.sessionUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "no active session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"results": s.workOrders.list(user.Tenant.SchemaName),
	})
}

// GetWorkOrderHandler returns one work order.
func (s *Server) GetWorkOrderHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := s.sessionUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "no active session")
		return
	}
	order, ok := s.workOrders.get(user.Tenant.SchemaName, r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "work order not found")
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// CreateWorkOrderHandler opens a work order for the tenant.
func (s *Server) CreateWorkOrderHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := s.sessionUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "no active session")
		return
	}
	var req workorders.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	order := workorders.WorkOrder{
		ID:          "wo-" + uuid.New().String()[:8],
		Title:       req.Title,
		Description: req.Description,
		Status:      "open",
		Priority:    req.Priority,
		AssetID:     req.AssetID,
		CreatedAt:   time.Now().UTC(),
	}
	s.workOrders.add(user.Tenant.SchemaName, order)
	writeJSON(w, http.StatusCreated, order)
}

type stubJob struct {
	ID        string
	Tenant    string
	Prompt    string
	pollsLeft int
}

type jobRepo struct {
	mu   sync.Mutex
	jobs map[string]*stubJob
}

func newJobRepo() *jobRepo {
	return &jobRepo{jobs: make(map[string]*stubJob)}
}

// SubmitJobHandler accepts an assistant job that "completes" after a
// few status polls.
func (s *Server) SubmitJobHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := s.sessionUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "no active session")
		return
	}
	var body struct {
		Prompt string `json:"prompt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Prompt == "" {
		writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	job := &stubJob{
		ID:        "job-" + uuid.New().String()[:8],
		Tenant:    user.Tenant.SchemaName,
		Prompt:    body.Prompt,
		pollsLeft: 2,
	}
	s.jobs.mu.Lock()
	s.jobs.jobs[job.ID] = job
	s.jobs.mu.Unlock()

	writeJSON(w, http.StatusAccepted, map[string]string{"id": job.ID, "status": "pending"})
}

// JobStatusHandler reports job progress.
func (s *Server) JobStatusHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := s.sessionUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "no active session")
		return
	}

	s.jobs.mu.Lock()
	defer s.jobs.mu.Unlock()
	job, ok := s.jobs.jobs[r.PathValue("id")]
	if !ok || job.Tenant != user.Tenant.SchemaName {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	if job.pollsLeft > 0 {
		job.pollsLeft--
		writeJSON(w, http.StatusOK, map[string]string{"id": job.ID, "status": "running"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":     job.ID,
		"status": "succeeded",
		"result": map[string]string{"summary": "Suggested checklist for: " + job.Prompt},
	})
}
