package router

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"pet-health-sync/internal/apperr"
	"pet-health-sync/internal/controller"
	"pet-health-sync/internal/domain/records"
	"pet-health-sync/internal/domain/schema"
	"pet-health-sync/internal/middleware"
	"pet-health-sync/internal/platform/logger"
	"pet-health-sync/internal/ports/auth"
)

type handlers struct {
	ctl       *controller.Controller
	log       logger.Logger
	now       func() time.Time
	maxUpload int64
}

type viewerResponse struct {
	UserID string      `json:"userId"`
	Role   schema.Role `json:"role"`
}

type sessionResponse struct {
	Viewer     viewerResponse `json:"viewer"`
	SeedBacked bool           `json:"seedBacked"`
	LoadedAt   *time.Time     `json:"loadedAt,omitempty"`
	Counts     map[string]int `json:"counts"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Entity string `json:"entity,omitempty"`
	Field  string `json:"field,omitempty"`
}

// getSession godoc
// @Summary  Sesión actual del store
// @Tags     session
// @Produce  json
// @Success  200 {object} sessionResponse
// @Router   /session [get]
func (h *handlers) getSession(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.claims(w, r); !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.sessionBody())
}

// startSession godoc
// @Summary  Carga el store para el usuario autenticado
// @Tags     session
// @Produce  json
// @Success  200 {object} sessionResponse
// @Failure  502 {object} errorResponse
// @Router   /session [post]
func (h *handlers) startSession(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.claims(w, r)
	if !ok {
		return
	}
	v := controller.Viewer{UserID: claims.UserID, Role: claims.Role}
	if err := h.ctl.Load(r.Context(), v); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.sessionBody())
}

func (h *handlers) refreshSession(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.session(w, r); !ok {
		return
	}
	if err := h.ctl.Refresh(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.sessionBody())
}

// listEntities godoc
// @Summary  Lista records de un tipo (opcionalmente por FK: ?fk=canineId&value=...)
// @Tags     entities
// @Produce  json
// @Param    type  path  string true  "Entity type (CanineProfile o canine_profiles)"
// @Param    fk    query string false "Campo FK"
// @Param    value query string false "Valor de la FK"
// @Router   /entities/{type} [get]
func (h *handlers) listEntities(w http.ResponseWriter, r *http.Request) {
	t, ok := h.entityType(w, r, "type")
	if !ok {
		return
	}
	if _, ok := h.session(w, r); !ok {
		return
	}

	st := h.ctl.Store()
	fk := strings.TrimSpace(r.URL.Query().Get("fk"))
	if fk == "" {
		writeJSON(w, http.StatusOK, toRecordList(st.GetAll(t)))
		return
	}

	// acepta el nombre del campo o la columna ("userId" o "user_id")
	fk = schema.CamelCase(fk)
	f, exists := st.Registry().MustEntity(t).Field(fk)
	if !exists || !f.IsRef() {
		h.writeError(w, apperr.Schema(string(t), fk, "not a foreign key"))
		return
	}
	writeJSON(w, http.StatusOK, toRecordList(st.GetByForeignKey(t, fk, r.URL.Query().Get("value"))))
}

// createEntity godoc
// @Summary  Crea un record (optimista: se confirma contra el backend antes de responder)
// @Tags     entities
// @Accept   json
// @Produce  json
// @Param    type path string true "Entity type"
// @Failure  409 {object} errorResponse
// @Failure  422 {object} errorResponse
// @Failure  502 {object} errorResponse
// @Router   /entities/{type} [post]
func (h *handlers) createEntity(w http.ResponseWriter, r *http.Request) {
	t, ok := h.entityType(w, r, "type")
	if !ok {
		return
	}
	if _, ok := h.session(w, r); !ok {
		return
	}
	body, ok := decodeFields(w, r)
	if !ok {
		return
	}

	rec, err := h.ctl.Create(r.Context(), t, body)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRecordResponse(rec))
}

func (h *handlers) getEntity(w http.ResponseWriter, r *http.Request) {
	t, ok := h.entityType(w, r, "type")
	if !ok {
		return
	}
	if _, ok := h.session(w, r); !ok {
		return
	}
	rec, found := h.ctl.Store().GetByID(t, chi.URLParam(r, "id"))
	if !found {
		h.writeError(w, controller.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, toRecordResponse(rec))
}

// updateEntity godoc
// @Summary  Patch parcial; null limpia un campo opcional
// @Tags     entities
// @Accept   json
// @Produce  json
// @Param    type path string true "Entity type"
// @Param    id   path string true "Record id"
// @Router   /entities/{type}/{id} [patch]
func (h *handlers) updateEntity(w http.ResponseWriter, r *http.Request) {
	t, ok := h.entityType(w, r, "type")
	if !ok {
		return
	}
	if _, ok := h.session(w, r); !ok {
		return
	}
	body, ok := decodeFields(w, r)
	if !ok {
		return
	}

	rec, err := h.ctl.Update(r.Context(), t, chi.URLParam(r, "id"), body)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordResponse(rec))
}

// deleteEntity godoc
// @Summary  Borra el record y sus dependientes (cascade / set null)
// @Tags     entities
// @Param    type path string true "Entity type"
// @Param    id   path string true "Record id"
// @Success  204
// @Router   /entities/{type}/{id} [delete]
func (h *handlers) deleteEntity(w http.ResponseWriter, r *http.Request) {
	t, ok := h.entityType(w, r, "type")
	if !ok {
		return
	}
	if _, ok := h.session(w, r); !ok {
		return
	}
	if err := h.ctl.Delete(r.Context(), t, chi.URLParam(r, "id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) listChildren(w http.ResponseWriter, r *http.Request) {
	t, ok := h.entityType(w, r, "type")
	if !ok {
		return
	}
	child, ok := h.entityType(w, r, "childType")
	if !ok {
		return
	}
	if _, ok := h.session(w, r); !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if _, found := h.ctl.Store().GetByID(t, id); !found {
		h.writeError(w, controller.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, toRecordList(h.ctl.Store().ChildrenOf(records.Key{Type: t, ID: id}, child)))
}

func (h *handlers) emergencyContacts(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.session(w, r); !ok {
		return
	}
	writeJSON(w, http.StatusOK, toRecordList(h.ctl.Store().EmergencyContacts()))
}

func (h *handlers) regularContacts(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.session(w, r); !ok {
		return
	}
	writeJSON(w, http.StatusOK, toRecordList(h.ctl.Store().RegularContacts()))
}

// canineAppointments: ?upcoming=true (Scheduled a futuro, ordenados) o ?status=Completed.
func (h *handlers) canineAppointments(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.session(w, r); !ok {
		return
	}
	st := h.ctl.Store()
	canineID := chi.URLParam(r, "canineID")
	if _, found := st.GetByID(schema.EntityCanineProfile, canineID); !found {
		h.writeError(w, controller.ErrNotFound)
		return
	}

	q := r.URL.Query()
	if strings.EqualFold(q.Get("upcoming"), "true") {
		writeJSON(w, http.StatusOK, toRecordList(st.UpcomingAppointments(canineID, h.now().UTC())))
		return
	}
	if s := strings.TrimSpace(q.Get("status")); s != "" {
		status, ok := parseStatus(s)
		if !ok {
			h.writeError(w, apperr.Schema(string(schema.EntityAppointment), "status", "unrecognized value "+s))
			return
		}
		writeJSON(w, http.StatusOK, toRecordList(st.AppointmentsByStatus(canineID, status)))
		return
	}
	writeJSON(w, http.StatusOK, toRecordList(st.ChildrenOf(records.Key{Type: schema.EntityCanineProfile, ID: canineID}, schema.EntityAppointment)))
}

// uploadMedia godoc
// @Summary  Sube una foto/video y crea el MediaItem
// @Tags     media
// @Accept   mpfd
// @Produce  json
// @Param    canineId formData string true  "Canine id"
// @Param    type     formData string true  "photo | video"
// @Param    caption  formData string false "Caption"
// @Param    file     formData file   true  "Blob"
// @Router   /media/upload [post]
func (h *handlers) uploadMedia(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.session(w, r); !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}

	mt := schema.MediaType(strings.ToLower(strings.TrimSpace(r.FormValue("type"))))
	if mt != schema.MediaPhoto && mt != schema.MediaVideo {
		h.writeError(w, apperr.Schema(string(schema.EntityMediaItem), "type", "must be photo or video"))
		return
	}
	canineID := strings.TrimSpace(r.FormValue("canineId"))

	file, hdr, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	rec, err := h.ctl.UploadMedia(r.Context(), controller.UploadInput{
		CanineID:    canineID,
		Type:        mt,
		Blob:        file,
		PathHint:    "canines/" + canineID + "/" + hdr.Filename,
		ContentType: hdr.Header.Get("Content-Type"),
		Caption:     r.FormValue("caption"),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRecordResponse(rec))
}

// -------------------------
// helpers
// -------------------------

func (h *handlers) claims(w http.ResponseWriter, r *http.Request) (auth.Claims, bool) {
	claims, ok := middleware.GetClaims(r.Context())
	if !ok || strings.TrimSpace(claims.UserID) == "" {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
		return auth.Claims{}, false
	}
	return claims, true
}

// session exige claims y que el store esté cargado para ese mismo usuario.
func (h *handlers) session(w http.ResponseWriter, r *http.Request) (controller.Session, bool) {
	claims, ok := h.claims(w, r)
	if !ok {
		return controller.Session{}, false
	}
	s := h.ctl.Session()
	if s.LoadedAt.IsZero() || s.Viewer.UserID != claims.UserID {
		writeJSON(w, http.StatusForbidden, errorResponse{Error: "no active session for this user; POST /session first"})
		return controller.Session{}, false
	}
	return s, true
}

func (h *handlers) entityType(w http.ResponseWriter, r *http.Request, param string) (schema.EntityType, bool) {
	raw := chi.URLParam(r, param)
	t, ok := h.ctl.Store().Registry().ParseEntityType(raw)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown entity type", Entity: raw})
		return "", false
	}
	return t, true
}

func (h *handlers) sessionBody() sessionResponse {
	s := h.ctl.Session()
	out := sessionResponse{
		Viewer:     viewerResponse{UserID: s.Viewer.UserID, Role: s.Viewer.Role},
		SeedBacked: s.SeedBacked,
		Counts:     map[string]int{},
	}
	if !s.LoadedAt.IsZero() {
		at := s.LoadedAt
		out.LoadedAt = &at
	}
	st := h.ctl.Store()
	for _, t := range st.Registry().Types() {
		out.Counts[string(t)] = st.Count(t)
	}
	return out
}

// writeError traduce errores del dominio a status HTTP.
func (h *handlers) writeError(w http.ResponseWriter, err error) {
	var (
		sv *apperr.SchemaViolationError
		cv *apperr.ConstraintViolationError
	)
	switch {
	case errors.As(err, &cv):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), Entity: cv.Entity, Field: cv.Field})
	case errors.As(err, &sv):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error(), Entity: sv.Entity, Field: sv.Field})
	case errors.Is(err, apperr.ErrConstraintViolation):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, apperr.ErrSchemaViolation):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
	case errors.Is(err, apperr.ErrRemoteFailure):
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
	case errors.Is(err, controller.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
	case errors.Is(err, controller.ErrStorageNotConfigured):
		writeJSON(w, http.StatusNotImplemented, errorResponse{Error: err.Error()})
	default:
		h.log.Error("unhandled error", map[string]any{"error": err})
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func decodeFields(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	var body map[string]any
	if err := dec.Decode(&body); err != nil || body == nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json"})
		return nil, false
	}
	return body, true
}

func parseStatus(s string) (schema.AppointmentStatus, bool) {
	for _, st := range []schema.AppointmentStatus{schema.AppointmentScheduled, schema.AppointmentCompleted, schema.AppointmentCancelled} {
		if strings.EqualFold(string(st), s) {
			return st, true
		}
	}
	return "", false
}

// toRecordResponse aplana el record: campos del dominio + id/createdAt/updatedAt.
func toRecordResponse(rec records.Record) map[string]any {
	out := make(map[string]any, len(rec.Fields)+3)
	for k, v := range rec.Fields {
		out[k] = v
	}
	out["id"] = rec.ID
	out["createdAt"] = rec.CreatedAt
	out["updatedAt"] = rec.UpdatedAt
	return out
}

func toRecordList(recs []records.Record) []map[string]any {
	out := make([]map[string]any, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toRecordResponse(rec))
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
