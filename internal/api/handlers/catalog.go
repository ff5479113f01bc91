// catalog.go — обработчики каталога курсов и ресурсов.
// Публичные списки содержат только опубликованные позиции,
// административные — все.
package handlers

import (
	"net/http"

	"github.com/adhikarisumit/lms-module/internal/domain/model"
	"github.com/adhikarisumit/lms-module/internal/service"
)

// ListCourses — GET /api/v1/courses.
func (h *APIHandler) ListCourses(w http.ResponseWriter, r *http.Request) {
	h.listCourses(w, r, false)
}

// ListAllCourses — GET /api/v1/admin/courses.
func (h *APIHandler) ListAllCourses(w http.ResponseWriter, r *http.Request) {
	h.listCourses(w, r, true)
}

func (h *APIHandler) listCourses(w http.ResponseWriter, r *http.Request, includeUnpublished bool) {
	limit, offset, ok := pagination(w, r)
	if !ok {
		return
	}

	courses, total, err := h.catalog.ListCourses(r.Context(), includeUnpublished, limit, offset)
	if err != nil {
		h.writeError(w, r, err, "Ошибка получения курсов")
		return
	}
	writeJSON(w, http.StatusOK, newList(courses, total, limit, offset, mapCourse))
}

// ListResources — GET /api/v1/resources.
func (h *APIHandler) ListResources(w http.ResponseWriter, r *http.Request) {
	h.listResources(w, r, false)
}

// ListAllResources — GET /api/v1/admin/resources.
func (h *APIHandler) ListAllResources(w http.ResponseWriter, r *http.Request) {
	h.listResources(w, r, true)
}

func (h *APIHandler) listResources(w http.ResponseWriter, r *http.Request, includeUnpublished bool) {
	limit, offset, ok := pagination(w, r)
	if !ok {
		return
	}

	resources, total, err := h.catalog.ListResources(r.Context(), includeUnpublished, limit, offset)
	if err != nil {
		h.writeError(w, r, err, "Ошибка получения ресурсов")
		return
	}
	writeJSON(w, http.StatusOK, newList(resources, total, limit, offset, mapResource))
}

// GetCourse — GET /api/v1/courses/{id}. Только опубликованные курсы.
func (h *APIHandler) GetCourse(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "Курс")
	if !ok {
		return
	}

	course, err := h.catalog.GetCourse(r.Context(), id, false)
	if err != nil {
		h.writeError(w, r, err, "Ошибка получения курса")
		return
	}
	writeJSON(w, http.StatusOK, mapCourse(course))
}

// GetResource — GET /api/v1/resources/{id}. Только опубликованные ресурсы.
func (h *APIHandler) GetResource(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "Ресурс")
	if !ok {
		return
	}

	res, err := h.catalog.GetResource(r.Context(), id, false)
	if err != nil {
		h.writeError(w, r, err, "Ошибка получения ресурса")
		return
	}
	writeJSON(w, http.StatusOK, mapResource(res))
}

// CreateCourse — POST /api/v1/admin/courses.
func (h *APIHandler) CreateCourse(w http.ResponseWriter, r *http.Request) {
	identity := h.identity(w, r)
	if identity == nil {
		return
	}

	var req courseCreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	course, err := h.catalog.CreateCourse(r.Context(), identity, service.CourseInput{
		Slug:                 req.Slug,
		Title:                req.Title,
		Price:                req.Price,
		Currency:             req.Currency,
		AccessDurationMonths: req.AccessDurationMonths,
		Published:            req.Published,
	})
	if err != nil {
		h.writeError(w, r, err, "Ошибка создания курса")
		return
	}
	writeJSON(w, http.StatusCreated, mapCourse(course))
}

// CreateResource — POST /api/v1/admin/resources.
func (h *APIHandler) CreateResource(w http.ResponseWriter, r *http.Request) {
	identity := h.identity(w, r)
	if identity == nil {
		return
	}

	var req resourceCreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.catalog.CreateResource(r.Context(), identity, service.ResourceInput{
		Slug:      req.Slug,
		Title:     req.Title,
		Price:     req.Price,
		Currency:  req.Currency,
		Published: req.Published,
	})
	if err != nil {
		h.writeError(w, r, err, "Ошибка создания ресурса")
		return
	}
	writeJSON(w, http.StatusCreated, mapResource(res))
}

// SetCoursePublished — PUT /api/v1/admin/courses/{id}/published.
func (h *APIHandler) SetCoursePublished(w http.ResponseWriter, r *http.Request) {
	h.setPublished(w, r, model.ItemTypeCourse, "Курс")
}

// SetResourcePublished — PUT /api/v1/admin/resources/{id}/published.
func (h *APIHandler) SetResourcePublished(w http.ResponseWriter, r *http.Request) {
	h.setPublished(w, r, model.ItemTypeResource, "Ресурс")
}

func (h *APIHandler) setPublished(w http.ResponseWriter, r *http.Request, itemType, what string) {
	identity := h.identity(w, r)
	if identity == nil {
		return
	}
	id, ok := pathID(w, r, what)
	if !ok {
		return
	}

	var req publishRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.catalog.SetPublished(r.Context(), identity, itemType, id, req.Published); err != nil {
		h.writeError(w, r, err, "Ошибка изменения публикации")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
