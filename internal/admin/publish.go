package admin

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// RuleDoc is free-text documentation attached to a rule pattern, for
// operators annotating why a rule exists.
type RuleDoc struct {
	Pattern     string `json:"pattern"`
	Description string `json:"description"`
	PublishedAt string `json:"published_at"`
	UpdatedAt   string `json:"updated_at"`
}

// DocStore manages rule documentation in memory.
type DocStore struct {
	mu   sync.RWMutex
	docs map[string]*RuleDoc // pattern → doc
}

// NewDocStore creates a new documentation store.
func NewDocStore() *DocStore {
	return &DocStore{
		docs: make(map[string]*RuleDoc),
	}
}

// Get returns the documentation for a rule pattern.
func (ds *DocStore) Get(pattern string) (*RuleDoc, bool) {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	doc, ok := ds.docs[pattern]
	return doc, ok
}

// Set stores documentation for a rule pattern.
func (ds *DocStore) Set(doc *RuleDoc) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	ds.docs[doc.Pattern] = doc
}

// Delete removes documentation for a rule pattern.
func (ds *DocStore) Delete(pattern string) bool {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if _, ok := ds.docs[pattern]; !ok {
		return false
	}
	delete(ds.docs, pattern)
	return true
}

// List returns all stored documentation.
func (ds *DocStore) List() []*RuleDoc {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	result := make([]*RuleDoc, 0, len(ds.docs))
	for _, doc := range ds.docs {
		result = append(result, doc)
	}
	return result
}

// publishDoc handles POST /api/v1/docs to publish rule documentation.
func (s *Server) publishDoc(w http.ResponseWriter, r *http.Request) {
	var doc RuleDoc
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body: " + err.Error()})
		return
	}

	if doc.Pattern == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "pattern is required"})
		return
	}

	now := time.Now().UTC().Format(time.RFC3339)
	if existing, ok := s.docStore.Get(doc.Pattern); ok {
		doc.PublishedAt = existing.PublishedAt
		doc.UpdatedAt = now
	} else {
		doc.PublishedAt = now
		doc.UpdatedAt = now
	}

	s.docStore.Set(&doc)
	writeJSON(w, http.StatusCreated, map[string]string{"message": "documentation published successfully", "pattern": doc.Pattern})
}

// listDocs handles GET /api/v1/docs to list all rule documentation.
func (s *Server) listDocs(w http.ResponseWriter, r *http.Request) {
	docs := s.docStore.List()
	writeJSON(w, http.StatusOK, docs)
}

// getDoc handles GET /api/v1/docs/{pattern} to get documentation for a
// specific rule pattern.
func (s *Server) getDoc(w http.ResponseWriter, r *http.Request) {
	pattern := r.PathValue("pattern")
	if pattern == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "pattern is required"})
		return
	}

	doc, ok := s.docStore.Get(pattern)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "documentation for pattern '" + pattern + "' not found"})
		return
	}

	writeJSON(w, http.StatusOK, doc)
}

// deleteDoc handles DELETE /api/v1/docs/{pattern} to unpublish documentation.
func (s *Server) deleteDoc(w http.ResponseWriter, r *http.Request) {
	pattern := r.PathValue("pattern")
	if pattern == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "pattern is required"})
		return
	}

	if !s.docStore.Delete(pattern) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "documentation for pattern '" + pattern + "' not found"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "documentation unpublished successfully", "pattern": pattern})
}
