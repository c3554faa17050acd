// Package devserver is an in-memory reference implementation of the vault
// wire protocol.
//
// It exists for development and end-to-end tests: the whole client can be
// exercised against it without a real vault. State lives in memory and is
// lost on restart.
package devserver

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"

	"github.com/coursevault/coursevault/internal/logger"
)

// sessionHeader matches the client's session token header.
const sessionHeader = "X-Session-Key"

// tokenTTL bounds issued session tokens.
const tokenTTL = time.Hour

// Backup is one stored backup record plus its chunks.
type Backup struct {
	UUID            string `json:"uuid"`
	FileID          int64  `json:"fileid"`
	Filename        string `json:"filename"`
	FileHash        string `json:"filehash"`
	FileSize        int64  `json:"filesize"`
	ChunkSize       int64  `json:"chunksize"`
	TotalChunks     int    `json:"totalchunks"`
	CourseID        int64  `json:"courseid"`
	CourseName      string `json:"coursename"`
	CategoryID      int64  `json:"categoryid"`
	CategoryName    string `json:"categoryname"`
	CourseStartDate string `json:"coursestartdate"`
	IsCompleted     bool   `json:"is_completed"`
	TimeCreated     string `json:"timecreated"`

	chunks map[int][]byte
}

// Server holds the in-memory vault state.
type Server struct {
	credentialHash string
	jwtSecret      []byte

	mu      sync.Mutex
	backups map[string]*Backup
}

// New creates a dev vault accepting the given credential hash.
func New(credentialHash, jwtSecret string) *Server {
	return &Server{
		credentialHash: credentialHash,
		jwtSecret:      []byte(jwtSecret),
		backups:        map[string]*Backup{},
	}
}

// Handler returns the vault's HTTP routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Post("/session", s.createSession)

	r.Group(func(r chi.Router) {
		r.Use(s.requireSession)

		r.Post("/backup", s.createBackup)
		r.Put("/backup/{uniqueId}", s.updateBackup)
		r.Put("/backupcomplete/{uniqueId}", s.completeBackup)
		r.Put("/chunks/{uniqueId}/{chunkIndex}", s.putChunk)
		r.Delete("/chunks/{uniqueId}/{chunkIndex}", s.deleteChunk)
		r.Get("/downloads", s.listDownloads)
		r.Get("/downloadcount", s.downloadCount)
	})

	return r
}

// Backup returns a stored backup by UUID, for test assertions.
func (s *Server) Backup(uuid string) (*Backup, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.backups[uuid]
	return b, ok
}

// AssembledSize returns the total bytes stored for a backup's chunks.
func (s *Server) AssembledSize(uuid string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.backups[uuid]
	if !ok {
		return 0
	}
	var total int64
	for _, chunk := range b.chunks {
		total += int64(len(chunk))
	}
	return total
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Hash string `json:"hash"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "E_BODY", "malformed request body")
		return
	}

	if subtle.ConstantTimeCompare([]byte(body.Hash), []byte(s.credentialHash)) != 1 {
		writeError(w, http.StatusUnauthorized, "E_AUTH", "unknown credential hash")
		return
	}

	claims := jwt.RegisteredClaims{
		Subject:   "coursevault-client",
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(tokenTTL)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "E_TOKEN", "token signing failed")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"token": token})
}

// requireSession validates the session token on every protected route.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(sessionHeader)
		if raw == "" {
			writeError(w, http.StatusUnauthorized, "E_SESSION", "missing session token")
			return
		}

		_, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return s.jwtSecret, nil
		})
		if err != nil {
			writeError(w, http.StatusUnauthorized, "E_SESSION", "invalid session token")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) createBackup(w http.ResponseWriter, r *http.Request) {
	var b Backup
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil || b.UUID == "" {
		writeError(w, http.StatusBadRequest, "E_BODY", "malformed backup record")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.backups[b.UUID]; ok {
		// Echo the stored record so the client can reconcile.
		writeJSON(w, http.StatusConflict, existing)
		return
	}

	b.chunks = map[int][]byte{}
	b.TimeCreated = time.Now().UTC().Format(time.RFC3339)
	s.backups[b.UUID] = &b

	writeJSON(w, http.StatusCreated, map[string]any{
		"hash": signature(b.FileID, b.UUID, b.Filename, b.FileSize),
	})
}

func (s *Server) updateBackup(w http.ResponseWriter, r *http.Request) {
	uniqueID := chi.URLParam(r, "uniqueId")

	var incoming Backup
	if err := json.NewDecoder(r.Body).Decode(&incoming); err != nil {
		writeError(w, http.StatusBadRequest, "E_BODY", "malformed backup record")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.backups[uniqueID]
	if !ok {
		writeError(w, http.StatusNotFound, "E_UNKNOWN", "no such backup")
		return
	}

	incoming.UUID = b.UUID
	incoming.chunks = b.chunks
	incoming.IsCompleted = b.IsCompleted
	incoming.TimeCreated = b.TimeCreated
	s.backups[uniqueID] = &incoming

	writeJSON(w, http.StatusOK, map[string]any{
		"hash": signature(incoming.FileID, incoming.UUID, incoming.Filename, incoming.FileSize),
	})
}

func (s *Server) putChunk(w http.ResponseWriter, r *http.Request) {
	uniqueID := chi.URLParam(r, "uniqueId")
	index, err := strconv.Atoi(chi.URLParam(r, "chunkIndex"))
	if err != nil || index < 0 {
		writeError(w, http.StatusBadRequest, "E_CHUNK", "invalid chunk index")
		return
	}

	var body struct {
		Data      string `json:"data"`
		ChunkHash string `json:"chunkhash"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "E_BODY", "malformed chunk body")
		return
	}

	data, err := base64.StdEncoding.DecodeString(body.Data)
	if err != nil {
		writeError(w, http.StatusBadRequest, "E_ENCODING", "chunk data is not valid base64")
		return
	}

	// Hash covers the decoded bytes; a mismatch means corruption in flight.
	sum := md5.Sum(data)
	computed := hex.EncodeToString(sum[:])
	if body.ChunkHash != computed {
		writeError(w, http.StatusBadRequest, "E_HASH", "chunk hash does not match payload")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.backups[uniqueID]
	if !ok {
		writeError(w, http.StatusNotFound, "E_UNKNOWN", "no such backup")
		return
	}
	if b.IsCompleted {
		writeError(w, http.StatusConflict, "E_COMPLETED", "backup already completed")
		return
	}
	if index >= b.TotalChunks {
		writeError(w, http.StatusBadRequest, "E_CHUNK", "chunk index beyond total")
		return
	}

	b.chunks[index] = data
	writeJSON(w, http.StatusOK, map[string]any{"chunkhash": computed})
}

func (s *Server) deleteChunk(w http.ResponseWriter, r *http.Request) {
	uniqueID := chi.URLParam(r, "uniqueId")
	index, err := strconv.Atoi(chi.URLParam(r, "chunkIndex"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "E_CHUNK", "invalid chunk index")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.backups[uniqueID]
	if !ok {
		writeError(w, http.StatusNotFound, "E_UNKNOWN", "no such backup")
		return
	}
	if _, ok := b.chunks[index]; !ok {
		writeError(w, http.StatusNotFound, "E_CHUNK", "no such chunk")
		return
	}

	delete(b.chunks, index)
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (s *Server) completeBackup(w http.ResponseWriter, r *http.Request) {
	uniqueID := chi.URLParam(r, "uniqueId")

	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.backups[uniqueID]
	if !ok {
		writeError(w, http.StatusNotFound, "E_UNKNOWN", "no such backup")
		return
	}

	if b.IsCompleted {
		writeJSON(w, http.StatusOK, map[string]any{
			"hash":         signature(b.FileID, b.UUID, b.Filename, b.FileSize),
			"is_completed": true,
		})
		return
	}

	var assembled int64
	for i := 0; i < b.TotalChunks; i++ {
		chunk, ok := b.chunks[i]
		if !ok {
			writeError(w, http.StatusBadRequest, "E_INCOMPLETE",
				fmt.Sprintf("chunk %d missing", i))
			return
		}
		assembled += int64(len(chunk))
	}
	if assembled != b.FileSize {
		writeError(w, http.StatusBadRequest, "E_SIZE",
			fmt.Sprintf("assembled %d bytes, expected %d", assembled, b.FileSize))
		return
	}

	b.IsCompleted = true
	writeJSON(w, http.StatusOK, map[string]any{
		"hash":         signature(b.FileID, b.UUID, b.Filename, b.FileSize),
		"is_completed": true,
	})
}

func (s *Server) listDownloads(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	downloads := make([]map[string]any, 0, len(s.backups))
	for _, b := range s.backups {
		downloads = append(downloads, map[string]any{
			"uuid":         b.UUID,
			"filename":     b.Filename,
			"filesize":     b.FileSize,
			"coursename":   b.CourseName,
			"is_completed": b.IsCompleted,
			"timecreated":  b.TimeCreated,
		})
	}
	sort.Slice(downloads, func(i, j int) bool {
		return downloads[i]["uuid"].(string) < downloads[j]["uuid"].(string)
	})

	writeJSON(w, http.StatusOK, map[string]any{"downloads": downloads})
}

func (s *Server) downloadCount(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"count": len(s.backups)})
}

func signature(fileID int64, uuid, filename string, fileSize int64) string {
	sum := md5.Sum([]byte(fmt.Sprintf("%d,%s,%s,%d", fileID, uuid, filename, fileSize)))
	return hex.EncodeToString(sum[:])
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Warn("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, desc string) {
	writeJSON(w, status, map[string]any{"error": code, "error_desc": desc})
}
