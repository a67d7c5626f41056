package api

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/forPelevin/hlshorts/internal/pipeline"
	"github.com/forPelevin/hlshorts/internal/session"
	"github.com/forPelevin/hlshorts/internal/types"
)

var allowedExtensions = map[string]bool{
	".mp4": true, ".avi": true, ".mov": true, ".mkv": true, ".wmv": true, ".flv": true, ".webm": true,
}

func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func (s *Server) handleUpload(c *gin.Context) {
	if c.Request.ContentLength > s.opts.MaxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File too large"})
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.opts.MaxUploadBytes)

	fh, err := c.FormFile("video")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "No video file provided"})
		return
	}
	name := filepath.Base(fh.Filename)
	if fh.Filename == "" || name == "." || name == string(filepath.Separator) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file selected"})
		return
	}
	if !allowedExtensions[strings.ToLower(filepath.Ext(name))] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid file type. Supported: MP4, AVI, MOV, MKV, WMV, FLV, WebM"})
		return
	}

	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	defer f.Close()

	sess, err := s.reg.Create(c.Request.Context(), name, f)
	if err != nil {
		s.logger.Error("upload failed", slog.String("filename", name), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.logger.Info("video uploaded", slog.String("session", sess.ID), slog.String("filename", name), slog.Int64("bytes", fh.Size))
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"session_id": sess.ID,
		"filename":   sess.Filename,
		"file_size":  fh.Size,
	})
}

type generateRequest struct {
	SessionID   string `json:"session_id"`
	MaxShorts   *int   `json:"max_shorts"`
	UseAnalysis *bool  `json:"use_analysis"`
}

func (s *Server) handleGenerate(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	maxShorts := s.opts.DefaultMaxShorts
	if req.MaxShorts != nil {
		maxShorts = *req.MaxShorts
	}
	if maxShorts <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "max_shorts must be positive"})
		return
	}
	useAnalysis := true
	if req.UseAnalysis != nil {
		useAnalysis = *req.UseAnalysis
	}
	if req.SessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid session ID"})
		return
	}

	sess, err := s.reg.Claim(c.Request.Context(), req.SessionID)
	switch {
	case errors.Is(err, session.ErrNotFound):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid session ID"})
		return
	case errors.Is(err, session.ErrBusy):
		c.JSON(http.StatusConflict, gin.H{"error": "Generation already in progress"})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	s.wg.Add(1)
	go s.generate(sess, maxShorts, useAnalysis)

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"message":    "Generation started",
		"session_id": sess.ID,
	})
}

// generate runs in the background for a claimed session and always
// finishes it with Complete or Fail.
func (s *Server) generate(sess session.Session, maxShorts int, useAnalysis bool) {
	defer s.wg.Done()
	log := s.logger.With(slog.String("session", sess.ID))

	out, err := s.runner.Run(s.baseCtx, pipeline.Request{
		InputPath:   sess.InputPath,
		OutDir:      sess.OutputDir,
		Session:     sess.ID,
		MaxShorts:   maxShorts,
		UseAnalysis: useAnalysis,
		Observer:    s.reg.Observer(sess.ID),
	})

	// The record must be finished even when the server is shutting down.
	ctx := context.WithoutCancel(s.baseCtx)
	if err != nil || !out.Generation.Success {
		msg := "Generation failed"
		switch {
		case len(out.Generation.Errors) > 0:
			msg = strings.Join(out.Generation.Errors, "; ")
		case err != nil:
			msg = err.Error()
		}
		log.Warn("generation failed", slog.String("error", msg))
		if ferr := s.reg.Fail(ctx, sess.ID, msg); ferr != nil {
			log.Error("session not updated", slog.String("error", ferr.Error()))
		}
		return
	}
	if cerr := s.reg.Complete(ctx, sess.ID, out.Generation); cerr != nil {
		log.Error("session not updated", slog.String("error", cerr.Error()))
	}
}

type statusResponse struct {
	session.Session
	Outputs []string `json:"outputs"`
}

func (s *Server) handleStatus(c *gin.Context) {
	sess, ok := s.lookup(c)
	if !ok {
		return
	}
	outputs := []string{}
	if sess.Result != nil {
		for _, a := range sess.Result.OutputFiles {
			outputs = append(outputs, a.Filename)
		}
	}
	c.JSON(http.StatusOK, statusResponse{Session: sess, Outputs: outputs})
}

func (s *Server) handleDownload(c *gin.Context) {
	a, ok := s.artifact(c)
	if !ok {
		return
	}
	c.FileAttachment(a.Path, a.Filename)
}

func (s *Server) handlePreview(c *gin.Context) {
	a, ok := s.artifact(c)
	if !ok {
		return
	}
	c.Header("Content-Type", "video/mp4")
	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", a.Filename))
	c.File(a.Path)
}

func (s *Server) handleDownloadAll(c *gin.Context) {
	sess, ok := s.lookup(c)
	if !ok {
		return
	}
	var files []types.OutputArtifact
	if sess.Result != nil {
		for _, a := range sess.Result.OutputFiles {
			if fileExists(a.Path) {
				files = append(files, a)
			}
		}
	}
	if len(files) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "No files to download"})
		return
	}

	prefix := sess.ID
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	c.Header("Content-Type", "application/zip")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "ai_shorts_"+prefix+".zip"))
	c.Status(http.StatusOK)

	zw := zip.NewWriter(c.Writer)
	for _, a := range files {
		if err := addToZip(zw, a); err != nil {
			s.logger.Error("zip download aborted", slog.String("session", sess.ID), slog.String("error", err.Error()))
			_ = zw.Close()
			return
		}
	}
	if err := zw.Close(); err != nil {
		s.logger.Error("zip download aborted", slog.String("session", sess.ID), slog.String("error", err.Error()))
	}
}

func addToZip(zw *zip.Writer, a types.OutputArtifact) error {
	f, err := os.Open(a.Path)
	if err != nil {
		return err
	}
	defer f.Close()
	w, err := zw.CreateHeader(&zip.FileHeader{Name: a.Filename, Method: zip.Deflate})
	if err != nil {
		return err
	}
	_, err = io.Copy(w, f)
	return err
}

func (s *Server) handleDelete(c *gin.Context) {
	err := s.reg.Remove(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, session.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
	case errors.Is(err, session.ErrBusy):
		c.JSON(http.StatusConflict, gin.H{"error": "Generation in progress"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func (s *Server) lookup(c *gin.Context) (session.Session, bool) {
	sess, err := s.reg.Get(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, session.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return session.Session{}, false
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return session.Session{}, false
	}
	return sess, true
}

// artifact resolves :file against the session's outputs only, so arbitrary
// paths cannot be served.
func (s *Server) artifact(c *gin.Context) (types.OutputArtifact, bool) {
	sess, ok := s.lookup(c)
	if !ok {
		return types.OutputArtifact{}, false
	}
	a, ok := sess.Artifact(c.Param("file"))
	if !ok || !fileExists(a.Path) {
		c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
		return types.OutputArtifact{}, false
	}
	return a, true
}

func fileExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular()
}
