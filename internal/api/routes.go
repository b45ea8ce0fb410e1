package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/iprashantai/medrefill-mvp1/internal/emr"
	"github.com/iprashantai/medrefill-mvp1/internal/protocol"
	"github.com/iprashantai/medrefill-mvp1/internal/queue"
	"github.com/iprashantai/medrefill-mvp1/internal/review"
	"github.com/iprashantai/medrefill-mvp1/internal/store"
	"github.com/iprashantai/medrefill-mvp1/internal/util"
)

// Config defines server dependencies.
type Config struct {
	DBPath         string
	AllowedOrigins []string
	SilentDB       bool
}

// Server wires HTTP handlers with persistence and the review workflow.
type Server struct {
	db             *store.Database
	emr            *emr.Service
	notifier       *QueueNotifier
	allowedOrigins []string
	upgrader       websocket.Upgrader
	now            func() time.Time
}

// NewServer constructs the API server.
func NewServer(cfg Config) (*Server, error) {
	if cfg.DBPath == "" {
		return nil, errors.New("db path required")
	}
	db, err := store.Open(cfg.DBPath, cfg.SilentDB)
	if err != nil {
		return nil, err
	}

	return &Server{
		db:             db,
		emr:            emr.NewService(),
		notifier:       NewQueueNotifier(),
		allowedOrigins: cfg.AllowedOrigins,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		now: time.Now,
	}, nil
}

// DB exposes the underlying database, mainly for seeding and tests.
func (s *Server) DB() *store.Database {
	return s.db
}

// Router configures gin routes.
func (s *Server) Router() (*gin.Engine, error) {
	r := gin.Default()

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowCredentials = true
	if len(s.allowedOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = s.allowedOrigins
	}
	corsCfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
	corsCfg.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	r.Use(cors.New(corsCfg))

	r.GET("/api/healthz", s.handleHealth)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/refill-queue", s.handleQueue)
		v1.GET("/refill-request/:id", s.handleDetail)
		v1.POST("/refill-request/:id/review", s.handleReview)
		v1.GET("/metrics", s.handleMetrics)
		v1.GET("/queue/stream", s.handleQueueStream)
	}

	return r, nil
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleQueue serves the pending-review collection, Deny recommendations first.
func (s *Server) handleQueue(c *gin.Context) {
	timer := util.StartTimer()

	rows, err := s.db.ListPending()
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}

	requests := make([]review.RefillRequest, 0, len(rows))
	for _, row := range rows {
		requests = append(requests, s.joinRequest(row))
	}
	requests = queue.Sort(requests, queue.SortByDecision)

	logrus.WithFields(logrus.Fields{
		"pending":    len(requests),
		"elapsed_ms": timer.ElapsedMs(),
	}).Debug("refill queue served")
	c.JSON(http.StatusOK, requests)
}

// handleDetail serves one request with its EMR context and protocol checklist.
func (s *Server) handleDetail(c *gin.Context) {
	id, err := parseUintParam(c.Param("id"))
	if err != nil {
		s.renderError(c, http.StatusBadRequest, err)
		return
	}

	row, err := s.db.GetRequest(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.renderError(c, http.StatusNotFound, fmt.Errorf("refill request %d not found", id))
		} else {
			s.renderError(c, http.StatusInternalServerError, err)
		}
		return
	}

	joined := s.joinRequest(*row)
	if joined.Patient == nil || joined.Protocol == nil {
		s.renderError(c, http.StatusNotFound, fmt.Errorf("related data for request %d not found", id))
		return
	}

	proto, err := s.db.GetProtocol(row.ProtocolID)
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}

	clinical := s.emr.ClinicalData(joined.Patient.MRN)
	detail := review.DetailData{
		Request:          joined,
		PatientData:      s.emr.PatientData(joined.Patient.MRN),
		ClinicalData:     clinical,
		ProtocolsChecked: protocol.BuildChecks(proto, clinical, s.now()),
	}
	c.JSON(http.StatusOK, detail)
}

// handleReview records a clinician's final decision. The workflow computes the
// reviewed state; the store re-checks the pending precondition inside its
// transaction so a double submission resolves to exactly one winner.
func (s *Server) handleReview(c *gin.Context) {
	id, err := parseUintParam(c.Param("id"))
	if err != nil {
		s.renderError(c, http.StatusBadRequest, err)
		return
	}

	var payload ReviewPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		s.renderError(c, http.StatusBadRequest, fmt.Errorf("invalid payload: %w", err))
		return
	}
	decision, err := review.ParseDecision(payload.Decision)
	if err != nil {
		s.renderError(c, http.StatusBadRequest, err)
		return
	}

	row, err := s.db.GetRequest(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.renderError(c, http.StatusNotFound, fmt.Errorf("refill request %d not found", id))
		} else {
			s.renderError(c, http.StatusInternalServerError, err)
		}
		return
	}

	proposed, err := review.SubmitDecision(s.joinRequest(*row), decision, payload.UserID, s.now())
	if err != nil {
		if errors.Is(err, review.ErrAlreadyReviewed) {
			s.renderError(c, http.StatusConflict, err)
		} else {
			s.renderError(c, http.StatusInternalServerError, err)
		}
		return
	}

	updated, err := s.db.ApplyReview(row.ID, *proposed.FinalDecision, *proposed.ReviewedBy, *proposed.ReviewedAt)
	if err != nil {
		if errors.Is(err, review.ErrAlreadyReviewed) {
			s.renderError(c, http.StatusConflict, err)
		} else {
			s.renderError(c, http.StatusInternalServerError, err)
		}
		return
	}

	result := s.joinRequest(*updated)
	logrus.WithFields(logrus.Fields{
		"request_id": result.ID,
		"decision":   decision,
		"reviewer":   payload.UserID,
		"mismatch":   review.IsMismatch(result),
	}).Info("refill request reviewed")

	s.notifier.Broadcast(QueueEvent{
		Type:      "reviewed",
		RequestID: result.ID,
		Decision:  string(decision),
		Reviewer:  payload.UserID,
		Mismatch:  review.IsMismatch(result),
	})
	c.JSON(http.StatusOK, result)
}

// handleMetrics serves the dashboard tallies. Mismatches come from the historical
// collection; pending requests cannot mismatch by definition.
func (s *Server) handleMetrics(c *gin.Context) {
	pendingRows, err := s.db.ListPending()
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}
	allRows, err := s.db.ListAll()
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}

	pending := make([]review.RefillRequest, 0, len(pendingRows))
	for _, row := range pendingRows {
		pending = append(pending, s.joinRequest(row))
	}
	all := make([]review.RefillRequest, 0, len(allRows))
	for _, row := range allRows {
		all = append(all, s.joinRequest(row))
	}

	c.JSON(http.StatusOK, MetricsFromCounts(queue.Classify(pending), queue.Classify(all).Mismatches))
}

// handleQueueStream upgrades to a websocket and streams review events so open queue
// views refresh without waiting for the next poll.
func (s *Server) handleQueueStream(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).Warn("queue stream upgrade failed")
		return
	}

	client := s.notifier.Register(conn)
	defer s.notifier.Unregister(client)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// joinRequest attaches patient and protocol reference data to a stored request.
// Lookup failures leave the reference nil; display code substitutes defaults.
func (s *Server) joinRequest(row store.RefillRequest) review.RefillRequest {
	patient, err := s.db.GetPatient(row.PatientID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		logrus.WithError(err).WithField("patient_id", row.PatientID).Warn("load patient")
	}
	proto, err := s.db.GetProtocol(row.ProtocolID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		logrus.WithError(err).WithField("protocol_id", row.ProtocolID).Warn("load protocol")
	}
	return RequestFromModel(row, patient, proto)
}

func (s *Server) renderError(c *gin.Context, status int, err error) {
	c.JSON(status, gin.H{"error": err.Error()})
}

func parseUintParam(value string) (uint, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, errors.New("identifier is required")
	}
	parsed, err := strconv.ParseUint(trimmed, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid identifier: %w", err)
	}
	return uint(parsed), nil
}
