package server

import (
	"moocore/builtins"
	"moocore/db"
	"moocore/parser"
	"moocore/vm"
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
)

// Server represents the MOO server
type Server struct {
	store              *db.Store
	database           *db.Database
	scheduler          *Scheduler
	connManager        *ConnectionManager
	dbPath             string
	port               int
	checkpointInterval time.Duration
	running            bool
	mu                 sync.Mutex
	shutdownChan       chan struct{}
	checkpointChan     chan struct{}
	ctx                context.Context
	cancel             context.CancelFunc
}

// NewServer creates a new MOO server
func NewServer(dbPath string, port int, checkpointIntervalSec int) (*Server, error) {
	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		dbPath:             dbPath,
		port:               port,
		checkpointInterval: time.Duration(checkpointIntervalSec) * time.Second,
		shutdownChan:       make(chan struct{}),
		checkpointChan:     make(chan struct{}),
		ctx:                ctx,
		cancel:             cancel,
	}, nil
}

// LoadDatabase loads the database from disk
func (s *Server) LoadDatabase() error {
	database, err := db.LoadDatabase(s.dbPath)
	if err != nil {
		return fmt.Errorf("load database: %w", err)
	}

	s.database = database
	s.store = database.NewStoreFromDatabase()
	s.scheduler = NewScheduler(s.store)
	s.connManager = NewConnectionManager(s, s.port)

	// Wire scheduler to connection manager for output flushing
	s.scheduler.SetConnectionManager(s.connManager)

	// Wire notify() builtin to connection manager
	builtins.SetConnectionManager(s.connManager)

	// Wire dump_database() builtin to server checkpoint
	builtins.SetDumpFunc(func() error { return s.checkpoint() })

	log.Info().Int("version", database.Version).Int("objects", len(database.Objects)).Msg("loaded database")
	return nil
}

// GetStore returns the object store
func (s *Server) GetStore() *db.Store {
	return s.store
}

// GetEvaluator returns the evaluator from the scheduler
func (s *Server) GetEvaluator() *vm.Evaluator {
	return s.scheduler.GetEvaluator()
}

// Start starts the server
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.mu.Unlock()

	// Start scheduler
	s.scheduler.Start()

	// Call #0:server_started()
	if err := s.callServerStarted(); err != nil {
		log.Warn().Err(err).Msg("#0:server_started() failed")
	}

	// Start listening for connections
	if err := s.connManager.Listen(); err != nil {
		return fmt.Errorf("listen failed: %w", err)
	}

	// Set up signal handling
	go s.handleSignals()

	// Set up periodic checkpoints
	go s.checkpointLoop()

	// Main loop
	return s.mainLoop()
}

// mainLoop is the main server loop
func (s *Server) mainLoop() error {
	for {
		select {
		case <-s.ctx.Done():
			return s.shutdown()
		case <-s.checkpointChan:
			if err := s.checkpoint(); err != nil {
				log.Error().Err(err).Msg("checkpoint failed")
			}
		}
	}
}

// handleSignals handles OS signals
func (s *Server) handleSignals() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Info().Msg("received shutdown signal")
		s.Shutdown()
	case <-s.ctx.Done():
		return
	}
}

// checkpointLoop runs periodic checkpoints
func (s *Server) checkpointLoop() {
	if s.checkpointInterval <= 0 {
		return // Checkpointing disabled
	}
	ticker := time.NewTicker(s.checkpointInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.checkpointChan <- struct{}{}
		case <-s.ctx.Done():
			return
		}
	}
}

// checkpoint saves the database to disk
func (s *Server) checkpoint() error {
	log.Info().Msg("starting checkpoint")

	// Call #0:checkpoint_started()
	if err := s.callCheckpointStarted(); err != nil {
		log.Warn().Err(err).Msg("#0:checkpoint_started() failed")
	}

	start := time.Now()

	// Write to temp file
	tempPath := s.dbPath + ".tmp"
	tempFile, err := os.Create(tempPath)
	if err != nil {
		s.callCheckpointFinished(false)
		return fmt.Errorf("create temp file: %w", err)
	}

	writer := db.NewWriter(tempFile, s.store)
	writer.SetTaskSource(s.scheduler) // Provide tasks for serialization
	if err := writer.WriteDatabase(); err != nil {
		tempFile.Close()
		os.Remove(tempPath)
		s.callCheckpointFinished(false)
		return fmt.Errorf("write database: %w", err)
	}

	if err := tempFile.Close(); err != nil {
		os.Remove(tempPath)
		s.callCheckpointFinished(false)
		return fmt.Errorf("close temp file: %w", err)
	}

	// Atomic rename temp -> main database
	if err := os.Rename(tempPath, s.dbPath); err != nil {
		// On Windows, need to remove dest first
		os.Remove(s.dbPath)
		if err := os.Rename(tempPath, s.dbPath); err != nil {
			s.callCheckpointFinished(false)
			return fmt.Errorf("rename temp to main: %w", err)
		}
	}

	// Call #0:checkpoint_finished(success)
	if err := s.callCheckpointFinished(true); err != nil {
		log.Warn().Err(err).Msg("#0:checkpoint_finished() failed")
	}

	log.Info().Dur("elapsed", time.Since(start)).Msg("checkpoint complete")
	return nil
}

// Shutdown initiates graceful shutdown
func (s *Server) Shutdown() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	log.Info().Msg("initiating shutdown")
	s.cancel()
}

// shutdown performs the actual shutdown sequence
func (s *Server) shutdown() error {
	log.Info().Msg("shutting down server")

	// Call #0:shutdown_started()
	if err := s.callShutdownStarted("Server shutdown"); err != nil {
		log.Warn().Err(err).Msg("#0:shutdown_started() failed")
	}

	// Stop scheduler
	s.scheduler.Stop()

	// Final checkpoint (unless checkpointing was explicitly disabled)
	if s.checkpointInterval > 0 {
		log.Info().Msg("performing final checkpoint")
		if err := s.checkpoint(); err != nil {
			log.Warn().Err(err).Msg("final checkpoint failed")
		}
	} else {
		log.Info().Msg("final checkpoint skipped (checkpointing disabled)")
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	log.Info().Msg("server shutdown complete")
	return nil
}

// Panic performs emergency shutdown
func (s *Server) Panic(message string) {
	log.Error().Str("message", message).Msg("panic")

	// Attempt emergency database dump
	log.Warn().Msg("attempting emergency database dump")
	if err := s.checkpoint(); err != nil {
		log.Error().Err(err).Msg("emergency dump failed")
	}

	os.Exit(1)
}

// callServerStarted checks that #0 defines server_started and, if so, queues
// a foreground task with an empty body; the verb itself is not run.
func (s *Server) callServerStarted() error {
	systemObj := s.store.Get(0)
	if systemObj == nil {
		return fmt.Errorf("system object not found")
	}

	verb := systemObj.Verbs["server_started"]
	if verb == nil {
		return nil // Verb not defined, skip
	}

	// Queue a task with no statements
	code := []parser.Stmt{}
	s.scheduler.CreateForegroundTask(0, code)

	return nil
}

// callCheckpointStarted checks that #0 defines checkpoint_started and, if so,
// queues a foreground task with an empty body; the verb itself is not run.
func (s *Server) callCheckpointStarted() error {
	systemObj := s.store.Get(0)
	if systemObj == nil {
		return fmt.Errorf("system object not found")
	}

	verb := systemObj.Verbs["checkpoint_started"]
	if verb == nil {
		return nil // Verb not defined, skip
	}

	// Queue a task with no statements
	code := []parser.Stmt{}
	s.scheduler.CreateForegroundTask(0, code)

	return nil
}

// callCheckpointFinished checks that #0 defines checkpoint_finished and, if so,
// queues a foreground task with an empty body; the verb itself is not run and
// success is not passed on.
func (s *Server) callCheckpointFinished(success bool) error {
	systemObj := s.store.Get(0)
	if systemObj == nil {
		return fmt.Errorf("system object not found")
	}

	verb := systemObj.Verbs["checkpoint_finished"]
	if verb == nil {
		return nil // Verb not defined, skip
	}

	// Queue a task with no statements
	code := []parser.Stmt{}
	s.scheduler.CreateForegroundTask(0, code)

	return nil
}

// callShutdownStarted checks that #0 defines shutdown_started and, if so,
// queues a foreground task with an empty body; the verb itself is not run and
// message is not passed on.
func (s *Server) callShutdownStarted(message string) error {
	systemObj := s.store.Get(0)
	if systemObj == nil {
		return fmt.Errorf("system object not found")
	}

	verb := systemObj.Verbs["shutdown_started"]
	if verb == nil {
		return nil // Verb not defined, skip
	}

	// Queue a task with no statements
	code := []parser.Stmt{}
	s.scheduler.CreateForegroundTask(0, code)

	return nil
}

// DumpDatabase triggers an immediate checkpoint
func (s *Server) DumpDatabase() error {
	return s.checkpoint()
}
