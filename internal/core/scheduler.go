package core

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/printpoint/kiosk/internal/config"
	"github.com/printpoint/kiosk/internal/db"
)

// Notifier receives every document status transition.
type Notifier interface {
	Publish(documentID, status string)
}

// Converter materializes a print-ready PDF from an uploaded artifact.
type Converter interface {
	ToPDF(ctx context.Context, path string) (string, error)
}

// Scheduler drives documents through the print lifecycle. Prepare workers
// move fresh uploads to queued; a single print loop owns the printer, so at
// most one document is ever printing.
type Scheduler struct {
	printer   Printer
	converter Converter
	notifier  Notifier
	cfg       *config.SchedulerConfig

	intake    chan string
	printKick chan struct{}
	stopCh    chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	mu      sync.Mutex
	running bool
}

func NewScheduler(printer Printer, converter Converter, notifier Notifier, cfg *config.SchedulerConfig) *Scheduler {
	if cfg == nil {
		cfg = &config.SchedulerConfig{
			AutoPrint:      true,
			MaxRetries:     3,
			RetryDelay:     10 * time.Second,
			PrepareWorkers: 2,
			PollInterval:   time.Second,
		}
	}
	if cfg.PrepareWorkers < 1 {
		cfg.PrepareWorkers = 2
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		printer:   printer,
		converter: converter,
		notifier:  notifier,
		cfg:       cfg,
		intake:    make(chan string, 256),
		printKick: make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (s *Scheduler) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.mu.Unlock()

	if err := s.recover(); err != nil {
		return fmt.Errorf("failed to recover jobs: %w", err)
	}

	for i := 0; i < s.cfg.PrepareWorkers; i++ {
		s.wg.Add(1)
		go s.prepareWorker()
	}

	s.wg.Add(1)
	go s.printLoop()

	s.wg.Add(1)
	go s.dispatcher()

	return nil
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	s.cancel()
	s.wg.Wait()
}

// Notify hands a freshly created document to the scheduler intake.
func (s *Scheduler) Notify(id string) {
	select {
	case s.intake <- id:
	default:
	}
	s.kickPrinter()
}

// TriggerPrint handles an explicit print request. Documents already printing
// or terminal are left alone and reported as-is; anything earlier in the
// lifecycle is released for printing.
func (s *Scheduler) TriggerPrint(ctx context.Context, id string) (*db.Document, error) {
	doc, err := db.Documents.GetDocumentByID(ctx, id)
	if err != nil {
		return nil, err
	}

	status := Status(doc.Status)
	if status == StatusPrinting || status.Terminal() {
		return doc, nil
	}

	if err := db.Documents.Release(ctx, id); err != nil {
		return nil, err
	}
	s.Notify(id)

	return db.Documents.GetDocumentByID(ctx, id)
}

// recover resets work interrupted by a restart and reseeds the intake.
func (s *Scheduler) recover() error {
	if err := db.Documents.ResetInFlight(s.ctx); err != nil {
		return err
	}

	ids, err := db.Documents.ListIDsByStatus(s.ctx, string(StatusUploaded), 256)
	if err != nil {
		return err
	}
	for _, id := range ids {
		select {
		case s.intake <- id:
		default:
		}
	}
	return nil
}

func (s *Scheduler) dispatcher() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.enqueueUploaded()
			s.kickPrinter()
		}
	}
}

func (s *Scheduler) enqueueUploaded() {
	ids, err := db.Documents.ListIDsByStatus(s.ctx, string(StatusUploaded), 100)
	if err != nil {
		log.Printf("[scheduler] failed to list uploaded documents: %v", err)
		return
	}
	for _, id := range ids {
		select {
		case s.intake <- id:
		default:
			return
		}
	}
}

func (s *Scheduler) prepareWorker() {
	defer s.wg.Done()

	for {
		select {
		case <-s.stopCh:
			return
		case id := <-s.intake:
			s.prepare(id)
		}
	}
}

// prepare moves a document from uploaded through downloading to queued,
// materializing its print artifact along the way. The downloading CAS makes
// duplicate intake entries harmless.
func (s *Scheduler) prepare(id string) {
	doc, err := db.Documents.GetDocumentByID(s.ctx, id)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			log.Printf("[scheduler] failed to load document %s: %v", id, err)
		}
		return
	}
	if doc.Status != string(StatusUploaded) {
		return
	}

	if err := db.Documents.UpdateStatus(s.ctx, id, string(StatusUploaded), string(StatusDownloading)); err != nil {
		if !errors.Is(err, db.ErrStaleTransition) {
			log.Printf("[scheduler] failed to start download for %s: %v", id, err)
		}
		return
	}
	s.publish(id, StatusDownloading)

	if doc.PrintPath == "" {
		printPath, err := s.converter.ToPDF(s.ctx, doc.FilePath)
		if err != nil {
			s.fail(id, StatusDownloading, fmt.Sprintf("failed to materialize print artifact: %v", err))
			return
		}
		if err := db.Documents.SetPrintPath(s.ctx, id, printPath); err != nil {
			s.fail(id, StatusDownloading, fmt.Sprintf("failed to record print artifact: %v", err))
			return
		}
	}

	if err := db.Documents.MarkQueued(s.ctx, id, string(StatusDownloading)); err != nil {
		log.Printf("[scheduler] failed to queue document %s: %v", id, err)
		return
	}
	s.publish(id, StatusQueued)
	s.kickPrinter()
}

func (s *Scheduler) kickPrinter() {
	select {
	case s.printKick <- struct{}{}:
	default:
	}
}

// printLoop is the single goroutine allowed to drive the printer. Queued
// documents are taken strictly oldest-first.
func (s *Scheduler) printLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		doc, err := db.Documents.NextPrintable(s.ctx, s.cfg.AutoPrint, s.cfg.PrintDelay)
		if err != nil {
			log.Printf("[scheduler] failed to poll print queue: %v", err)
		}
		if doc == nil {
			select {
			case <-s.stopCh:
				return
			case <-s.printKick:
			case <-time.After(s.cfg.PollInterval):
			}
			continue
		}

		s.processPrint(doc)
	}
}

func (s *Scheduler) processPrint(doc *db.Document) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[scheduler] panic while printing %s: %v", doc.ID, r)
			s.fail(doc.ID, StatusPrinting, fmt.Sprintf("internal error: %v", r))
		}
	}()

	if err := db.Documents.MarkPrinting(s.ctx, doc.ID); err != nil {
		if !errors.Is(err, db.ErrStaleTransition) {
			log.Printf("[scheduler] failed to start printing %s: %v", doc.ID, err)
		}
		return
	}
	s.publish(doc.ID, StatusPrinting)

	path := doc.PrintPath
	if path == "" {
		path = doc.FilePath
	}

	err := s.printer.Print(s.ctx, path, doc.Copies, doc.ColorMode)
	if err == nil {
		if err := db.Documents.MarkCompleted(s.ctx, doc.ID); err != nil {
			log.Printf("[scheduler] failed to complete %s: %v", doc.ID, err)
			return
		}
		s.publish(doc.ID, StatusCompleted)

		if doc.OwnerID != "" {
			if err := db.Users.IncrementPrints(s.ctx, doc.OwnerID); err != nil {
				log.Printf("[scheduler] failed to update print count for user %s: %v", doc.OwnerID, err)
			}
		}
		return
	}

	log.Printf("[scheduler] print attempt %d for %s failed: %v", doc.RetryCount+1, doc.ID, err)

	if doc.RetryCount < s.cfg.MaxRetries {
		if err := db.Documents.RequeueForRetry(s.ctx, doc.ID, s.cfg.RetryDelay); err != nil {
			log.Printf("[scheduler] failed to requeue %s: %v", doc.ID, err)
			return
		}
		s.publish(doc.ID, StatusQueued)
		return
	}

	s.fail(doc.ID, StatusPrinting, err.Error())
}

func (s *Scheduler) fail(id string, from Status, reason string) {
	if err := db.Documents.MarkFailed(s.ctx, id, string(from), reason); err != nil {
		log.Printf("[scheduler] failed to mark %s failed: %v", id, err)
		return
	}
	s.publish(id, StatusFailed)
}

func (s *Scheduler) publish(id string, status Status) {
	log.Printf("[scheduler] document %s -> %s", id, status)
	if s.notifier != nil {
		s.notifier.Publish(id, string(status))
	}
}
