package pipeline

import (
	"sync"
	"time"
)

// Stage identifies which leg of the ingestion pipeline a document is
// currently passing through.
type Stage string

const (
	StageFetching   Stage = "fetching"
	StageConverting Stage = "converting"
	StageChunking   Stage = "chunking"
	StageEmbedding  Stage = "embedding"
	StageUpserting  Stage = "upserting"
)

// Status mirrors the teacher's indexing status enum, generalized from a
// single local index run to one run per (project, source) pair.
type Status string

const (
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusError   Status = "error"
)

// Snapshot is an immutable point-in-time read of a Progress tracker.
type Snapshot struct {
	Status           Status
	Stage            Stage
	DocumentsTotal   int
	DocumentsDone    int
	ChunksEmbedded   int
	ElapsedSeconds   int
	ErrorMessage     string
}

// Progress provides thread-safe tracking of one ingestion run's state,
// grounded on the teacher's internal/async.IndexProgress.
type Progress struct {
	mu sync.RWMutex

	status         Status
	stage          Stage
	documentsTotal int
	documentsDone  int
	chunksEmbedded int
	startTime      time.Time
	errorMessage   string
}

func NewProgress() *Progress {
	return &Progress{status: StatusRunning, stage: StageFetching, startTime: time.Now()}
}

func (p *Progress) SetStage(stage Stage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stage = stage
}

func (p *Progress) AddDocumentSeen() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.documentsTotal++
}

func (p *Progress) AddDocumentDone() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.documentsDone++
}

func (p *Progress) AddChunksEmbedded(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.chunksEmbedded += n
}

func (p *Progress) SetDone() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = StatusDone
}

func (p *Progress) SetError(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = StatusError
	p.errorMessage = msg
}

func (p *Progress) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return Snapshot{
		Status:         p.status,
		Stage:          p.stage,
		DocumentsTotal: p.documentsTotal,
		DocumentsDone:  p.documentsDone,
		ChunksEmbedded: p.chunksEmbedded,
		ElapsedSeconds: int(time.Since(p.startTime).Seconds()),
		ErrorMessage:   p.errorMessage,
	}
}
