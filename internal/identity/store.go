// Package identity owns the enrolled-person database: reference embeddings
// persisted in a single serialized container, an ANN shortlist index, and
// the matcher that resolves query embeddings against a snapshot of the
// store.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"os"
	"sync"
	"time"

	"github.com/coder/hnsw"
	"github.com/google/renameio"

	"github.com/facegate/facegate/internal/vision"
)

// ErrInvalidInput reports enrollment input the store rejects outright
// (empty person name, no crops supplied).
var ErrInvalidInput = errors.New("invalid enrollment input")

const (
	containerVersion = 1
	hnswMaxNeighbors = 16
)

// Person is one enrolled identity: a display name and one or more reference
// embeddings. Embeddings are append-only; re-enrollment adds references and
// never deletes prior ones.
type Person struct {
	Name       string      `json:"name"`
	Embeddings [][]float32 `json:"embeddings"`
	EnrolledAt time.Time   `json:"enrolled_at"`
}

// container is the on-disk shape of the store: one serialized document
// holding every person in enrollment order.
type container struct {
	Version int      `json:"version"`
	People  []Person `json:"people"`
}

// PersonInfo is the external summary of an enrolled person.
type PersonInfo struct {
	Name           string `json:"name"`
	EmbeddingCount int    `json:"embedding_count"`
}

// SnapshotEntry is one person's reference set inside a snapshot.
type SnapshotEntry struct {
	Name       string
	Embeddings [][]float32
}

// Snapshot is an immutable view of the store taken for one recognition
// cycle, so matching never holds the store lock. Entries are in enrollment
// order, which is what gives the matcher its tie-break.
type Snapshot struct {
	Entries []SnapshotEntry
}

// EnrollResult reports what an enrollment call accomplished.
// ImagesProcessed counts only the images that produced an embedding;
// rejected ones show up in Warnings instead.
type EnrollResult struct {
	Name            string
	EmbeddingsAdded int
	ImagesProcessed int
	TotalEmbeddings int
	Warnings        []string
}

// Store is the enrolled-person database. Enrollment writes are serialized
// and written through to disk before success is reported; snapshot reads
// observe either a fully-prior or fully-new state.
type Store struct {
	mu       sync.RWMutex
	path     string
	keys     []string           // normalized keys in enrollment order
	people   map[string]*Person // normalized key -> person
	embedder vision.Embedder

	// ANN shortlist over all reference embeddings. Node keys are global
	// reference ids; refOwner maps them back to the person key.
	index     *hnsw.Graph[int]
	refOwner  []string
	indexPath string
}

// Open loads the store from path, or starts empty if the file does not
// exist yet. The embedder is used to turn enrollment crops into reference
// embeddings.
func Open(path string, embedder vision.Embedder) (*Store, error) {
	s := &Store{
		path:     path,
		people:   make(map[string]*Person),
		embedder: embedder,
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading identity database: %w", err)
	}

	var doc container
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing identity database %s: %w", path, err)
	}

	for i := range doc.People {
		p := doc.People[i]
		key := NormalizeName(p.Name)
		if key == "" || len(p.Embeddings) == 0 {
			continue
		}
		s.keys = append(s.keys, key)
		s.people[key] = &p
		for _, emb := range p.Embeddings {
			s.indexAdd(key, emb)
		}
	}
	return s, nil
}

// Enroll computes one embedding per crop and appends the resulting vectors
// under the person, creating the person if new. Crops the embedder rejects
// are skipped and reported as warnings; if every crop fails the call fails
// with ErrNoFaceDetected and nothing changes. The updated container is
// persisted before success is reported.
func (s *Store) Enroll(ctx context.Context, name string, crops []image.Image) (*EnrollResult, error) {
	if NormalizeName(name) == "" {
		return nil, fmt.Errorf("%w: person name is required", ErrInvalidInput)
	}
	if len(crops) == 0 {
		return nil, fmt.Errorf("%w: at least one image is required", ErrInvalidInput)
	}

	var embeddings [][]float32
	var warnings []string
	for i, crop := range crops {
		emb, err := s.embedder.Embed(ctx, crop)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("image %d: %v", i+1, err))
			continue
		}
		embeddings = append(embeddings, emb)
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("%w in any supplied image", vision.ErrNoFaceDetected)
	}

	total, err := s.append(name, embeddings)
	if err != nil {
		return nil, err
	}
	return &EnrollResult{
		Name:            name,
		EmbeddingsAdded: len(embeddings),
		ImagesProcessed: len(embeddings),
		TotalEmbeddings: total,
		Warnings:        warnings,
	}, nil
}

// EnrollEmbeddings appends precomputed reference embeddings under the
// person. It is the write path Enroll uses after embedding.
func (s *Store) EnrollEmbeddings(name string, embeddings [][]float32) error {
	if NormalizeName(name) == "" {
		return fmt.Errorf("%w: person name is required", ErrInvalidInput)
	}
	if len(embeddings) == 0 {
		return fmt.Errorf("%w: at least one embedding is required", ErrInvalidInput)
	}
	_, err := s.append(name, embeddings)
	return err
}

// append persists the grown container first and only then commits it to
// memory, so a crash after a reported success can never lose an enrollment
// and a failed write can never leave a half-updated index.
func (s *Store) append(name string, embeddings [][]float32) (int, error) {
	key := NormalizeName(name)

	s.mu.Lock()
	defer s.mu.Unlock()

	person, exists := s.people[key]
	if !exists {
		person = &Person{Name: name, EnrolledAt: time.Now()}
	}

	grown := make([][]float32, 0, len(person.Embeddings)+len(embeddings))
	grown = append(grown, person.Embeddings...)
	grown = append(grown, embeddings...)

	if err := s.persistLocked(key, person, grown); err != nil {
		return 0, err
	}

	person.Embeddings = grown
	if !exists {
		s.keys = append(s.keys, key)
		s.people[key] = person
	}
	for _, emb := range embeddings {
		s.indexAdd(key, emb)
	}
	return len(grown), nil
}

// persistLocked atomically rewrites the serialized container with the given
// person's embedding set replaced. Write-to-temp-then-rename avoids a
// partially written file under crash.
func (s *Store) persistLocked(key string, person *Person, embeddings [][]float32) error {
	doc := container{Version: containerVersion}
	for _, k := range s.keys {
		p := *s.people[k]
		if k == key {
			p.Embeddings = embeddings
		}
		doc.People = append(doc.People, p)
	}
	if _, known := s.people[key]; !known {
		p := *person
		p.Embeddings = embeddings
		doc.People = append(doc.People, p)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("serializing identity database: %w", err)
	}
	if err := renameio.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("writing identity database: %w", err)
	}
	return nil
}

// indexAdd registers one reference embedding in the ANN shortlist index.
// Caller holds the write lock.
func (s *Store) indexAdd(key string, embedding []float32) {
	if s.index == nil {
		g := hnsw.NewGraph[int]()
		g.M = hnswMaxNeighbors
		g.Ml = 1.0 / float64(hnswMaxNeighbors)
		g.Distance = hnsw.CosineDistance
		s.index = g
	}
	id := len(s.refOwner)
	s.refOwner = append(s.refOwner, key)
	s.index.Add(hnsw.MakeNode(id, embedding))
}

// LoadIndex adopts path for shortlist index persistence and, if a saved
// index matching the current reference count exists there, replaces the
// index rebuilt from the container with it. A missing or stale file is
// not an error; the rebuilt index stays.
func (s *Store) LoadIndex(path string) error {
	if path == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.indexPath = path

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	saved, err := hnsw.LoadSavedGraph[int](path)
	if err != nil {
		return fmt.Errorf("loading shortlist index: %w", err)
	}
	if saved.Len() != len(s.refOwner) {
		// Stale relative to the container; keep the rebuilt index.
		return nil
	}
	s.index = saved.Graph
	return nil
}

// SaveIndex exports the shortlist index to the path given to LoadIndex.
// No-op without a path; an empty index removes any stale file.
func (s *Store) SaveIndex() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.indexPath == "" {
		return nil
	}
	if s.index == nil {
		_ = os.Remove(s.indexPath)
		return nil
	}

	f, err := os.Create(s.indexPath)
	if err != nil {
		return fmt.Errorf("creating shortlist index file: %w", err)
	}
	defer f.Close()
	if err := s.index.Export(f); err != nil {
		return fmt.Errorf("exporting shortlist index: %w", err)
	}
	return nil
}

// Snapshot returns an immutable view of every enrolled person for one
// recognition cycle. Reference vectors are shared, not copied; they are
// never mutated after enrollment.
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked(s.keys)
}

// Shortlist returns a snapshot narrowed to candidate people for the query.
// topK is the per-person reference count the matcher aggregates; the index
// is searched topK references deep per enrolled person. A person other than
// the best-aggregate one can hold at most topK-1 references nearer than the
// best person's best reference, so that width always keeps the person the
// matcher would pick from the full snapshot. Falls back to the full
// snapshot when the index is empty. Entry order stays enrollment order.
func (s *Store) Shortlist(query []float32, topK int) *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.index == nil || topK <= 0 {
		return s.snapshotLocked(s.keys)
	}

	candidates := make(map[string]bool)
	for _, node := range s.index.Search(query, topK*len(s.keys)) {
		if node.Key < len(s.refOwner) {
			candidates[s.refOwner[node.Key]] = true
		}
	}
	if len(candidates) == 0 {
		return s.snapshotLocked(s.keys)
	}

	keys := make([]string, 0, len(candidates))
	for _, key := range s.keys {
		if candidates[key] {
			keys = append(keys, key)
		}
	}
	return s.snapshotLocked(keys)
}

func (s *Store) snapshotLocked(keys []string) *Snapshot {
	snap := &Snapshot{Entries: make([]SnapshotEntry, 0, len(keys))}
	for _, key := range keys {
		p := s.people[key]
		refs := make([][]float32, len(p.Embeddings))
		copy(refs, p.Embeddings)
		snap.Entries = append(snap.Entries, SnapshotEntry{Name: p.Name, Embeddings: refs})
	}
	return snap
}

// Count returns the number of enrolled people.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys)
}

// People lists enrolled people in enrollment order.
func (s *Store) People() []PersonInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]PersonInfo, 0, len(s.keys))
	for _, key := range s.keys {
		p := s.people[key]
		infos = append(infos, PersonInfo{Name: p.Name, EmbeddingCount: len(p.Embeddings)})
	}
	return infos
}
