package diary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/shreya-uprety/medforce-gateway/internal/pool"
)

// ErrNotFound is returned by Load when no diary exists for the patient.
var ErrNotFound = errors.New("diary: not found")

// ErrConcurrency is returned by Save when the caller's generation no
// longer matches the stored generation (spec.md §4.4/§7 item 7).
var ErrConcurrency = errors.New("diary: concurrency conflict")

// document is the Mongo-side envelope around a serialised Diary. The
// diary itself is kept as an embedded JSON document (rather than a
// hand-tagged BSON subdocument) so Diary's field set can evolve without
// maintaining a parallel bson-tag schema — see DESIGN.md.
type document struct {
	ID         string `bson:"_id"`
	Generation int64  `bson:"generation"`
	DiaryJSON  string `bson:"diary_json"`
}

// Store is a Mongo-backed, generation-versioned diary store. One logical
// document per patient, keyed by patient id — the Go analogue of the
// original GCS blob path "patient_diaries/patient_{id}/diary.json", with
// Mongo's document-level atomic update standing in for GCS's
// if_generation_match conditional write.
type Store struct {
	coll    *mongo.Collection
	timeout time.Duration
}

// NewStore wraps an existing Mongo collection.
func NewStore(coll *mongo.Collection, timeout time.Duration) *Store {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Store{coll: coll, timeout: timeout}
}

func (s *Store) ctx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, s.timeout)
}

// Load returns the diary and its current generation. Returns ErrNotFound
// when no document exists for patientID.
func (s *Store) Load(ctx context.Context, patientID string) (*Diary, int64, error) {
	cctx, cancel := s.ctx(ctx)
	defer cancel()

	var doc document
	err := s.coll.FindOne(cctx, bson.M{"_id": patientID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, 0, ErrNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("diary store load: %w", err)
	}

	d := &Diary{}
	if err := json.Unmarshal([]byte(doc.DiaryJSON), d); err != nil {
		return nil, 0, fmt.Errorf("diary store decode: %w", err)
	}
	return d, doc.Generation, nil
}

// Save persists d. When generation is non-nil, the write is conditional
// on the stored generation still matching *generation (optimistic
// concurrency); a mismatch returns ErrConcurrency. When generation is
// nil, the write is unconditional (first create or known-new document).
// Returns the new generation on success.
func (s *Store) Save(ctx context.Context, patientID string, d *Diary, generation *int64) (int64, error) {
	cctx, cancel := s.ctx(ctx)
	defer cancel()

	buf := pool.ByteBufferPool.Get()
	if err := json.NewEncoder(buf).Encode(d); err != nil {
		pool.ByteBufferPool.Put(buf)
		return 0, fmt.Errorf("diary store encode: %w", err)
	}
	body := append([]byte(nil), buf.Bytes()...)
	pool.ByteBufferPool.Put(buf)

	if generation == nil {
		newGen := int64(1)
		_, err := s.coll.ReplaceOne(cctx, bson.M{"_id": patientID},
			document{ID: patientID, Generation: newGen, DiaryJSON: string(body)},
			options.Replace().SetUpsert(true))
		if err != nil {
			return 0, fmt.Errorf("diary store create: %w", err)
		}
		return newGen, nil
	}

	newGen := *generation + 1
	res, err := s.coll.UpdateOne(cctx,
		bson.M{"_id": patientID, "generation": *generation},
		bson.M{"$set": bson.M{"diary_json": string(body), "generation": newGen}},
	)
	if err != nil {
		return 0, fmt.Errorf("diary store save: %w", err)
	}
	if res.MatchedCount == 0 {
		return 0, ErrConcurrency
	}
	return newGen, nil
}

// Create builds and persists a fresh diary for patientID.
func (s *Store) Create(ctx context.Context, patientID, correlationID string) (*Diary, int64, error) {
	d := New(patientID, correlationID, time.Now().UTC())
	gen, err := s.Save(ctx, patientID, d, nil)
	if err != nil {
		return nil, 0, err
	}
	return d, gen, nil
}

// Exists reports whether a diary document exists for patientID.
func (s *Store) Exists(ctx context.Context, patientID string) (bool, error) {
	cctx, cancel := s.ctx(ctx)
	defer cancel()
	n, err := s.coll.CountDocuments(cctx, bson.M{"_id": patientID})
	if err != nil {
		return false, fmt.Errorf("diary store exists: %w", err)
	}
	return n > 0, nil
}

// Delete removes the diary document for patientID, returning whether a
// document was actually deleted.
func (s *Store) Delete(ctx context.Context, patientID string) (bool, error) {
	cctx, cancel := s.ctx(ctx)
	defer cancel()
	res, err := s.coll.DeleteOne(cctx, bson.M{"_id": patientID})
	if err != nil {
		return false, fmt.Errorf("diary store delete: %w", err)
	}
	return res.DeletedCount > 0, nil
}

// ListAllPatientIDs returns every patient id with a diary document.
func (s *Store) ListAllPatientIDs(ctx context.Context) ([]string, error) {
	cctx, cancel := s.ctx(ctx)
	defer cancel()
	cur, err := s.coll.Find(cctx, bson.M{}, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, fmt.Errorf("diary store list: %w", err)
	}
	defer cur.Close(cctx)

	var ids []string
	for cur.Next(cctx) {
		var doc struct {
			ID string `bson:"_id"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		ids = append(ids, doc.ID)
	}
	return ids, cur.Err()
}

// ListMonitoringPatients returns ids whose diary has monitoring.monitoring_active == true.
func (s *Store) ListMonitoringPatients(ctx context.Context) ([]string, error) {
	ids, err := s.ListAllPatientIDs(ctx)
	if err != nil {
		return nil, err
	}
	out := []string{}
	for _, id := range ids {
		d, _, err := s.Load(ctx, id)
		if err != nil {
			continue
		}
		if d.Monitoring.MonitoringActive {
			out = append(out, id)
		}
	}
	return out, nil
}
