package remote

import (
	"context"
	"fmt"

	"github.com/syntrixbase/syntrix-go/pkg/model"
)

// Datastore executes the two RPCs a transaction needs. The wsremote
// package provides the production implementation; tests substitute fakes.
type Datastore interface {
	// Lookup fetches the current state of the given documents. Missing
	// documents come back as NoDocument tombstones.
	Lookup(ctx context.Context, keys []model.DocumentKey) ([]model.MaybeDocument, error)

	// Commit atomically applies writes, failing with ABORTED or
	// FAILED_PRECONDITION when any precondition version is stale.
	Commit(ctx context.Context, req *CommitRequest) (*CommitResponse, error)
}

// CommitRequest carries a transaction's writes and the versions its reads
// observed, which the server checks before applying.
type CommitRequest struct {
	Writes        []model.Mutation
	Preconditions map[model.DocumentKey]model.SnapshotVersion
}

// CommitResponse reports the commit version and per-write results.
type CommitResponse struct {
	CommitVersion model.SnapshotVersion
	Results       []model.MutationResult
}

// Transaction accumulates reads and writes to be committed atomically.
// All reads must happen before any write, so the read versions form the
// commit preconditions. A transaction is single-use: after Commit returns
// — success or failure — it must be discarded.
type Transaction struct {
	datastore    Datastore
	readVersions map[model.DocumentKey]model.SnapshotVersion
	writes       []model.Mutation
	written      model.DocumentKeySet
	committed    bool
}

// NewTransaction creates a transaction over the datastore.
func NewTransaction(datastore Datastore) *Transaction {
	return &Transaction{
		datastore:    datastore,
		readVersions: make(map[model.DocumentKey]model.SnapshotVersion),
		written:      model.NewDocumentKeySet(),
	}
}

// Lookup reads documents inside the transaction. It fails if any write
// was already staged.
func (t *Transaction) Lookup(ctx context.Context, keys ...model.DocumentKey) ([]model.MaybeDocument, error) {
	if t.committed {
		return nil, fmt.Errorf("transaction already committed")
	}
	if len(t.writes) > 0 {
		return nil, model.NewStatusError(model.InvalidArgument,
			"transactions require all reads to be executed before all writes")
	}
	docs, err := t.datastore.Lookup(ctx, keys)
	if err != nil {
		return nil, err
	}
	for _, doc := range docs {
		t.recordVersion(doc)
	}
	return docs, nil
}

func (t *Transaction) recordVersion(doc model.MaybeDocument) {
	version := model.VersionNone
	if d, ok := doc.(*model.Document); ok {
		version = d.Version()
	}
	if existing, ok := t.readVersions[doc.Key()]; ok && existing != version {
		// A second read observed a different version; the commit will be
		// rejected, surface it early.
		t.readVersions[doc.Key()] = -1
		return
	}
	t.readVersions[doc.Key()] = version
}

// Set stages a full-document write.
func (t *Transaction) Set(key model.DocumentKey, value model.ObjectValue) {
	t.write(model.NewSetMutation(key, value))
}

// Patch stages a merge write.
func (t *Transaction) Patch(key model.DocumentKey, value model.ObjectValue) {
	t.write(model.NewPatchMutation(key, value))
}

// Delete stages a deletion.
func (t *Transaction) Delete(key model.DocumentKey) {
	t.write(model.NewDeleteMutation(key))
}

func (t *Transaction) write(m model.Mutation) {
	if t.committed {
		panic("transaction: write after commit")
	}
	t.writes = append(t.writes, m)
	t.written.Add(m.Key())
}

// Commit sends the staged writes with the read versions as
// preconditions. The transaction is spent afterwards regardless of the
// outcome.
func (t *Transaction) Commit(ctx context.Context) error {
	if t.committed {
		return fmt.Errorf("transaction already committed")
	}
	t.committed = true

	preconditions := make(map[model.DocumentKey]model.SnapshotVersion, len(t.readVersions))
	for key, version := range t.readVersions {
		if version < 0 {
			return model.Statusf(model.Aborted, "document %s changed between reads", key)
		}
		preconditions[key] = version
	}

	_, err := t.datastore.Commit(ctx, &CommitRequest{
		Writes:        t.writes,
		Preconditions: preconditions,
	})
	return err
}
