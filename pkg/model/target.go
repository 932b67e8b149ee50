package model

// TargetID identifies a server-side subscription. IDs are positive;
// parity encodes the allocator: the local store hands out even IDs for
// user listens, the sync engine odd IDs for limbo resolutions. The two
// ranges never overlap, so an ID unambiguously names its origin.
type TargetID int32

// QueryPurpose describes why a target exists.
type QueryPurpose int

const (
	// PurposeListen is an ordinary user-initiated listen.
	PurposeListen QueryPurpose = iota
	// PurposeLimboResolution is a single-document lookup resolving a
	// limbo document.
	PurposeLimboResolution
	// PurposeExistenceFilterMismatch re-runs a query whose existence
	// filter disagreed with the local result set.
	PurposeExistenceFilterMismatch
)

func (p QueryPurpose) String() string {
	switch p {
	case PurposeListen:
		return "listen"
	case PurposeLimboResolution:
		return "limbo-resolution"
	case PurposeExistenceFilterMismatch:
		return "existence-filter-mismatch"
	default:
		return "unknown"
	}
}

// SequenceNumberInvalid marks targets that do not participate in LRU
// garbage collection, such as limbo resolutions.
const SequenceNumberInvalid int64 = -1

// QueryData is the local store's record of an allocated target.
type QueryData struct {
	Query          Query
	TargetID       TargetID
	SequenceNumber int64
	Purpose        QueryPurpose
}

// TargetIDGenerator allocates target IDs from one of the two disjoint
// parity ranges.
type TargetIDGenerator struct {
	next TargetID
}

// NewLocalStoreTargetIDGenerator allocates the even range 2, 4, 6, …
func NewLocalStoreTargetIDGenerator() *TargetIDGenerator {
	return &TargetIDGenerator{next: 2}
}

// NewSyncEngineTargetIDGenerator allocates the odd range 1, 3, 5, …
func NewSyncEngineTargetIDGenerator() *TargetIDGenerator {
	return &TargetIDGenerator{next: 1}
}

// Next returns the next ID in the generator's range.
func (g *TargetIDGenerator) Next() TargetID {
	id := g.next
	g.next += 2
	return id
}
