package perfbuf

// RecordKind identifies the wire format of one frame in a ring.
type RecordKind uint32

const (
	// KindData carries an opaque event payload.
	KindData RecordKind = 1
	// KindLost carries a count of events the producer could not store.
	KindLost RecordKind = 2
)

// Callbacks is the delivery surface for one logical buffer. It is supplied
// once at Open time, shared by every per-CPU ring of that buffer, and must
// not be mutated afterwards. Any state the callbacks share with other
// goroutines (for example a tunable delay) belongs in Cookie behind
// atomic accessors.
type Callbacks struct {
	// Cookie is passed through to both callbacks unchanged.
	Cookie any

	// OnSample receives the payload of one DATA frame. The slice is only
	// valid for the duration of the call; copy it to retain it.
	OnSample func(cookie any, data []byte)

	// OnLost receives the count from one LOST record.
	OnLost func(cookie any, lost uint64)
}

// RingSource provides the OS handles backing one per-CPU ring: a mappable
// region descriptor and a readiness descriptor the producer signals after
// publishing. Real deployments back this with perf_event descriptors owned
// by the program-loading subsystem; MemfdSource serves same-process use.
type RingSource interface {
	CreateRing(cpu, pageCount int) (memFD, eventFD int, err error)
}

// Frame is the consumed view of one record, produced per decode call.
type Frame struct {
	Kind    RecordKind
	Payload []byte // DATA only; may alias ring memory or a scratch buffer
	Lost    uint64 // LOST only
}
