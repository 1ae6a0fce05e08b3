package readingroom

type ErrorKind string

const (
	KindNotFound   ErrorKind = "not_found"
	KindRealtime   ErrorKind = "realtime"
	KindMigration  ErrorKind = "migration"
	KindValidation ErrorKind = "validation"
	KindTransient  ErrorKind = "transient"
)

const msgSessionNotFound = "session not found or inactive"

// StoreError is the user-facing failure of the last store operation. Store
// methods report expected failures here instead of returning them.
type StoreError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func (e *StoreError) Error() string {
	return string(e.Kind) + ": " + e.Message
}

// Change flags what moved since the last notification. Pending flags are
// merged while nobody is reading.
type Change uint8

const (
	ChangeState Change = 1 << iota
	ChangeParticipants
	ChangeStatus
)

func (c Change) Has(flag Change) bool {
	return c&flag != 0
}
