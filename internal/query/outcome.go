package query

// Outcome is the terminal result of one query run: Success, Empty or Failure.
type Outcome interface {
	isOutcome()
}

// Success carries at least one row.
type Success struct {
	Columns []string
	Rows    [][]any
}

// Empty means the query succeeded and matched nothing.
type Empty struct{}

// FailureReason classifies a Failure.
type FailureReason int

const (
	// ReasonError covers connection, query and scan errors.
	ReasonError FailureReason = iota
	// ReasonTimeout means the configured query timeout expired.
	ReasonTimeout
	// ReasonCanceled means a newer submission replaced this one.
	ReasonCanceled
)

func (r FailureReason) String() string {
	switch r {
	case ReasonTimeout:
		return "timeout"
	case ReasonCanceled:
		return "canceled"
	default:
		return "error"
	}
}

// Failure carries the driver's message.
type Failure struct {
	Message string
	Reason  FailureReason
}

func (Success) isOutcome() {}
func (Empty) isOutcome()   {}
func (Failure) isOutcome() {}
