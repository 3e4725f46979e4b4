package process

import "strings"

// Bucket groups states for list filtering and dashboards. It is not a
// workflow state.
type Bucket string

const (
	BucketPending   Bucket = "pending"
	BucketReceived  Bucket = "received"
	BucketTesting   Bucket = "testing"
	BucketCompleted Bucket = "completed"
)

var Buckets = []Bucket{BucketPending, BucketReceived, BucketTesting, BucketCompleted}

// legacyCompleted is the result-report label older records still carry.
const legacyCompleted = "รายงานผล"

// Classify maps a stored process value to its bucket. Empty and
// unrecognised values are pending.
func Classify(raw string) Bucket {
	if strings.TrimSpace(raw) == legacyCompleted {
		return BucketCompleted
	}
	p, err := Parse(raw)
	if err != nil {
		return BucketPending
	}
	switch p {
	case Drawn, InTransit:
		return BucketReceived
	case Testing:
		return BucketTesting
	case Completed:
		return BucketCompleted
	default:
		return BucketPending
	}
}

// InBucket returns the states that classify into b.
func InBucket(b Bucket) []Process {
	var out []Process
	for _, p := range Ordered {
		if Classify(string(p)) == b {
			out = append(out, p)
		}
	}
	return out
}

func ParseBucket(raw string) (Bucket, bool) {
	b := Bucket(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range Buckets {
		if b == known {
			return b, true
		}
	}
	return "", false
}
