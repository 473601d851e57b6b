package autoquery

// Query is implemented by request types that embed QueryBase.
type Query interface {
	queryBase() *QueryBase
}

// QueryBase carries the paging, ordering and shaping parameters every query
// request accepts. Embed it in a request struct.
type QueryBase struct {
	Skip        *int              `json:"skip,omitempty"`
	Take        *int              `json:"take,omitempty"`
	OrderBy     string            `json:"orderBy,omitempty"`
	OrderByDesc string            `json:"orderByDesc,omitempty"`
	Include     string            `json:"include,omitempty"`
	Fields      string            `json:"fields,omitempty"`
	Meta        map[string]string `json:"meta,omitempty"`
}

func (q *QueryBase) queryBase() *QueryBase { return q }

// QueryResponse is the shaped result of a query.
type QueryResponse[T any] struct {
	Offset  int               `json:"offset"`
	Total   int               `json:"total"`
	Results []T               `json:"results"`
	Meta    map[string]string `json:"meta,omitempty"`
}

// ResetProperty is the request field listing columns to reset on a patch.
const ResetProperty = "Reset"

// IntPtr is a convenience for filling Skip and Take.
func IntPtr(v int) *int { return &v }

func baseOf(req any) *QueryBase {
	if q, ok := req.(Query); ok {
		return q.queryBase()
	}
	return nil
}
