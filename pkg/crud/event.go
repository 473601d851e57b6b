package crud

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/bitechdev/autoquery/pkg/common"
	"github.com/bitechdev/autoquery/pkg/reflection"
	"github.com/bitechdev/autoquery/pkg/script"
)

// Event is the audit record of one mutation.
type Event struct {
	ID          string    `json:"id" bun:"id,pk"`
	EventType   Operation `json:"eventType" bun:"event_type"`
	Model       string    `json:"model" bun:"model"`
	RequestType string    `json:"requestType" bun:"request_type"`
	// RequestBody is the request as JSON, with a generated key stamped in.
	RequestBody  string    `json:"requestBody" bun:"request_body"`
	RefID        string    `json:"refId,omitempty" bun:"ref_id"`
	UserAuthID   string    `json:"userAuthId,omitempty" bun:"user_auth_id"`
	UserAuthName string    `json:"userAuthName,omitempty" bun:"user_auth_name"`
	RowsAffected int64     `json:"rowsAffected" bun:"rows_affected"`
	EventDate    time.Time `json:"eventDate" bun:"event_date"`
}

// EventSink records events inside the mutation's transaction. A failing
// Record rolls the mutation back.
type EventSink interface {
	Record(ctx context.Context, tx common.Database, event *Event) error
}

// Publisher receives events after they were committed. Failures are logged
// and never undo the mutation.
type Publisher interface {
	Publish(ctx context.Context, event *Event) error
}

type ignoreEventKey struct{}
type replayIDKey struct{}

// WithIgnoreEvent marks mutations run with ctx as not to be recorded.
func WithIgnoreEvent(ctx context.Context) context.Context {
	return context.WithValue(ctx, ignoreEventKey{}, true)
}

// IgnoreEvent reports whether ctx suppresses event recording.
func IgnoreEvent(ctx context.Context) bool {
	v, _ := ctx.Value(ignoreEventKey{}).(bool)
	return v
}

// WithReplayID supplies the primary key a replayed create must reuse.
func WithReplayID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, replayIDKey{}, id)
}

// ReplayID returns the primary key set by WithReplayID.
func ReplayID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(replayIDKey{}).(string)
	return id, ok && id != ""
}

func newEvent(ctx context.Context, x *Execution) (*Event, error) {
	body, err := json.Marshal(x.Request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	meta := x.Metadata
	pk := meta.Model.PrimaryKey
	if meta.PrimaryKey != nil {
		pk = meta.PrimaryKey.Field
	}
	if x.ID != nil && pk != nil {
		// Stamp a generated key so a replayed create reuses it.
		path := jsonName(pk)
		if r := gjson.GetBytes(body, path); !r.Exists() || reflection.IsZero(r.Value()) {
			if body, err = sjson.SetBytes(body, path, x.ID); err != nil {
				return nil, fmt.Errorf("failed to stamp primary key: %w", err)
			}
		}
	}

	rc := script.FromContext(ctx)
	ev := &Event{
		ID:           uuid.NewString(),
		EventType:    x.Operation,
		Model:        meta.Model.Table,
		RequestType:  meta.Name,
		RequestBody:  string(body),
		UserAuthID:   rc.UserAuthID,
		UserAuthName: rc.UserAuthName,
		RowsAffected: x.RowsAffected,
		EventDate:    time.Now().UTC(),
	}
	if x.ID != nil {
		ev.RefID = fmt.Sprint(x.ID)
	}
	return ev, nil
}

// jsonName is the key encoding/json uses for a struct field.
func jsonName(f *reflection.FieldMetadata) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "" || name == "-" {
		return f.Name
	}
	return name
}

// refFromBody reads the primary key of a recorded request body.
func refFromBody(body string, pk *reflection.FieldMetadata) string {
	if pk == nil {
		return ""
	}
	r := gjson.Get(body, jsonName(pk))
	if !r.Exists() || r.Type == gjson.Null {
		return ""
	}
	return r.String()
}
