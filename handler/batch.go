package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	apperrors "fnkit/errors"
)

// Envelope is the application-level event carried in a record body.
type Envelope struct {
	ID   string          `json:"id,omitempty"`
	Type string          `json:"type,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Deserializer turns a record body into an Envelope.
type Deserializer func(record Record) (Envelope, error)

// JSONDeserializer decodes {"id", "type", "data"} envelopes. A JSON body
// without a "data" member is passed through whole as the data.
func JSONDeserializer(record Record) (Envelope, error) {
	body := bytes.TrimSpace(record.Body)
	if !json.Valid(body) {
		return Envelope{}, fmt.Errorf("record %s: body is not valid JSON", record.ID)
	}

	var probe struct {
		ID   string          `json:"id"`
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if body[0] == '{' {
		if err := json.Unmarshal(body, &probe); err == nil && len(probe.Data) > 0 {
			return Envelope{ID: probe.ID, Type: probe.Type, Data: probe.Data}, nil
		}
	}

	env := Envelope{Data: json.RawMessage(body)}
	if t, ok := record.Attributes["type"]; ok {
		env.Type = t
	}
	if id, ok := record.Attributes["id"]; ok {
		env.ID = id
	}
	return env, nil
}

// BatchEvent returns a terminal handler that fans a batch delivery out to
// perRecord. Records are handled strictly sequentially in delivery order and
// every record is attempted; a failing record never stops the batch. When
// any record fails the handler returns an aggregate BATCH_FAILED error with
// one failure per failing record, carrying record_id and, when known,
// event_id. Otherwise it returns 200 with {"processed": N}.
func BatchEvent(perRecord HandlerFunc, deserializer Deserializer) HandlerFunc {
	if deserializer == nil {
		deserializer = JSONDeserializer
	}

	return func(ctx context.Context, inv *Invocation) (Response, error) {
		records := inv.Event.Records
		var failures []apperrors.Failure

		for _, record := range records {
			data := map[string]any{"record_id": record.ID}

			env, err := deserializer(record)
			if err != nil {
				malformed := apperrors.Application(apperrors.CodeMalformedEvent,
					"record body could not be deserialized", http.StatusBadRequest).WithCause(err)
				failures = append(failures, apperrors.FailureFrom(malformed, data))
				continue
			}
			if env.ID != "" {
				data["event_id"] = env.ID
			}

			child := inv.child(recordEvent(inv.Event, record, env))
			if err := callRecord(ctx, perRecord, child); err != nil {
				failures = append(failures, apperrors.FailureFrom(err, data))
			}
		}

		if len(failures) > 0 {
			return Response{}, apperrors.Aggregate(apperrors.CodeBatchFailed,
				fmt.Sprintf("%d of %d records failed", len(failures), len(records)), failures)
		}
		return JSON(http.StatusOK, map[string]int{"processed": len(records)})
	}
}

// recordEvent scopes an event to a single record. Authorizer claims and the
// principal accessor are inherited from the batch.
func recordEvent(parent *Event, record Record, env Envelope) *Event {
	id := env.ID
	if id == "" {
		id = record.ID
	}

	metadata := make(map[string]string, len(record.Attributes)+1)
	for k, v := range record.Attributes {
		metadata[k] = v
	}
	metadata["record_id"] = record.ID

	return &Event{
		ID:         id,
		Source:     parent.Source,
		Type:       env.Type,
		Body:       env.Data,
		Metadata:   metadata,
		Authorizer: parent.Authorizer,
		Timestamp:  time.Now().UTC(),
		principal:  parent.principal,
	}
}

// callRecord runs one record handler, turning a panic into that record's
// failure.
func callRecord(ctx context.Context, perRecord HandlerFunc, inv *Invocation) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperrors.Internal("record handler panicked", fmt.Errorf("panic: %v", r))
		}
	}()
	_, err = perRecord(ctx, inv)
	return err
}
