package observability

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewLogger_Formats(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(&buf, "prod", "json")
	l.Info().Str("review_id", "r1").Msg("hello")
	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("json output expected: %v (%s)", err, buf.String())
	}
	if m["review_id"] != "r1" || m["message"] != "hello" {
		t.Fatalf("unexpected fields: %v", m)
	}

	buf.Reset()
	l = newLogger(&buf, "prod", "ecs")
	l.Info().Msg("hello")
	if !strings.Contains(buf.String(), `"ecs.version"`) {
		t.Fatalf("expected ecs fields, got %s", buf.String())
	}

	buf.Reset()
	l = newLogger(&buf, "dev", "")
	l.Info().Msg("hello")
	if json.Valid(bytes.TrimSpace(buf.Bytes())) {
		t.Fatalf("dev logger should write console output, got %s", buf.String())
	}
}
