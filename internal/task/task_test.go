package task

import "testing"

func TestParseResultDiscriminated(t *testing.T) {
	raw := `{"result_type":"coding","summary":"did the thing","patch":"diff --git a/x b/x","base_commit":"abc123"}`
	r := ParseResult(raw, KindReview)
	if r.ResultType != "coding" || r.Summary != "did the thing" || r.Patch == "" {
		t.Fatalf("unexpected parse: %+v", r)
	}
}

func TestParseResultFallsBackToReview(t *testing.T) {
	r := ParseResult("not json at all", KindReview)
	if r.ResultType != string(KindReview) || r.Summary != "not json at all" {
		t.Fatalf("unexpected fallback: %+v", r)
	}
}

func TestParseResultFallsBackToCoding(t *testing.T) {
	r := ParseResult("plain text summary", KindCoding)
	if r.ResultType != string(KindCoding) || r.Summary != "plain text summary" || r.Patch != "" {
		t.Fatalf("unexpected fallback: %+v", r)
	}
}

func TestParseResultIgnoresJSONWithoutDiscriminator(t *testing.T) {
	raw := `{"foo":"bar"}`
	r := ParseResult(raw, KindReview)
	if r.ResultType != string(KindReview) || r.Summary != raw {
		t.Fatalf("expected raw JSON without result_type to be wrapped verbatim, got %+v", r)
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	r := NewCodingResult("summary", "patch-body", "deadbeef")
	s, err := Serialize(r)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	parsed := ParseResult(s, KindCoding)
	if parsed != r {
		t.Fatalf("round trip mismatch: got %+v want %+v", parsed, r)
	}
}
