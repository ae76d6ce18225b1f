package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCollectorRecordsAndServes(t *testing.T) {
	c := NewCollector()
	c.RecordScoring(10, 3, 75)
	c.RecordScoring(8, 0, 100)
	c.RecordVersionCreated()

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 200 {
		t.Fatalf("status=%d", rec.Code)
	}
	body := rec.Body.String()

	for _, want := range []string{
		"scoring_documents_total 2",
		"scoring_rules_evaluated_total 18",
		"scoring_rules_triggered_total 3",
		"scoring_rule_versions_created_total 1",
		"scoring_final_score_count 2",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %q in:\n%s", want, body)
		}
	}
}
