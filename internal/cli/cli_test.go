package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/shaiso/Buffy/internal/domain"
)

// --- Output Tests ---

func TestOutput_Table(t *testing.T) {
	var stdout, stderr bytes.Buffer
	out := NewOutputTo(&stdout, &stderr, false)

	out.Print([]string{"ID", "URL"}, [][]string{{"1", "https://a"}}, nil)
	out.Success("done")

	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header, separator and one row, got %q", stdout.String())
	}
	if !strings.HasPrefix(lines[1], "--") || !strings.Contains(lines[2], "https://a") {
		t.Errorf("unexpected table:\n%s", stdout.String())
	}
	if stderr.String() != "done\n" {
		t.Errorf("messages should go to stderr, got %q", stderr.String())
	}
}

func TestOutput_JSON(t *testing.T) {
	var stdout bytes.Buffer
	out := NewOutputTo(&stdout, &bytes.Buffer{}, true)

	out.Fields([][2]string{{"Persisted", "3"}}, map[string]int{"persisted": 3})

	var got map[string]int
	if err := json.Unmarshal(stdout.Bytes(), &got); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if got["persisted"] != 3 {
		t.Errorf("unexpected payload: %v", got)
	}
}

// --- Rule Set File Tests ---

func TestParseRuleSets(t *testing.T) {
	single := `{"name": "go news", "rules": [{"id": 1, "name": "r", "match_type": "ALL",
		"conditions": [{"field_name": "TITLE", "comparison_type": "CONTAINS", "field_value": "go"}],
		"actions": [{"action_type": "MARK_AS_READ", "sequence": 1}]}]}`

	tests := []struct {
		name      string
		data      string
		wantNames []string
		wantErr   bool
	}{
		{"single object", single, []string{"go news"}, false},
		{"array", `[{"name": "a"}, {"name": "b"}]`, []string{"a", "b"}, false},
		{"leading whitespace", "\n  " + single, []string{"go news"}, false},
		{"empty file", "  ", nil, true},
		{"missing name", `[{"name": "a"}, {"rules": []}]`, nil, true},
		{"unknown action", `{"name": "x", "rules": [{"actions": [{"action_type": "DELETE"}]}]}`, nil, true},
		{"not json", `name = "x"`, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseRuleSets([]byte(tt.data))
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			var names []string
			for _, rs := range got {
				names = append(names, rs.Name)
			}
			if diff := cmp.Diff(tt.wantNames, names); diff != "" {
				t.Errorf("names mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

// --- Tier Tests ---

func TestTierTable(t *testing.T) {
	tests := []struct {
		hour int
		due  []bool
	}{
		{3, []bool{true, false, false, false}},
		{5, []bool{true, true, false, false}},
		{11, []bool{true, true, true, false}},
		{0, []bool{true, false, false, true}},
	}

	for _, tt := range tests {
		infos := tierTable(time.Date(2024, 3, 10, tt.hour, 0, 0, 0, time.UTC))

		var due []bool
		for _, info := range infos {
			due = append(due, info.Due)
		}
		if diff := cmp.Diff(tt.due, due); diff != "" {
			t.Errorf("hour %d: due mismatch (-want +got):\n%s", tt.hour, diff)
		}
	}

	infos := tierTable(time.Now())
	if infos[0].MaxMisses != "6" || infos[3].MaxMisses != "-" {
		t.Errorf("unexpected max misses: %+v", infos)
	}
}

func TestTierOutlook(t *testing.T) {
	misses := func(tier string, n int) []domain.SubscriptionMetrics {
		base := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
		out := make([]domain.SubscriptionMetrics, n)
		for i := range out {
			importCt := 1
			out[i] = domain.SubscriptionMetrics{
				ImportedAt:   base.Add(-time.Duration(i) * time.Hour),
				ScheduleTier: tier,
				ImportCt:     &importCt,
			}
		}
		return out
	}

	tests := []struct {
		name    string
		tier    domain.ScheduleTier
		metrics []domain.SubscriptionMetrics
		want    string
	}{
		{"within allowance", domain.TierA, misses("A", 2), "Tier A: 2 of 6 allowed consecutive misses"},
		{"downgrade due", domain.TierB, misses("B", 3), "Tier B: 3 consecutive misses, next update downgrades to C"},
		{"slowest tier", domain.TierD, misses("D", 9), "Tier D: 9 consecutive misses, slowest tier"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tierOutlook(tt.tier, tt.metrics); got != tt.want {
				t.Errorf("tierOutlook() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMetricsRows(t *testing.T) {
	importCt := 4
	errType := "HTTP_ERROR"
	at := time.Date(2024, 3, 10, 5, 0, 0, 0, time.UTC)

	rows := metricsRows([]domain.SubscriptionMetrics{
		{ImportedAt: at, ScheduleTier: "B", ImportCt: &importCt, PersistCt: 3, SkipCt: 1},
		{ImportedAt: at, ScheduleTier: "B", ErrorType: &errType},
	})

	want := [][]string{
		{"2024-03-10T05:00:00Z", "B", "4", "3", "1", "0", "-"},
		{"2024-03-10T05:00:00Z", "B", "-", "0", "0", "0", "HTTP_ERROR"},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
}
