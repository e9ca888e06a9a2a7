package http

import (
	"errors"
	"net/url"
	"testing"

	"trendai/internal/core"
)

func TestParseCriteria(t *testing.T) {
	tests := []struct {
		name    string
		query   url.Values
		want    core.Criteria
		wantMax int64
		wantErr bool
	}{
		{
			name:  "empty query selects everything",
			query: url.Values{},
			want:  core.Criteria{},
		},
		{
			name: "all values provided",
			query: url.Values{
				"post_year": {"2024"}, "post_month": {"6"},
				"follower_min": {"100"}, "follower_max": {"5000"},
				"category_l1": {" top "}, "category_l3": {"shirt"},
				"mood_category": {"casual"}, "mood_look": {"street"},
			},
			want: core.Criteria{
				Year: 2024, Month: 6, FollowerMin: 100,
				CategoryL1: "top", CategoryL3: "shirt",
				MoodCategory: "casual", MoodLook: "street",
			},
			wantMax: 5000,
		},
		{
			name:  "all means unset",
			query: url.Values{"post_year": {"all"}, "post_month": {"ALL"}, "category_l1": {"all"}},
			want:  core.Criteria{},
		},
		{
			name:  "follower_count is an alias of follower_min",
			query: url.Values{"follower_count": {"300"}},
			want:  core.Criteria{FollowerMin: 300},
		},
		{
			name:  "follower_min wins over the alias",
			query: url.Values{"follower_min": {"10"}, "follower_count": {"300"}},
			want:  core.Criteria{FollowerMin: 10},
		},
		{
			name:  "control characters are stripped",
			query: url.Values{"category_l1": {"to\x00p"}},
			want:  core.Criteria{CategoryL1: "top"},
		},
		{name: "non numeric year", query: url.Values{"post_year": {"abc"}}, wantErr: true},
		{name: "month out of range", query: url.Values{"post_month": {"13"}}, wantErr: true},
		{name: "negative followers", query: url.Values{"follower_min": {"-1"}}, wantErr: true},
		{name: "inverted follower range", query: url.Values{"follower_min": {"10"}, "follower_max": {"5"}}, wantErr: true},
		{name: "bad follower max", query: url.Values{"follower_max": {"lots"}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCriteria(tt.query)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if tt.wantMax != 0 {
				if got.FollowerMax == nil || *got.FollowerMax != tt.wantMax {
					t.Fatalf("FollowerMax = %v, want %d", got.FollowerMax, tt.wantMax)
				}
			} else if got.FollowerMax != nil {
				t.Fatalf("FollowerMax = %d, want nil", *got.FollowerMax)
			}
			got.FollowerMax = nil
			if got != tt.want {
				t.Errorf("ParseCriteria() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParsePeriod(t *testing.T) {
	tests := []struct {
		name    string
		query   url.Values
		want    core.Period
		wantErr error
	}{
		{name: "valid", query: url.Values{"post_year": {"2024"}, "post_month": {"2"}}, want: core.Period{Year: 2024, Month: 2}},
		{name: "missing year", query: url.Values{"post_month": {"2"}}, wantErr: core.ErrInvalidYear},
		{name: "missing month", query: url.Values{"post_year": {"2024"}}, wantErr: core.ErrInvalidMonth},
		{name: "month too large", query: url.Values{"post_year": {"2024"}, "post_month": {"13"}}, wantErr: core.ErrInvalidMonth},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePeriod(tt.query)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				var pe *ParamError
				if !errors.As(err, &pe) {
					t.Fatalf("expected *ParamError, got %T", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Fatalf("ParsePeriod() = %+v, %v", got, err)
			}
		})
	}
}

func TestParseFoldParams(t *testing.T) {
	p, err := ParseFoldParams(url.Values{})
	if err != nil || p.MaxItems != 0 || p.Threshold != 0 {
		t.Fatalf("defaults must not fold, got %+v, %v", p, err)
	}

	p, err = ParseFoldParams(url.Values{"max_items": {"0"}})
	if err != nil || p.MaxItems != 0 {
		t.Fatalf("explicit zero = %+v, %v", p, err)
	}

	p, err = ParseFoldParams(url.Values{"max_items": {"5"}, "threshold": {"3"}})
	if err != nil || p.MaxItems != 5 || p.Threshold != 3 {
		t.Fatalf("explicit = %+v, %v", p, err)
	}

	for _, q := range []url.Values{
		{"max_items": {"-1"}},
		{"max_items": {"x"}},
		{"threshold": {"-2"}},
	} {
		if _, err := ParseFoldParams(q); err == nil {
			t.Errorf("expected error for %v", q)
		}
	}
}

func TestParseLimit(t *testing.T) {
	tests := []struct {
		value   string
		want    int
		wantErr bool
	}{
		{"", 0, false},
		{"all", 0, false},
		{"12", 12, false},
		{"0", 0, true},
		{"501", 0, true},
		{"many", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseLimit(url.Values{"limit": {tt.value}})
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseLimit(%q) = %d, %v", tt.value, got, err)
		}
	}
}

func TestRequireParamAndParseBool(t *testing.T) {
	q := url.Values{"value": {" red "}, "blank": {"  "}, "flag": {"TRUE"}}

	if v, err := RequireParam(q, "value"); err != nil || v != "red" {
		t.Fatalf("RequireParam(value) = %q, %v", v, err)
	}
	if _, err := RequireParam(q, "blank"); !errors.Is(err, errMissingParam) {
		t.Fatalf("expected missing param error, got %v", err)
	}
	if !ParseBool(q, "flag") || ParseBool(q, "value") || ParseBool(q, "absent") {
		t.Fatal("ParseBool mismatch")
	}
}

func TestSanitizeInput(t *testing.T) {
	tests := []struct{ in, want string }{
		{"  plain  ", "plain"},
		{"tab\tkept", "tab\tkept"},
		{"bell\x07gone", "bellgone"},
		{"기타", "기타"},
	}
	for _, tt := range tests {
		if got := sanitizeInput(tt.in); got != tt.want {
			t.Errorf("sanitizeInput(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
