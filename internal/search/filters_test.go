package search

import (
	"errors"
	"testing"
)

func TestParseFiltersRoutesKeysPerEntity(t *testing.T) {
	f, err := ParseFilters(map[string]string{
		"systemType":       "ml_model",
		"lifecycleStatus":  "production",
		"riskTier":         "high",
		"status":           "in_progress",
		"frameworkId":      "nist_ai_rmf",
		"category":         "privacy",
		"treatmentStatus":  "open",
		"minResidualScore": "12.5",
		"reviewStatus":     "approved",
		"mimeType":         "pdf",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.System.SystemType != "ml_model" || f.System.RiskTier != "high" {
		t.Fatalf("system filters not routed: %+v", f.System)
	}
	if f.Assessment.Status != "in_progress" || f.Assessment.FrameworkID != "nist_ai_rmf" {
		t.Fatalf("assessment filters not routed: %+v", f.Assessment)
	}
	if f.Risk.MinResidualScore == nil || *f.Risk.MinResidualScore != 12.5 {
		t.Fatalf("minResidualScore not parsed: %+v", f.Risk)
	}
	if f.Evidence.MimeType != "pdf" || f.Evidence.ReviewStatus != "approved" {
		t.Fatalf("evidence filters not routed: %+v", f.Evidence)
	}
}

func TestParseFiltersRejectsMalformedNumber(t *testing.T) {
	_, err := ParseFilters(map[string]string{"minResidualScore": "high"})
	var filterErr *FilterError
	if !errors.As(err, &filterErr) {
		t.Fatalf("expected *FilterError, got %v", err)
	}
	if filterErr.Key != "minResidualScore" {
		t.Fatalf("unexpected key: %q", filterErr.Key)
	}
}

func TestParseFiltersRejectsUnknownKey(t *testing.T) {
	_, err := ParseFilters(map[string]string{"bogus": "value"})
	var filterErr *FilterError
	if !errors.As(err, &filterErr) {
		t.Fatalf("expected *FilterError, got %v", err)
	}
	if filterErr.Key != "bogus" {
		t.Fatalf("unexpected key: %q", filterErr.Key)
	}
}

func TestParseFiltersSkipsEmptyValues(t *testing.T) {
	f, err := ParseFilters(map[string]string{"systemType": "", "minResidualScore": ""})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.System.SystemType != "" || f.Risk.MinResidualScore != nil {
		t.Fatalf("empty values should be ignored: %+v", f)
	}
}
