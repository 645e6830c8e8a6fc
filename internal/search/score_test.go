package search

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestScoreExactMatchSingleField(t *testing.T) {
	got := Score("Fraud Detector", []string{"Fraud Detector"})
	if !almostEqual(got, 100) {
		t.Fatalf("expected 100, got %v", got)
	}
}

func TestScoreExactMatchIsCaseInsensitive(t *testing.T) {
	got := Score("FRAUD DETECTOR", []string{"fraud detector"})
	if !almostEqual(got, 100) {
		t.Fatalf("expected 100, got %v", got)
	}
}

func TestScoreDecayWithTrailingEmptyField(t *testing.T) {
	// 100 after field 0 (decay 2/2), then the empty field contributes
	// nothing but still halves the running total (decay 1/2).
	got := Score("Fraud Detector", []string{"Fraud Detector", ""})
	if !almostEqual(got, 50) {
		t.Fatalf("expected 50, got %v", got)
	}
}

func TestScoreSubstringPlusWordCredit(t *testing.T) {
	// Not exact, contains the whole query (+50) and the single query word
	// (+10), one field so no decay.
	got := Score("fraud", []string{"Fraud Detection Model"})
	if !almostEqual(got, 60) {
		t.Fatalf("expected 60, got %v", got)
	}
}

func TestScoreWordCreditOnly(t *testing.T) {
	// "fraud detection" is not a substring of "Detects fraud"; only the word
	// "fraud" matches.
	got := Score("fraud detection", []string{"Detects fraud"})
	if !almostEqual(got, 10) {
		t.Fatalf("expected 10, got %v", got)
	}
}

func TestScoreCompoundingDecayAcrossFields(t *testing.T) {
	// Exact match in every field: ((100*3/3+100)*2/3+100)*1/3 = 700/9.
	got := Score("model", []string{"model", "model", "model"})
	if !almostEqual(got, 700.0/9.0) {
		t.Fatalf("expected %v, got %v", 700.0/9.0, got)
	}
}

func TestScoreTitleMatchOutranksLaterFieldMatch(t *testing.T) {
	title := Score("fraud detector", []string{"fraud detector", "", ""})
	later := Score("fraud detector", []string{"inventory", "contains fraud detector text", ""})
	if title <= later {
		t.Fatalf("title match %v should outrank later-field match %v", title, later)
	}
}

func TestScoreEmptyInputs(t *testing.T) {
	if got := Score("", []string{"anything"}); got != 0 {
		t.Fatalf("empty query: expected 0, got %v", got)
	}
	if got := Score("   ", []string{"anything"}); got != 0 {
		t.Fatalf("blank query: expected 0, got %v", got)
	}
	if got := Score("query", nil); got != 0 {
		t.Fatalf("no fields: expected 0, got %v", got)
	}
	if got := Score("query", []string{"", ""}); got != 0 {
		t.Fatalf("empty fields: expected 0, got %v", got)
	}
}

func TestScoreNeverNegative(t *testing.T) {
	if got := Score("nothing matches", []string{"alpha", "beta", "gamma"}); got < 0 {
		t.Fatalf("expected non-negative, got %v", got)
	}
}
