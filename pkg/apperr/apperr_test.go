package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	base := errors.New("connection refused")
	err := SpreadsheetUnavailable("batch_create", base)

	want := "[SPREADSHEET_UNAVAILABLE] spreadsheet unavailable: batch_create: connection refused"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !errors.Is(err, base) {
		t.Error("expected Unwrap to reach base error")
	}
}

func TestHasCodeThroughWrapping(t *testing.T) {
	err := fmt.Errorf("save candidates: %w", TokenExpired("bitable"))

	if !HasCode(err, CodeTokenExpired) {
		t.Error("HasCode should see through fmt.Errorf wrapping")
	}
	if !IsTokenExpired(err) {
		t.Error("IsTokenExpired should match")
	}
	if IsSpreadsheetUnavailable(err) {
		t.Error("wrong code matched")
	}
}

func TestAsAppErrorFallback(t *testing.T) {
	plain := errors.New("boom")
	appErr := AsAppError(plain)
	if appErr.Code != CodeInternalError {
		t.Errorf("code = %q, want %q", appErr.Code, CodeInternalError)
	}
	if !errors.Is(appErr, plain) {
		t.Error("original error should be wrapped")
	}
}

func TestWithDetail(t *testing.T) {
	err := RateLimited("feishu").WithDetail("retry_after", 30)
	if err.Details["retry_after"] != 30 {
		t.Errorf("details = %v", err.Details)
	}
	if err.Details["service"] != "feishu" {
		t.Errorf("service detail = %v", err.Details["service"])
	}
}
