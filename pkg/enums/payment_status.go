package enums

import "strings"

// CaptureStatus is the status string the payment gateway reports for a
// capture. Only COMPLETED means the funds were taken.
type CaptureStatus string

const (
	CaptureStatusCompleted CaptureStatus = "COMPLETED"
	CaptureStatusPending   CaptureStatus = "PENDING"
	CaptureStatusDeclined  CaptureStatus = "DECLINED"
	CaptureStatusFailed    CaptureStatus = "FAILED"
)

// String implements fmt.Stringer.
func (c CaptureStatus) String() string {
	return string(c)
}

// IsCaptured reports whether the status means funds were captured.
func (c CaptureStatus) IsCaptured() bool {
	return CaptureStatus(strings.ToUpper(strings.TrimSpace(string(c)))) == CaptureStatusCompleted
}
