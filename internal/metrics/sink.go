package metrics

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"syscall"
	"time"
)

// Sink records delivery engine metrics.
// All methods are fire-and-forget: implementations must not block or return errors.
type Sink interface {
	DeliveryAttemptCompleted(eventType, status, statusClass string, duration time.Duration)
	DispatchFanout(eventType string, subscriptions int)
	RetryScheduled(retryCount int)
	RetryScheduleFailed()
	RetryThrottled()
	RetryQueueDepth(depth int64)
}

// StatusClass values label each completed attempt.
const (
	StatusClass1xx             = "1xx"
	StatusClass2xx             = "2xx"
	StatusClass3xx             = "3xx"
	StatusClass4xx             = "4xx"
	StatusClass5xx             = "5xx"
	StatusClassTimeout         = "timeout"
	StatusClassDNS             = "dns_error"
	StatusClassConnectionError = "connection_error"
	StatusClassTLS             = "tls_error"
	StatusClassOtherError      = "other_error"
	StatusClassNone            = "none"
)

// ClassifyStatus maps a status code or transport error to a status class.
func ClassifyStatus(statusCode int, err error) string {
	if err != nil {
		return ClassifyError(err)
	}

	switch {
	case statusCode >= 100 && statusCode < 200:
		return StatusClass1xx
	case statusCode >= 200 && statusCode < 300:
		return StatusClass2xx
	case statusCode >= 300 && statusCode < 400:
		return StatusClass3xx
	case statusCode >= 400 && statusCode < 500:
		return StatusClass4xx
	case statusCode >= 500 && statusCode < 600:
		return StatusClass5xx
	case statusCode == 0:
		return StatusClassNone
	default:
		return StatusClassOtherError
	}
}

// ClassifyError maps a transport error to a status class.
func ClassifyError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return StatusClassTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return StatusClassTimeout
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return StatusClassDNS
	}

	var certErr *tls.CertificateVerificationError
	var unknownAuth x509.UnknownAuthorityError
	var hostErr x509.HostnameError
	var recordErr tls.RecordHeaderError
	if errors.As(err, &certErr) || errors.As(err, &unknownAuth) || errors.As(err, &hostErr) || errors.As(err, &recordErr) {
		return StatusClassTLS
	}

	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EHOSTUNREACH) || errors.Is(err, syscall.ENETUNREACH) {
		return StatusClassConnectionError
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return StatusClassConnectionError
	}

	return StatusClassOtherError
}
