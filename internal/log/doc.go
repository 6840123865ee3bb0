// Package log provides logging that keeps patient identifiers and secrets out
// of the output, built on top of the standard slog package.
//
// # Redaction
//
// The SecureHandler masks attribute values before they reach the wrapped
// handler:
//   - Patient and study identifiers by key (patient_id, mrn, accession_number)
//   - DICOM UIDs by value, whatever the key
//   - Credentials by key (password, token, api_key) or by value (bearer, JWT)
//
// Stage commands run with arbitrary environments and print arbitrary
// output, so values are masked even in verbose mode.
//
// # Usage
//
//	logger := log.NewSecureLogger(os.Stderr, verbose)
//	logger.Info("stage1 finished", "dataset", "cmmd", "patient_id", "D1-0001")
//	// patient_id=***REDACTED***
package log
