// Package model defines the records produced while preparing datasets.
//
// This package contains the following main types:
//   - DatasetRun: The outcome of preparing one dataset
//   - RunSummary: The ordered outcomes of one invocation
//
// The pipeline fills these records. The database and report packages read them.
package model
