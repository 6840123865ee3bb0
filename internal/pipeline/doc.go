// Package pipeline drives the preparation of datasets.
//
// Each dataset is prepared by a Pipeline of Steps executed in order:
// resetting the Stage 1 directories, running Stage 1, checking the label
// table and resetting the cleaned image directory, running Stage 2 and
// summarizing the outputs. The Driver runs one such pipeline per requested
// dataset, strictly one after the other, and stops at the first failure.
//
// The steps of one dataset share a single model.DatasetRun. Values produced
// by a step, such as the Stage 1 image directory, are read from it by the
// steps that follow.
package pipeline
