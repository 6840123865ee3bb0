// Package config provides the run configuration for clsprep.
// It defines the options that select which datasets are prepared, where raw
// and cleaned data live, how Stage 2 is parallelised and how the optional
// settings file supplies defaults and external stage commands.
package config
