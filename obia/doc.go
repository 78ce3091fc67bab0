// Package obia implements object-based image analysis over a collection of
// polygon image objects: neighbor graph maintenance, threshold and adjacency
// rules, rule-based classification and incremental region merging.
//
// Geometry is supplied by the caller through the Geometry interface; the
// package itself never reads or writes rasters or vector files. The root
// obialib package provides an OGR-backed Geometry and shapefile I/O, and
// package geomtest provides a grid-cell Geometry for fixtures.
//
// An ImageObjects collection is not safe for concurrent use. All mutation
// happens on the caller's goroutine and merge order is deterministic for a
// given input.
package obia
