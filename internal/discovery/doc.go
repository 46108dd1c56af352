// Package discovery finds the left/right image pairs a batch run processes.
//
// Pairs come either from two glob patterns or from a manifest file listing
// "Left"/"Right" frame indices under a fixed root. Each side is sorted on its
// own by the integers embedded in the file paths, then the two lists are
// zipped by position. Strict zipping rejects lists of different length;
// the lenient mode keeps the historical behavior of silently stopping at the
// shorter list, which can misalign pairs when the two directories hold
// different frame sets.
package discovery
