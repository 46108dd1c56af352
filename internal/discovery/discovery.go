package discovery

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

var (
	// ErrPairCountMismatch is matched by a *PairCountMismatchError.
	ErrPairCountMismatch = errors.New("left and right image counts differ")

	// ErrMalformedManifest is returned for manifest lines without a view and an index.
	ErrMalformedManifest = errors.New("malformed manifest line")
)

// Pair is one stereo input: the left and right image paths.
type Pair struct {
	Left  string
	Right string
}

// PairCountMismatchError reports how many images were found on each side.
type PairCountMismatchError struct {
	Left  int
	Right int
}

func (e *PairCountMismatchError) Error() string {
	return fmt.Sprintf("%v: %d left, %d right", ErrPairCountMismatch, e.Left, e.Right)
}

func (e *PairCountMismatchError) Unwrap() error {
	return ErrPairCountMismatch
}

// Glob expands the left and right patterns ("**" matches any number of
// directories) and sorts each list independently by the integers embedded in
// its paths.
func Glob(leftPattern, rightPattern string) (left, right []string, err error) {
	left, err = globSorted(leftPattern)
	if err != nil {
		return nil, nil, err
	}
	right, err = globSorted(rightPattern)
	if err != nil {
		return nil, nil, err
	}
	return left, right, nil
}

func globSorted(pattern string) ([]string, error) {
	// Hidden files only match pattern segments that start with a dot.
	matches, err := doublestar.FilepathGlob(pattern, doublestar.WithNoHidden())
	if err != nil {
		return nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
	}
	sort.Strings(matches)
	SortNumeric(matches)
	return matches, nil
}

// ReadManifest opens a manifest file and resolves it with ParseManifest.
func ReadManifest(path, root string) (left, right []string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open manifest: %w", err)
	}
	defer f.Close()
	return ParseManifest(f, root)
}

// ParseManifest reads "<view> <index>" lines. A "Left" view resolves to
// <root>/Left/rgb_<index>.PNG, any other view to <root>/Right/rgb_<index>.PNG.
// The index is used exactly as written. Blank lines are skipped.
func ParseManifest(r io.Reader, root string) (left, right []string, err error) {
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) < 2 {
			return nil, nil, fmt.Errorf("%w %d: %q", ErrMalformedManifest, lineNo, scanner.Text())
		}
		view, index := fields[0], fields[1]
		if view == "Left" {
			left = append(left, ManifestPath(root, "Left", index))
		} else {
			right = append(right, ManifestPath(root, "Right", index))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	SortNumeric(left)
	SortNumeric(right)
	return left, right, nil
}

// ManifestPath builds the image path for one manifest entry.
func ManifestPath(root, view, index string) string {
	return filepath.Join(root, view, "rgb_"+index+".PNG")
}

// Zip pairs left and right by position. In strict mode differing lengths are
// an error; otherwise the longer list is truncated to the shorter one.
func Zip(left, right []string, strict bool) ([]Pair, error) {
	if strict && len(left) != len(right) {
		return nil, &PairCountMismatchError{Left: len(left), Right: len(right)}
	}
	n := min(len(left), len(right))
	pairs := make([]Pair, n)
	for i := 0; i < n; i++ {
		pairs[i] = Pair{Left: left[i], Right: right[i]}
	}
	return pairs, nil
}

var digitRun = regexp.MustCompile(`\d+`)

// SortNumeric stably sorts paths by the sequence of integers they contain.
// Sequences compare element by element; a sequence that is a prefix of
// another sorts first.
func SortNumeric(paths []string) {
	keys := make(map[string][]string, len(paths))
	for _, p := range paths {
		if _, ok := keys[p]; !ok {
			keys[p] = digitRun.FindAllString(p, -1)
		}
	}
	sort.SliceStable(paths, func(i, j int) bool {
		return compareRuns(keys[paths[i]], keys[paths[j]]) < 0
	})
}

func compareRuns(a, b []string) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := compareDigits(a[i], b[i]); c != 0 {
			return c
		}
	}
	return len(a) - len(b)
}

// compareDigits compares two decimal strings by value without parsing them,
// so arbitrarily long runs cannot overflow.
func compareDigits(a, b string) int {
	a = strings.TrimLeft(a, "0")
	b = strings.TrimLeft(b, "0")
	if len(a) != len(b) {
		return len(a) - len(b)
	}
	return strings.Compare(a, b)
}
