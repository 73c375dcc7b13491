package dedupe

import (
	"container/list"
	"math"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

const (
	defaultThreshold = float32(0.92)
	defaultWindow    = 72 * time.Hour
	defaultCapacity  = 50_000

	// vectorDims is the width of the hashed bag-of-words vector used when an
	// article has no embedding.
	vectorDims = 512
)

// Fingerprint is what the index remembers about an analyzed article.
type Fingerprint struct {
	URL    string
	Hash   uint64
	Vector []float32
	At     time.Time
}

// FingerprintIndex finds recent articles about the same event and keeps the
// resulting clusters. Match and Record are separate calls; callers that need
// match-then-record to be atomic must serialize them.
type FingerprintIndex struct {
	mu       sync.Mutex
	entries  *list.List // *Fingerprint, front = newest insert
	byURL    map[string]*list.Element
	clusters *unionFind

	threshold float32
	window    time.Duration
	capacity  int
	now       func() time.Time
}

// NewFingerprintIndex creates an empty index (threshold 0.92, window 72h).
func NewFingerprintIndex(opts ...IndexOption) *FingerprintIndex {
	ix := &FingerprintIndex{
		entries:   list.New(),
		byURL:     map[string]*list.Element{},
		clusters:  newUnionFind(),
		threshold: defaultThreshold,
		window:    defaultWindow,
		capacity:  defaultCapacity,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// Threshold returns the configured similarity threshold.
func (ix *FingerprintIndex) Threshold() float32 { return ix.threshold }

// Window returns the comparison window.
func (ix *FingerprintIndex) Window() time.Duration { return ix.window }

// Now returns the index clock.
func (ix *FingerprintIndex) Now() time.Time { return ix.now() }

// Match returns the URLs of indexed articles within the window of fp.At whose
// content hash equals fp.Hash or whose vectors reach the threshold.
func (ix *FingerprintIndex) Match(fp Fingerprint) []string {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	var out []string
	for el := ix.entries.Front(); el != nil; el = el.Next() {
		e := el.Value.(*Fingerprint)
		if e.URL == fp.URL || !withinWindow(e.At, fp.At, ix.window) {
			continue
		}
		if fp.Hash != 0 && e.Hash == fp.Hash {
			out = append(out, e.URL)
			continue
		}
		if CosineSimilarity(fp.Vector, e.Vector) >= ix.threshold {
			out = append(out, e.URL)
		}
	}
	return out
}

// Record stores fp and joins it to the clusters of every URL in matches.
// It returns the other members of fp's cluster afterwards.
func (ix *FingerprintIndex) Record(fp Fingerprint, matches []string) []string {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if el, ok := ix.byURL[fp.URL]; ok {
		ix.entries.Remove(el)
	}
	stored := fp
	ix.byURL[fp.URL] = ix.entries.PushFront(&stored)
	for ix.capacity > 0 && ix.entries.Len() > ix.capacity {
		oldest := ix.entries.Back()
		delete(ix.byURL, oldest.Value.(*Fingerprint).URL)
		ix.entries.Remove(oldest)
	}

	ix.clusters.add(fp.URL)
	for _, m := range matches {
		ix.clusters.union(fp.URL, m)
	}
	return without(ix.clusters.members(fp.URL), fp.URL)
}

// Expand returns the sorted union of the clusters containing matches,
// excluding self. It does not modify the index.
func (ix *FingerprintIndex) Expand(self string, matches []string) []string {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	seen := map[string]struct{}{}
	var out []string
	for _, m := range matches {
		for _, id := range ix.clusters.members(m) {
			if _, dup := seen[id]; dup || id == self {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// Link joins two URLs into one cluster without touching fingerprints.
func (ix *FingerprintIndex) Link(a, b string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.clusters.union(a, b)
}

// Cluster returns the other members of url's cluster. ok is false when the
// index has never seen url.
func (ix *FingerprintIndex) Cluster(url string) (others []string, ok bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if !ix.clusters.has(url) {
		return nil, false
	}
	return without(ix.clusters.members(url), url), true
}

// Size returns the number of fingerprints held.
func (ix *FingerprintIndex) Size() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.entries.Len()
}

func withinWindow(a, b time.Time, w time.Duration) bool {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d <= w
}

func without(ids []string, drop string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != drop {
			out = append(out, id)
		}
	}
	return out
}

// ContentHash hashes normalized title and body. It is never zero.
func ContentHash(title, body string) uint64 {
	h := xxhash.Sum64String(normalize(title) + "\n" + normalize(body))
	if h == 0 {
		h = 1
	}
	return h
}

// Vectorize builds an L2-normalized hashed bag-of-words vector.
func Vectorize(text string) []float32 {
	v := make([]float32, vectorDims)
	var n int
	for _, tok := range tokens(text) {
		v[xxhash.Sum64String(tok)%vectorDims]++
		n++
	}
	if n == 0 {
		return v
	}
	var norm float64
	for _, x := range v {
		norm += float64(x * x)
	}
	norm = math.Sqrt(norm)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}

// CosineSimilarity returns 0 for zero-norm or mismatched vectors.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "that": {}, "this": {}, "from": {},
	"are": {}, "was": {}, "were": {}, "has": {}, "have": {}, "its": {}, "but": {},
	"not": {}, "will": {}, "said": {}, "into": {}, "than": {}, "after": {}, "over": {},
}

func tokens(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if len(f) < 3 {
			continue
		}
		if _, stop := stopwords[f]; stop {
			continue
		}
		out = append(out, f)
	}
	return out
}
