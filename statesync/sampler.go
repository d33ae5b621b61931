// Copyright 2025 The nearcore Go authors
// This file is part of the nearcore Go state sync core.
//
// This software is provided "as is", without warranty of any kind,
// express or implied, including but not limited to the warranties
// of merchantability, fitness for a particular purpose and
// noninfringement. In no event shall the authors or copyright
// holders be liable for any claim, damages, or other liability,
// whether in an action of contract, tort or otherwise, arising
// from, out of or in connection with the software or the use or
// other dealings in the software.

package statesync

import "math/rand"

// limitedSampler yields every element of data exactly limit times, in a
// uniformly random interleaving, terminating after len(data)*limit yields.
// Ported from the original SamplerLimited: decrement-and-swap-remove keeps
// allocation at O(len(data)) for the whole run instead of pre-materializing
// the full shuffled output.
type limitedSampler struct {
	data  []string
	limit []int
}

// newLimitedSampler builds a sampler over data with per-element multiplicity
// limit. A limit of zero yields an immediately-exhausted sampler.
func newLimitedSampler(data []string, limit int) *limitedSampler {
	if limit <= 0 {
		return &limitedSampler{}
	}
	cp := make([]string, len(data))
	copy(cp, data)
	lim := make([]int, len(data))
	for i := range lim {
		lim[i] = limit
	}
	return &limitedSampler{data: cp, limit: lim}
}

// next returns the next sampled element and true, or ("", false) once the
// sampler is exhausted.
func (s *limitedSampler) next() (string, bool) {
	n := len(s.limit)
	if n == 0 {
		return "", false
	}
	i := rand.Intn(n)
	s.limit[i]--

	if s.limit[i] == 0 {
		last := n - 1
		val := s.data[i]
		if i != last {
			s.limit[i] = s.limit[last]
			s.data[i] = s.data[last]
		}
		s.limit = s.limit[:last]
		s.data = s.data[:last]
		return val, true
	}
	return s.data[i], true
}

// drain collects every remaining sample into a slice; used where callers want
// the whole stream at once (e.g. zipping against a parts list).
func (s *limitedSampler) drain() []string {
	var out []string
	for {
		v, ok := s.next()
		if !ok {
			return out
		}
		out = append(out, v)
	}
}
