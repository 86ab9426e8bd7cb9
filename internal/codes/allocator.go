// Package codes hands out unique human readable document numbers. The issued set
// lives on the Allocator value, so independent allocators never share state.
package codes

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"sync"
)

var ErrCodeTaken = errors.New("code already issued")

// Allocator issues <prefix>-<year>-<5 digit counter> codes.
type Allocator struct {
	prefix string
	re     *regexp.Regexp

	mu     sync.Mutex
	issued map[string]struct{}
	last   map[int]int // year -> highest counter seen
}

func NewAllocator(prefix string) *Allocator {
	return &Allocator{
		prefix: prefix,
		re:     regexp.MustCompile(`^` + regexp.QuoteMeta(prefix) + `-(\d{4})-(\d+)$`),
		issued: make(map[string]struct{}),
		last:   make(map[int]int),
	}
}

// NewShipmentNumbers is the allocator for SHP-2025-00001 style shipment numbers.
func NewShipmentNumbers() *Allocator {
	return NewAllocator("SHP")
}

func (a *Allocator) format(year, n int) string {
	return fmt.Sprintf("%s-%d-%05d", a.prefix, year, n)
}

// Seed registers codes that already exist (e.g. loaded from the database).
// Codes of another shape are remembered but do not move the counter.
func (a *Allocator) Seed(existing ...string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, code := range existing {
		a.issued[code] = struct{}{}
		a.track(code)
	}
}

// track must be called with a.mu held.
func (a *Allocator) track(code string) {
	m := a.re.FindStringSubmatch(code)
	if m == nil {
		return
	}
	year, _ := strconv.Atoi(m[1])
	n, err := strconv.Atoi(m[2])
	if err != nil {
		return
	}
	if n > a.last[year] {
		a.last[year] = n
	}
}

// Next returns the next free code for year.
func (a *Allocator) Next(year int) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := a.last[year]
	for {
		n++
		code := a.format(year, n)
		if _, taken := a.issued[code]; taken {
			continue
		}
		a.issued[code] = struct{}{}
		a.last[year] = n
		return code
	}
}

// Reserve claims a caller chosen code.
func (a *Allocator) Reserve(code string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, taken := a.issued[code]; taken {
		return fmt.Errorf("%s: %w", code, ErrCodeTaken)
	}
	a.issued[code] = struct{}{}
	a.track(code)
	return nil
}

// Release forgets a code, e.g. when the insert that used it failed.
func (a *Allocator) Release(code string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.issued, code)
}

func (a *Allocator) Issued(code string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.issued[code]
	return ok
}
