package lock

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
)

// Combination is the ordered sequence of Numbers that opens the lock.
type Combination [3]int

func (c Combination) String() string {
	parts := make([]string, len(c))
	for i, n := range c {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, " • ")
}

// Validate checks that c can be dialled on a lock with tickCount positions.
func (c Combination) Validate(tickCount int) error {
	for i, n := range c {
		if n < 0 || n >= tickCount {
			return fmt.Errorf("combination[%d]=%d out of range [0,%d)", i, n, tickCount)
		}
	}
	if c[0] == 0 {
		return errors.New("combination must not start with 0")
	}
	if c[0] == c[1] || c[0] == c[2] || c[1] == c[2] {
		return fmt.Errorf("combination %v has repeated numbers", [3]int(c))
	}
	return nil
}

// NewCombination draws a combination uniformly from r, retrying until the
// numbers are distinct and the first is not 0. A nil r uses the global
// source.
func NewCombination(r *rand.Rand, tickCount int) (Combination, error) {
	if tickCount < 3 {
		return Combination{}, fmt.Errorf("tick count %d too small for a combination", tickCount)
	}

	intN := rand.IntN
	if r != nil {
		intN = r.IntN
	}

	var c Combination
	for i := 0; i < len(c); {
		n := intN(tickCount)
		if i == 0 && n == 0 {
			continue
		}
		if containsNumber(c[:i], n) {
			continue
		}
		c[i] = n
		i++
	}
	return c, nil
}

func containsNumber(ns []int, n int) bool {
	for _, v := range ns {
		if v == n {
			return true
		}
	}
	return false
}
