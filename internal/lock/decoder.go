package lock

// TickDecoder converts quantized rotation into dial Numbers.
//
// Every Number on the shorter circular path between two consecutive raw
// Numbers is emitted, so a fast sweep never skips a position. The previous
// Number starts at 0, matching a dial at rest.
type TickDecoder struct {
	tickCount int
	prev      int
}

func NewTickDecoder(tickCount int) *TickDecoder {
	return &TickDecoder{tickCount: tickCount}
}

// NumberForTick maps a quantized rotation (in ticks) to the Number the dial
// points to. Positive rotation counts down from tickCount.
func NumberForTick(tick, tickCount int) int {
	if tick > 0 {
		return tickCount - tick
	}
	return -tick
}

// Decode returns the Numbers passed on the way to the Number for tick,
// destination included. It returns nil when the Number is unchanged.
func (d *TickDecoder) Decode(tick int) []int {
	next := circularDistance(0, NumberForTick(tick, d.tickCount), d.tickCount)
	out := d.walk(d.prev, next)
	d.prev = next
	return out
}

// Current returns the last decoded Number.
func (d *TickDecoder) Current() int { return d.prev }

func (d *TickDecoder) walk(from, to int) []int {
	if from == to {
		return nil
	}

	up := circularDistance(from, to, d.tickCount)
	down := circularDistance(to, from, d.tickCount)

	var out []int
	n := from
	if up <= down {
		for n != to {
			if n == d.tickCount-1 {
				n = -1
			}
			n++
			out = append(out, n)
		}
		return out
	}
	for n != to {
		if n == 0 {
			n = d.tickCount
		}
		n--
		out = append(out, n)
	}
	return out
}

// circularDistance counts the steps upward from `from` to `to` on a dial of
// size n.
func circularDistance(from, to, n int) int {
	d := (to - from) % n
	if d < 0 {
		d += n
	}
	return d
}
