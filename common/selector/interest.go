package selector

import (
	"math/bits"
	"strings"
)

type Interest uint32

const (
	InterestRead Interest = 1 << iota
	InterestWrite
	InterestConnect
	InterestAccept

	interestAll = InterestRead | InterestWrite | InterestConnect | InterestAccept
)

var interestNames = [...]string{"READ", "WRITE", "CONNECT", "ACCEPT"}

func (i Interest) index() int {
	return bits.TrailingZeros32(uint32(i))
}

func (i Interest) isSingle() bool {
	return i != 0 && i&interestAll == i && i&(i-1) == 0
}

// each calls block for every flag set in i, in READ, WRITE, CONNECT, ACCEPT
// order.
func (i Interest) each(block func(flag Interest)) {
	for index := range interestNames {
		flag := Interest(1) << index
		if i&flag != 0 {
			block(flag)
		}
	}
}

func (i Interest) String() string {
	if i == 0 {
		return "NONE"
	}
	var names []string
	i.each(func(flag Interest) {
		names = append(names, interestNames[flag.index()])
	})
	return strings.Join(names, "|")
}
