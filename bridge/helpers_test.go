package bridge

import (
	"math"

	"github.com/wippyai/nativebind/handle"
	"github.com/wippyai/nativebind/native"
)

func orderObserver(order *[]string) handle.ObserverFunc {
	return func(e handle.Event) {
		*order = append(*order, e.Type.String())
	}
}

func writeF32(e *native.Engine, p Ptr, v float32) error {
	return e.Memory().WriteU32(p, math.Float32bits(v))
}
