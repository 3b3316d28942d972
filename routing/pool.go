package routing

import (
	"sync"
)

// scratch buffers for votes and per-output weights, keyed by length
var (
	floatPoolLock sync.Mutex
	floatPool     = make(map[int]*sync.Pool)
)

func borrowFloats(n int) []float32 {
	floatPoolLock.Lock()
	p, ok := floatPool[n]
	floatPoolLock.Unlock()
	if ok {
		if retVal, ok := p.Get().([]float32); ok {
			return retVal
		}
	}
	return make([]float32, n)
}

func returnFloats(a []float32) {
	n := len(a)
	floatPoolLock.Lock()
	p, ok := floatPool[n]
	if !ok {
		p = new(sync.Pool)
		floatPool[n] = p
	}
	floatPoolLock.Unlock()
	p.Put(a)
}
