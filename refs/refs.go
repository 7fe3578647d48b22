// Package refs hands out integer ids for objects held on behalf of remote callers.
package refs

import (
	"log"
	"math"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

const logRefs = false

type Id int

var ErrBadRef = errors.New("bad ref")

type ref struct {
	value  interface{}
	closer func() error
	timer  *time.Timer
}

type Manager struct {
	// Refs not used for this long are released. Zero never expires refs.
	Expiry time.Duration

	mu      sync.Mutex
	refs    map[Id]*ref
	nextRef Id
}

func (me *Manager) expiry() time.Duration {
	if me.Expiry == 0 {
		return math.MaxInt64
	}
	return me.Expiry
}

func (me *Manager) Len() int {
	me.mu.Lock()
	defer me.mu.Unlock()
	return len(me.refs)
}

func (me *Manager) GetAll() (ret map[Id]interface{}) {
	me.mu.Lock()
	defer me.mu.Unlock()
	ret = make(map[Id]interface{}, len(me.refs))
	for k, v := range me.refs {
		ret[k] = v.value
	}
	return
}

func (me *Manager) New(obj interface{}, closer func() error) Id {
	me.mu.Lock()
	defer me.mu.Unlock()
	if me.refs == nil {
		me.refs = make(map[Id]*ref)
	}
	for {
		if _, ok := me.refs[me.nextRef]; !ok {
			break
		}
		me.nextRef++
	}
	ret := me.nextRef
	me.nextRef++
	me.refs[ret] = &ref{
		value:  obj,
		closer: closer,
		timer:  time.AfterFunc(me.expiry(), me.expire(ret, obj)),
	}
	if logRefs {
		log.Print(me.refs)
	}
	return ret
}

func (me *Manager) expire(id Id, obj interface{}) func() {
	return func() {
		log.Printf("expiring %d: %T", id, obj)
		err := me.Release(id)
		if errors.Is(err, ErrBadRef) {
			return
		}
		if err != nil {
			log.Printf("error releasing expired ref %d: %v", id, err)
		}
	}
}

// Get returns the object for id and postpones its expiry.
func (me *Manager) Get(id Id) (interface{}, error) {
	me.mu.Lock()
	defer me.mu.Unlock()
	ref, ok := me.refs[id]
	if !ok {
		return nil, ErrBadRef
	}
	ref.timer.Reset(me.expiry())
	return ref.value, nil
}

// Pop forgets id without running its closer.
func (me *Manager) Pop(id Id) (interface{}, error) {
	me.mu.Lock()
	defer me.mu.Unlock()
	ref, ok := me.refs[id]
	if !ok {
		return nil, ErrBadRef
	}
	ref.timer.Stop()
	delete(me.refs, id)
	if logRefs {
		log.Print(me.refs)
	}
	return ref.value, nil
}

// Release forgets id and runs its closer.
func (me *Manager) Release(id Id) error {
	me.mu.Lock()
	ref, ok := me.refs[id]
	if ok {
		ref.timer.Stop()
		delete(me.refs, id)
	}
	me.mu.Unlock()
	if !ok {
		return ErrBadRef
	}
	if ref.closer == nil {
		return nil
	}
	return ref.closer()
}

// Close releases every ref, returning the first closer error.
func (me *Manager) Close() (err error) {
	me.mu.Lock()
	ids := make([]Id, 0, len(me.refs))
	for id := range me.refs {
		ids = append(ids, id)
	}
	me.mu.Unlock()
	for _, id := range ids {
		if releaseErr := me.Release(id); releaseErr != nil && err == nil && !errors.Is(releaseErr, ErrBadRef) {
			err = releaseErr
		}
	}
	return
}
