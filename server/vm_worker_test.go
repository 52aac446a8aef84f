package server

import (
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/chazu/loxvm/asm"
	"github.com/chazu/loxvm/vm"
)

func TestVMWorkerSerializesAccess(t *testing.T) {
	w := NewVMWorker(vm.New(vm.WithErrorOutput(io.Discard)))
	defer w.Stop()

	chunk, err := asm.Assemble("constant 2 constant 3 mul", asm.WithImplicitReturn())
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := w.Do(func(v *vm.VM) any {
				val, err := v.Execute(chunk)
				if err != nil {
					return err
				}
				return float64(val)
			})
			if err != nil {
				errs <- err
				return
			}
			if out != 6.0 {
				errs <- errors.New("wrong result")
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}

func TestVMWorkerRecoversPanics(t *testing.T) {
	w := NewVMWorker(vm.New())
	defer w.Stop()

	_, err := w.Do(func(v *vm.VM) any {
		panic("boom")
	})
	if err == nil || err.Error() != "boom" {
		t.Errorf("err = %v, want boom", err)
	}

	out, err := w.Do(func(v *vm.VM) any { return len(v.Stack()) })
	if err != nil || out != 0 {
		t.Errorf("Do after panic = %v, %v", out, err)
	}
}

func TestVMWorkerStop(t *testing.T) {
	w := NewVMWorker(vm.New())
	w.Stop()
	w.Stop()

	if _, err := w.Do(func(v *vm.VM) any { return nil }); !errors.Is(err, ErrWorkerStopped) {
		t.Errorf("err = %v, want %v", err, ErrWorkerStopped)
	}
}
