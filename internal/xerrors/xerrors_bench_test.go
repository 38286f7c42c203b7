package xerrors

import (
	"errors"
	"testing"
)

func BenchmarkWrap(b *testing.B) {
	b.Run("wrap nil", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			_ = Wrap(nil, "Hello, Nil Error!")
		}
	})

	b.Run("wrap error", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			_ = Wrap(errWrapped, "Hello, Wrapped!").Error()
		}
	})

	b.Run("new error", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			_ = errors.New("Hello, Error!").Error()
		}
	})
}
